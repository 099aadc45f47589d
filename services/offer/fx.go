package offer

import (
	"offerwall/pkg/httpapi"

	"go.uber.org/fx"
)

var Module = fx.Module("offer.service",
	fx.Provide(
		NewCatalog,
		NewHandler,
	),
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *httpapi.Router, h *Handler) {
	r.Public.GET("/offers", h.List)
	r.Public.GET("/offers/categories", h.Categories)
	r.Public.GET("/offers/providers", h.Providers)
	r.Public.GET("/offers/:id", h.Get)
}
