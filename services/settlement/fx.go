package settlement

import (
	"offerwall/pkg/httpapi"

	"go.uber.org/fx"
)

var Module = fx.Module("settlement.service",
	fx.Provide(
		NewEngine,
		NewHandler,
	),
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *httpapi.Router, h *Handler) {
	r.Private.POST("/offers/:id/complete", h.Complete)
}
