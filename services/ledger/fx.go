package ledger

import (
	"offerwall/pkg/httpapi"

	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(
		NewService,
		NewHandler,
	),
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *httpapi.Router, h *Handler) {
	r.Private.GET("/earnings", h.Earnings)
	r.Private.GET("/earnings/verify", h.Verify)
}
