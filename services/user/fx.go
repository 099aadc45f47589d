package user

import (
	"offerwall/pkg/httpapi"

	"go.uber.org/fx"
)

var Module = fx.Module("user.service",
	fx.Provide(
		NewDirectory,
		NewHandler,
	),
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *httpapi.Router, h *Handler) {
	r.Private.GET("/me", h.Me)
	r.Private.PUT("/me/payout-address", h.UpdatePayoutAddress)
}
