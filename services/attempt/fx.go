package attempt

import (
	"offerwall/pkg/httpapi"

	"go.uber.org/fx"
)

var Module = fx.Module("attempt.service",
	fx.Provide(
		NewTracker,
		NewHandler,
	),
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *httpapi.Router, h *Handler) {
	r.Private.GET("/offers/me", h.Mine)
	r.Private.POST("/offers/:id/start", h.Start)
}
