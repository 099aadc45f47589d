package payout

import (
	"offerwall/pkg/httpapi"
	"offerwall/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("payout.service",
	fx.Provide(
		NewService,
		NewHandler,
	),
	fx.Invoke(registerRoutes),
)

// Worker moves requested payouts into processing.
var Worker = fx.Module("payout.worker",
	fx.Provide(NewService),
	fx.Invoke(registerTaskHandlers),
)

func registerRoutes(r *httpapi.Router, h *Handler) {
	r.Private.POST("/payouts", h.Request)
	r.Private.GET("/payouts", h.History)
	r.Private.GET("/payouts/info", h.Info)
}

func registerTaskHandlers(mux *asynq.ServeMux, s *Service) {
	mux.HandleFunc(taskname.PayoutRequested, s.HandleRequested)
}
