package callback

import (
	"offerwall/pkg/httpapi"
	"offerwall/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("callback.service",
	fx.Provide(
		NewService,
		NewHandler,
	),
	fx.Invoke(registerRoutes),
)

// Worker registers the replay task handler on the asynq mux.
var Worker = fx.Module("callback.worker",
	fx.Provide(NewService),
	fx.Invoke(registerTaskHandlers),
)

func registerRoutes(r *httpapi.Router, h *Handler) {
	r.Root.GET("/postback/:provider", h.Postback)
	r.Root.GET("/lootably/postback", h.Lootably)
}

func registerTaskHandlers(mux *asynq.ServeMux, s *Service) {
	mux.HandleFunc(taskname.CallbackReplay, s.HandleReplay)
}
