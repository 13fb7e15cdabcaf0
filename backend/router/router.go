package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"job-relay/backend/app/controllers"
	"job-relay/backend/app/middleware"
)

type Controllers struct {
	HTTP     *controllers.HTTPController
	Agent    *controllers.AgentController
	Socket   *controllers.SocketController
	Command  *controllers.CommandController
	Device   *controllers.DeviceController
	AgentLog *controllers.AgentLogController
	Auth     *controllers.AuthController // nil without a database
}

func NewRouter(c Controllers, mw *middleware.Auth) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimw.Recoverer)

	// public
	r.Get("/ping", c.HTTP.Ping)
	r.Get("/healthz", c.HTTP.Health)

	if c.Auth != nil {
		r.Post("/auth/login", c.Auth.Login)
	}

	// agent transports
	r.Route("/agent", func(r chi.Router) {
		r.Post("/data", c.Agent.Data)
		r.Get("/poll", c.Agent.Poll)
		r.Get("/ws", c.Socket.Connect)
	})

	// admin-only endpoints
	r.Route("/admin", func(r chi.Router) {
		r.Use(mw.RequireAdmin)
		r.Get("/devices", c.Device.List)
		r.Get("/devices/{deviceId}", c.Device.Get)
		r.Post("/devices/{deviceId}/confirmation/clear", c.Device.ClearConfirmation)
		r.Post("/command", c.Command.Post)
		r.Get("/command/queue", c.Command.Queue)
		r.Get("/online", c.Command.Online)
		r.Get("/logs", c.AgentLog.GetLatest)
		if c.Auth != nil {
			r.Get("/operators", c.Auth.ListOperators)
			r.Post("/operators", c.Auth.CreateOperator)
		}
	})

	return r
}
