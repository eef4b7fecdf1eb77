package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// APIHandler is the shared router wrapped in the common middleware stack.
// The serverless entry point serves exactly this.
func (a *App) APIHandler() http.Handler {
	return a.wrap(a.api.Router(nil))
}

// ServerHandler adds the operational endpoints of the long-running server.
func (a *App) ServerHandler() http.Handler {
	return a.wrap(a.api.Router(a.registerOps))
}

func (a *App) wrap(h http.Handler) http.Handler {
	h = WithSecurityHeaders(h)
	h = WithRescue(h, a.log)
	if a.cfg.MetricsEnabled {
		h = a.metrics.Middleware(h)
	}
	h = WithRequestLogging(h, a.log)
	return WithRequestID(h)
}

func (a *App) registerOps(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.ReadinessRequireDB && a.stores.backend != backendPostgres {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}
		if err := a.stores.Ping(r.Context(), 2*time.Second); err != nil {
			a.log.Info("readyz.db.not_ready", "err", err)
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if a.cfg.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	}

	r.Method(http.MethodGet, "/ws/videos", a.ws)
}
