package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the API HTTP router.
//
// This is intentionally a thin adapter: it wires routes and middleware and
// delegates everything else to the Server handlers.
func NewRouter(s *Server, log *slog.Logger, auth func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))
	r.Use(auth)

	// Health endpoint is deliberately outside the API surface (used for
	// infra checks).
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/activities", func(r chi.Router) {
		r.Get("/", s.handleListActivities)
		r.Post("/", s.handleCreateActivity)

		r.Route("/{activityID}", func(r chi.Router) {
			r.Get("/", s.handleGetActivity)
			r.Put("/", s.handleUpdateActivity)
			r.Post("/status", s.handleChangeStatus)
			r.Get("/roster", s.handleRoster)

			r.Post("/registration", s.handleRegister)
			r.Delete("/registration", s.handleCancel)
		})
	})

	r.Get("/me/registrations", s.handleMyRegistrations)

	return r
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			log.LogAttrs(r.Context(), slog.LevelInfo, "request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
