package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/unclebandit/fundraise-backend/internal/handler"
)

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestIDFrom returns the id RequestID stored in ctx.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestID keeps an incoming X-Request-ID or assigns a new one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Logger logs one line per request.
func Logger(l zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			ev := l.Info()
			if rw.status >= http.StatusInternalServerError {
				ev = l.Error()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rw.status).
				Dur("took", time.Since(start)).
				Str("request_id", RequestIDFrom(r.Context())).
				Str("caller", r.Header.Get(CallerHeader)).
				Msg("request")
		})
	}
}

// NewRouter wires the command and query routes.
func NewRouter(c *CampaignController, h *handler.CampaignHandler, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		RequestID,
		middleware.RealIP,
		Logger(log),
		middleware.Recoverer,
	)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/campaigns", func(r chi.Router) {
		r.Get("/", h.ListCampaigns)
		r.Post("/", c.CreateCampaign)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetCampaign)
			r.Patch("/", c.EditCampaign)
			r.Delete("/", c.DeleteCampaign)
			r.Get("/donators", h.GetDonators)
			r.Get("/remaining", h.GetRemaining)
			r.Post("/donations", c.Donate)
			r.Post("/withdraw", c.WithdrawFunds)
		})
	})

	r.Route("/commission", func(r chi.Router) {
		r.Get("/", h.GetCommission)
		r.Post("/withdraw", c.WithdrawCommission)
		r.Post("/withdraw-all", c.WithdrawAllCommission)
	})

	r.Get("/journal", h.GetJournal)

	return r
}
