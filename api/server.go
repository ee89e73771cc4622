/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK (outermost first):
  1. otelhttp:   Server span per request
  2. hlog:       Request-scoped zerolog logger, request id, access log
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the dispatcher UI
  5. httprate:   Per-IP request limit on /api

ROUTE GROUPS:
  /api/*      Engine operations (see handlers.go)
  /healthz    Liveness
  /readyz     Database reachability
  /metrics    Prometheus exposition

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/checkboard/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RouterOptions configures NewRouter. Zero values fall back to defaults.
type RouterOptions struct {
	Logger             zerolog.Logger
	AllowedOrigins     []string
	RateLimitPerMinute int
	Metrics            http.Handler
	ServiceName        string
}

// NewRouter creates the HTTP handler with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.RateLimitPerMinute <= 0 {
		opts.RateLimitPerMinute = 300
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "checkboard"
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(hlog.NewHandler(opts.Logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", h.actorHeader},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(httprate.LimitByIP(opts.RateLimitPerMinute, time.Minute))

		r.Get("/overview", h.GetOverview)
		r.Post("/records", h.UpsertRecord)
		r.Get("/exceptions", h.GetExceptions)

		r.Route("/drivers", func(r chi.Router) {
			r.Get("/", h.ListDrivers)
			r.Post("/", h.CreateDriver)
			r.Get("/{id}", h.GetDriver)
			r.Patch("/{id}", h.UpdateDriver)
		})

		r.Route("/checks", func(r chi.Router) {
			r.Get("/", h.ListChecks)
			r.Post("/", h.CreateCheck)
			r.Get("/{id}", h.GetCheck)
			r.Patch("/{id}", h.UpdateCheck)
		})

		r.Post("/reorder", h.Reorder)
		r.Get("/audit", h.ListChanges)
	})

	return otelhttp.NewHandler(r, opts.ServiceName,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
