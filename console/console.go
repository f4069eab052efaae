// Package console serves the portal's route tree as a local JSON API. Each
// guarded route runs the session guard on entry and answers a denied
// request with a 303 redirect to the guard's fallback route.
package console

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	openapi "github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/cardledger/portal"
	"github.com/jmcleod/cardledger/session"
)

//go:embed openapi.yaml
var openapiSpec []byte

// maxStageBytes bounds a multipart staging request.
const maxStageBytes = 64 << 20

// Server holds the dependencies needed by the console handlers.
type Server struct {
	portal  *portal.Portal
	logger  *slog.Logger
	audit   *auditLogger
	limiter *signInThrottle
	clock   func() time.Time
	origins []string
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the structured logger for requests and audit events.
// If not set, a JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithClock sets the time source for sign-in lockouts.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.clock = now }
}

// WithCORSOrigins allows browser front ends on origins to call the console.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// New creates a console for p.
func New(p *portal.Portal, opts ...Option) *Server {
	s := &Server{portal: p}
	for _, opt := range opts {
		opt(s)
	}
	s.limiter = newSignInThrottle(defaultLockout, s.clock)
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	s.audit = newAuditLogger(s.logger)
	return s
}

// Router returns a chi.Router with every console route mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"Location"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", s.portal.Metrics().Handler())
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})
	r.Handle("/docs*", openapi.SwaggerUI(openapi.SwaggerUIOpts{
		SpecURL: "/openapi.yaml",
		Path:    "docs",
	}, nil))
	r.Handle("/redoc*", openapi.Redoc(openapi.RedocOpts{
		SpecURL: "/openapi.yaml",
		Path:    "redoc",
	}, nil))

	r.Group(func(r chi.Router) {
		r.Use(SecurityHeaders)

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, string(session.RouteDashboard), http.StatusSeeOther)
		})
		r.Post("/login", s.Login)
		r.Post("/admin/login", s.Login)
		r.Post("/register", s.Register)
		r.Post("/logout", s.Logout)

		r.Group(func(r chi.Router) {
			r.Use(s.guard(session.RequireUser))
			r.Get("/dashboard", s.Dashboard)
			r.Post("/dashboard/stage", s.Stage)
			r.Post("/dashboard/drop", s.Drop)
			r.Post("/dashboard/upload", s.Upload)
			r.Get("/history", s.History)
			r.Post("/history/clear", s.ClearFilters)
			r.Get("/history/export/{format}", s.Export)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.guard(session.RequireElevated))
			r.Get("/admin/dashboard", s.AdminDashboard)
			r.Post("/admin/users/{id}/{action}", s.AdminAction)
		})
	})

	return r
}
