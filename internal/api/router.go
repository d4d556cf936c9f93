package api

import (
	"log/slog"
	"net/http"

	"github.com/draft-protocol/draftd/internal/middleware"
	"github.com/draft-protocol/draftd/internal/tools"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Service        *tools.Service
	DB             Pinger
	Conns          *Conns
	Limiter        *middleware.RateLimiter // nil disables rate limiting
	AllowedOrigins []string
	Version        string
	Logger         *slog.Logger
}

// NewRouter builds the REST transport.
func NewRouter(opts RouterOptions) http.Handler {
	h := NewHandler(opts.Service, opts.Conns, opts.Logger)
	h.originPatterns = socketOrigins(opts.AllowedOrigins)
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(opts.AllowedOrigins))
	if opts.Limiter != nil {
		r.Use(middleware.RateLimit(opts.Limiter))
	}

	NewHealthHandler(opts.DB, opts.Version).RegisterHealth(r)
	h.RegisterRoutes(r)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		Error(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}
