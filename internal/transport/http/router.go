package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"example.com/runlog/internal/api"
	"example.com/runlog/internal/auth"
)

// RouterConfig carries the cross-cutting settings applied to every route.
type RouterConfig struct {
	CORSOrigin   string
	MaxBodyBytes int64
}

// NewRouter mounts the run API, health and metrics endpoints behind the shared middleware chain:
//  1. request id and panic recovery
//  2. request logging
//  3. CORS, answering preflight requests directly
//  4. request body size limit
//  5. bearer-token authentication (health and metrics stay public)
func NewRouter(cfg RouterConfig, handler *api.Handler, authMiddleware auth.Middleware, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(RequestLogging(logger))
	r.Use(CORS(cfg.CORSOrigin))
	if cfg.MaxBodyBytes > 0 {
		r.Use(chiMiddleware.RequestSize(cfg.MaxBodyBytes))
	}
	r.Use(authMiddleware.Wrap)

	handler.RegisterRoutes(r)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
