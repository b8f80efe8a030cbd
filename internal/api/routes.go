package api

import (
	"net/http"

	"github.com/DotoriPicnic/condition-pick/internal/catalog"
	"github.com/DotoriPicnic/condition-pick/internal/health"
	"github.com/DotoriPicnic/condition-pick/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Service       ScreeningService
	Catalog       *catalog.Catalog
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	Live          http.Handler // WebSocket endpoint; nil disables /ws
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Service, cfg.Catalog, cfg.HealthChecker)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes)
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// Screening endpoints. The advanced and auto paths are kept for
	// dashboards built against the earlier server.
	mux.HandleFunc("POST /api/condition/search", handler.RunNow)
	mux.HandleFunc("POST /api/condition/advanced/search", handler.RunNow)
	mux.HandleFunc("GET /api/condition/result", handler.Cached)
	mux.HandleFunc("GET /api/condition/advanced/result", handler.Cached)
	mux.HandleFunc("GET /api/condition/auto/result", handler.Cached)
	mux.HandleFunc("GET /api/condition/status", handler.Status)
	mux.HandleFunc("GET /api/condition/list", handler.Catalog)
	mux.HandleFunc("GET /api/status", handler.ServerStatus)

	if cfg.Live != nil {
		mux.Handle("GET /ws", cfg.Live)
	}

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
