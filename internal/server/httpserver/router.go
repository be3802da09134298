package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/yndnr/tidekv/internal/server/httpserver/handler"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	Deps handler.Deps

	// Metrics serves /metrics. Nil leaves the route unregistered.
	Metrics http.Handler

	// Password protects /admin/v1/*. Probes and /metrics stay open.
	Password string

	// RateLimit is the process-wide request rate (requests/second);
	// zero disables limiting.
	RateLimit float64
	RateBurst int

	Logger *slog.Logger
}

// Router is the admin HTTP handler together with the knobs the server
// flips at runtime.
type Router struct {
	handler *handler.Handler
	limiter *Limiter
	root    http.Handler
}

// NewRouter creates the router with all routes and middleware.
func NewRouter(cfg RouterConfig) *Router {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	h := handler.New(cfg.Deps, log)
	limiter := NewLimiter(cfg.RateLimit, cfg.RateBurst)

	mux := http.NewServeMux()
	mux.Handle("GET /health", h)
	mux.Handle("GET /ready", h)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", RateLimit(limiter)(cfg.Metrics))
	}
	mux.Handle("/admin/v1/", Chain(h,
		RateLimit(limiter),
		AdminAuth(cfg.Password),
	))

	return &Router{
		handler: h,
		limiter: limiter,
		root: Chain(mux,
			Recover(log),
			RequestID(),
			AccessLog(log),
		),
	}
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.root.ServeHTTP(w, req)
}

// SetReady flips the /ready probe.
func (r *Router) SetReady(ready bool) {
	r.handler.SetReady(ready)
}

// SetRateLimit changes the request rate without a restart.
func (r *Router) SetRateLimit(rps float64, burst int) {
	r.limiter.Set(rps, burst)
}
