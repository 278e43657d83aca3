package audithttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/trailview/trailview/internal/shared"
)

const (
	defaultRateLimit  = 10
	defaultRateWindow = time.Minute
)

// RouteConfig tunes per-route policies.
type RouteConfig struct {
	ExportRateLimit  int
	ExportRateWindow time.Duration
}

// MountRoutes registers the audit endpoints on the given router.
func (h *Handler) MountRoutes(r chi.Router) {
	h.MountRoutesWith(r, RouteConfig{})
}

// MountRoutesWith registers the audit endpoints with explicit route policies.
func (h *Handler) MountRoutesWith(r chi.Router, cfg RouteConfig) {
	if h == nil {
		return
	}
	limit := cfg.ExportRateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	window := cfg.ExportRateWindow
	if window <= 0 {
		window = defaultRateWindow
	}
	limiter := httprate.Limit(limit, window,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Route("/audit-logs", func(ar chi.Router) {
		ar.Get("/", h.handleList)
		ar.Post("/", h.handleIngest)
		ar.Get("/summary", h.handleSummary)
		ar.Get("/stream", h.handleStream)
		ar.Get("/retention", h.handleGetRetention)
		ar.Put("/retention", h.handlePutRetention)
		ar.Group(func(gr chi.Router) {
			gr.Use(limiter)
			gr.Get("/export", h.handleExport)
		})
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if tenant := shared.TenantFromContext(r.Context()); tenant != "" {
		return "tenant:" + tenant, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
