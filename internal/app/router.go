package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	audithttp "github.com/trailview/trailview/internal/audit/http"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger       *slog.Logger
	Config       *Config
	AuditHandler *audithttp.Handler
}

// NewRouter constructs the chi.Router with Trailview defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	routeCfg := audithttp.RouteConfig{}
	if params.Config != nil {
		routeCfg.ExportRateLimit = params.Config.ExportRateLimit
		routeCfg.ExportRateWindow = params.Config.ExportRateWindow
	}
	r.Route("/api", func(api chi.Router) {
		api.Use(RequireTenant)
		params.AuditHandler.MountRoutesWith(api, routeCfg)
	})

	return r
}
