package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	billinghttp "github.com/fleetbill/fleetbill/internal/billing/http"
	"github.com/fleetbill/fleetbill/internal/observability"
	"github.com/fleetbill/fleetbill/internal/quoting"
	"github.com/fleetbill/fleetbill/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	BillingHandler *billinghttp.Handler
	QuoteHandler   *quoting.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	if params.Metrics != nil {
		r.Use(params.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.BillingHandler != nil || params.QuoteHandler != nil {
		r.Route("/api/v1", func(api chi.Router) {
			if params.BillingHandler != nil {
				params.BillingHandler.MountRoutes(api)
			}
			if params.QuoteHandler != nil {
				params.QuoteHandler.MountRoutes(api)
			}
		})
	}
	if params.JobHandler != nil {
		r.Route("/jobs", func(jr chi.Router) {
			params.JobHandler.MountRoutes(jr)
		})
	}

	return r
}
