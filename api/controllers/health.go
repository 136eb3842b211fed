package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/wayfarehq/wayfare-backend/api/responses"
	"github.com/wayfarehq/wayfare-backend/pkg/config"
	pkgerrors "github.com/wayfarehq/wayfare-backend/pkg/errors"
	"github.com/wayfarehq/wayfare-backend/pkg/logger"
)

const readinessTimeout = 5 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Wayfare-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every hard dependency. A failing dependency reports 503
// so the platform stops routing traffic here.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Wayfare-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		statuses := map[string]string{}
		failed := false
		for name, dep := range deps {
			if dep == nil {
				statuses[name] = "not configured"
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				statuses[name] = err.Error()
				failed = true
				if logg != nil {
					logg.Error(r.Context(), name+" readiness ping failed", err)
				}
				continue
			}
			statuses[name] = "ok"
		}

		if failed {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "dependency unavailable").WithDetails(statuses))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "dependencies": statuses})
	}
}
