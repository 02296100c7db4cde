package controllers

import (
	"context"
	"net/http"

	"github.com/adesolafarms/farmstore-backend/api/responses"
	"github.com/adesolafarms/farmstore-backend/pkg/config"
	"github.com/adesolafarms/farmstore-backend/pkg/logger"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Healthz reports liveness plus the state of the backing stores.
func Healthz(cfg *config.Config, db, cache Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		status := map[string]string{
			"status": "ok",
			"db":     "ok",
			"redis":  "ok",
		}
		healthy := true

		if db != nil {
			if err := db.Ping(ctx); err != nil {
				status["db"] = "unreachable"
				healthy = false
				logg.Error(ctx, "health.db", err)
			}
		}
		if cache != nil {
			if err := cache.Ping(ctx); err != nil {
				status["redis"] = "unreachable"
				healthy = false
				logg.Error(ctx, "health.redis", err)
			}
		}

		w.Header().Set("X-Farmstore-Env", cfg.App.Env)
		if !healthy {
			status["status"] = "degraded"
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, status)
			return
		}
		responses.WriteSuccess(w, status)
	}
}
