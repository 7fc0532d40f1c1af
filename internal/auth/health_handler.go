// health_handler.go -- Health check handler for GET /health.
package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MGallo-Code/styx/internal/store"
)

// CheckHealth handles GET /health -- pings Redis and (if configured) Postgres.
// Returns 200 if every configured dependency is healthy, 503 otherwise.
func (h *AuthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	redisStatus := "ok"
	postgresStatus := "ok"

	if err := h.Cache.CheckHealth(r.Context()); err != nil {
		logError(r, "redis health check failed", "error", err)
		redisStatus = "error"
	}
	if h.Audit == nil {
		postgresStatus = "disabled"
	} else if err := h.Audit.CheckHealth(r.Context()); err != nil {
		if errors.Is(err, store.ErrAuditDisabled) {
			postgresStatus = "disabled"
		} else {
			logError(r, "postgres health check failed", "error", err)
			postgresStatus = "error"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if redisStatus == "error" || postgresStatus == "error" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(struct {
		Redis    string `json:"redis"`
		Postgres string `json:"postgres"`
	}{redisStatus, postgresStatus})
}
