package server

import (
	"context"
	"database/sql"
	"net/http"
	"time"
)

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz reports 503 if a configured database backend is unreachable.
// A store that is not database-backed (the in-memory default) is always
// ready.
func (h *Handler) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if pinger, ok := h.store.(interface{ DB() *sql.DB }); ok {
		if err := pinger.DB().PingContext(ctx); err != nil {
			h.writeError(w, r, http.StatusServiceUnavailable, "not_ready", "database not reachable")
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
