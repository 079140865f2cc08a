package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/deleguard/recovery-go/internal/store"
)

// Token-status callback status values, sent by a recovery provider reporting
// what became of a token it was asked to hold or release.
const (
	statusSaveSuccess     = "save-success"
	statusSaveFailure     = "save-failure"
	statusDeleted         = "deleted"
	statusTokenRepudiated = "token-repudiated"
)

// handleTokenStatus receives a recovery provider's report on one or more
// token ids. A comma-joined id ("newId,oldId") reports on a renewal: on
// save-success the new id is confirmed and the old id it superseded is
// invalidated, so a renewed token can never be replayed once its
// replacement has been saved. Any other status applied to a renewal
// composite id is broadcast to both halves, matching how a single id is
// handled. Unknown ids are silently ignored, since the recovery provider
// has no way to know which ids this account provider recognizes, and the
// callback always answers 200 with an empty body regardless of outcome.
func (h *Handler) handleTokenStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	status := r.FormValue("status")
	idField := r.FormValue("id")
	now := h.clock()

	ids := splitTrimmed(idField)
	if status == statusSaveSuccess && len(ids) == 2 {
		h.applyTokenStatus(r.Context(), ids[0], statusSaveSuccess, now)
		h.applyTokenStatus(r.Context(), ids[1], statusTokenRepudiated, now)
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, id := range ids {
		h.applyTokenStatus(r.Context(), id, status, now)
	}

	w.WriteHeader(http.StatusOK)
}

func splitTrimmed(field string) []string {
	parts := strings.Split(field, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

func (h *Handler) applyTokenStatus(ctx context.Context, id, status string, now time.Time) {
	var err error
	switch status {
	case statusSaveSuccess:
		err = h.store.UpdateStatus(ctx, id, store.StatusConfirmed, now)
	case statusSaveFailure, statusDeleted:
		err = h.store.DeleteTokenRecord(ctx, id)
	case statusTokenRepudiated:
		err = h.store.UpdateStatus(ctx, id, store.StatusInvalid, now)
	default:
		return
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.logger.Error("token status update failed", "tokenId", id, "status", status, "error", err, "correlationId", correlationIDFrom(ctx))
	}
}
