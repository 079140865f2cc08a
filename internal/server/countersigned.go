package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/deleguard/recovery-go/internal/config"
	"github.com/deleguard/recovery-go/internal/store"
	"github.com/deleguard/recovery-go/internal/token"
	"github.com/deleguard/recovery-go/internal/wire"
)

type countersignedRequest struct {
	Token   string `json:"token"`
	Binding []byte `json:"binding,omitempty"`
}

type countersignedResponse struct {
	InnerTokenHash string `json:"innerTokenHash"`
	RecordID       string `json:"recordId"`
	Status         string `json:"status"`
}

// handleCountersigned accepts a countersigned recovery token returned via
// the recovery provider, validates it end to end against the cached RP
// configuration, consults the replay guard, and confirms the token record
// it answers.
func (h *Handler) handleCountersigned(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var req countersignedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		observeCountersignedOutcome("malformed")
		h.writeError(w, r, http.StatusBadRequest, "malformed_token", "request body is not a valid countersigned token submission")
		return
	}

	rpConfig, err := h.currentRecoveryProviderConfig(r.Context())
	if err != nil {
		observeCountersignedOutcome("config_unavailable")
		h.logger.Error("recovery provider configuration unavailable", "error", err, "correlationId", correlationIDFrom(r.Context()))
		h.writeError(w, r, http.StatusServiceUnavailable, "config_unavailable", "recovery provider configuration unavailable")
		return
	}

	expectedAudience := h.apOrigin(r)
	skew := h.cfg.ClockSkew
	if skew <= 0 {
		skew = 5 * time.Minute
	}

	ct, err := token.ParseCountersigned(req.Token, rpConfig.Issuer, expectedAudience, req.Binding, rpConfig.CountersignPubkeys, skew)
	if err != nil {
		h.rejectCountersigned(w, r, err)
		return
	}

	digest, err := ct.Sha256()
	if err != nil {
		observeCountersignedOutcome("malformed")
		h.writeError(w, r, http.StatusBadRequest, "malformed_token", "could not digest submitted token")
		return
	}
	inserted, err := h.guard.Insert(r.Context(), digest)
	if err != nil {
		observeCountersignedOutcome("replay_guard_error")
		h.logger.Error("replay guard insert failed", "error", err, "correlationId", correlationIDFrom(r.Context()))
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "could not record submission")
		return
	}
	observeReplayInsert(inserted)
	if !inserted {
		observeCountersignedOutcome("replay")
		h.writeError(w, r, http.StatusConflict, "replay_detected", "this countersigned token has already been accepted")
		return
	}

	innerHash, err := ct.InnerTokenSha256()
	if err != nil {
		observeCountersignedOutcome("malformed")
		h.writeError(w, r, http.StatusBadRequest, "malformed_token", "could not digest inner token")
		return
	}

	record, err := h.store.GetByHash(r.Context(), innerHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			observeCountersignedOutcome("record_not_found")
			h.writeError(w, r, http.StatusBadRequest, "invalid_token", "countersigned token rejected")
			return
		}
		observeCountersignedOutcome("record_not_found")
		h.logger.Error("token record lookup failed", "error", err, "correlationId", correlationIDFrom(r.Context()))
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "token record lookup failed")
		return
	}

	if err := h.store.UpdateStatus(r.Context(), record.ID, store.StatusConfirmed, h.clock()); err != nil && !errors.Is(err, store.ErrNotFound) {
		h.logger.Error("token record confirm failed", "error", err, "correlationId", correlationIDFrom(r.Context()))
	}

	observeCountersignedOutcome("accepted")
	h.writeJSON(w, http.StatusOK, countersignedResponse{
		InnerTokenHash: innerHash,
		RecordID:       record.ID,
		Status:         store.StatusConfirmed,
	})
}

// rejectCountersigned maps a ParseCountersigned failure to its outcome
// metric label and HTTP response. The AP's user-visible message never
// reveals which specific check failed, so a caller cannot distinguish a
// signature failure from a binding mismatch from a missing record.
func (h *Handler) rejectCountersigned(w http.ResponseWriter, r *http.Request, err error) {
	outcome := "invalid_token"
	switch {
	case errors.Is(err, wire.ErrMalformedToken):
		outcome = "malformed"
	case errors.Is(err, token.ErrUnsupportedVersion), errors.Is(err, token.ErrUnexpectedType):
		outcome = "malformed"
	case errors.Is(err, token.ErrIssuerMismatch):
		outcome = "issuer_mismatch"
	case errors.Is(err, token.ErrAudienceMismatch):
		outcome = "audience_mismatch"
	case errors.Is(err, token.ErrBindingMismatch):
		outcome = "binding_mismatch"
	case errors.Is(err, token.ErrSignatureInvalid):
		outcome = "signature_invalid"
	case errors.Is(err, token.ErrTokenExpired):
		outcome = "expired"
	}
	observeCountersignedOutcome(outcome)
	h.writeError(w, r, http.StatusBadRequest, "invalid_token", "countersigned token rejected")
}

// currentRecoveryProviderConfig returns the cached RP configuration,
// fetching and caching a fresh copy if none is cached yet or the cached one
// has expired.
func (h *Handler) currentRecoveryProviderConfig(ctx context.Context) (*config.RecoveryProvider, error) {
	if cached := h.rpConfig.Load(); cached != nil && !cached.IsExpired(h.clock()) {
		return cached, nil
	}
	fetched, err := h.fetcher.FetchRecoveryProvider(ctx, h.cfg.RPOrigin)
	if err != nil {
		observeConfigFetchOutcome("error")
		return nil, err
	}
	observeConfigFetchOutcome("success")
	h.rpConfig.Store(fetched)
	return fetched, nil
}
