package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"net/http"

	"github.com/deleguard/recovery-go/internal/keycodec"
	"github.com/deleguard/recovery-go/internal/store"
)

type rotateKeyResponse struct {
	NewKeyID     string `json:"newKeyId"`
	RetiredKeyID string `json:"retiredKeyId,omitempty"`
}

// handleRotateKey generates a new P-256 signing key, adds it to the
// rotation as the new current key, and retires the previous current key.
// The retired key remains valid for verification until it expires, so
// tokens signed just before the rotation still validate.
func (h *Handler) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "could not generate signing key")
		return
	}
	privPEM, err := keycodec.EncodePEMPrivateKey(priv)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "could not encode signing key")
		return
	}
	pubPEM, err := keycodec.EncodePEMPublicKey(&priv.PublicKey)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "could not encode signing key")
		return
	}

	now := h.clock()
	previous, prevErr := h.store.GetCurrentSigningKey(r.Context())
	hasPrevious := prevErr == nil

	newKeyID := fmt.Sprintf("key-%d", now.UnixNano())
	if err := h.store.AddSigningKey(r.Context(), store.SigningKey{
		ID:          newKeyID,
		PrivateKey:  privPEM,
		PublicKey:   pubPEM,
		CreatedAt:   now,
		ActivatedAt: now,
		ExpiresAt:   now.AddDate(5, 0, 0),
	}); err != nil {
		h.logger.Error("add signing key failed", "error", err, "correlationId", correlationIDFrom(r.Context()))
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "could not store new signing key")
		return
	}

	resp := rotateKeyResponse{NewKeyID: newKeyID}
	if hasPrevious {
		if err := h.store.RetireSigningKey(r.Context(), previous.ID, now); err != nil {
			h.logger.Error("retire signing key failed", "error", err, "keyId", previous.ID, "correlationId", correlationIDFrom(r.Context()))
		} else {
			resp.RetiredKeyID = previous.ID
		}
	}

	h.writeJSON(w, http.StatusOK, resp)
}
