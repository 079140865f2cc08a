package server

import (
	"crypto/ecdsa"
	"fmt"
	"net/http"

	"github.com/deleguard/recovery-go/internal/config"
	"github.com/deleguard/recovery-go/internal/keycodec"
)

const (
	saveTokenReturnPath      = "/v1/recovery/save-token-return"
	recoverAccountReturnPath = "/v1/recovery/recover-account-return"
	privacyPolicyPath        = "/privacy-policy"
)

// handleConfiguration serves this account provider's configuration document
// at the well-known discovery path. The signing-key list is read fresh from
// the signing-key store on every request, current key first, so a rotation
// is visible immediately to any recovery provider that fetches it.
func (h *Handler) handleConfiguration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	current, err := h.store.GetCurrentSigningKey(r.Context())
	if err != nil {
		h.logger.Error("load current signing key failed", "error", err, "correlationId", correlationIDFrom(r.Context()))
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "no signing key configured")
		return
	}
	verification, err := h.store.ListVerificationKeys(r.Context())
	if err != nil {
		h.logger.Error("load verification keys failed", "error", err, "correlationId", correlationIDFrom(r.Context()))
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "configuration unavailable")
		return
	}

	currentPub, err := keycodec.ParsePEMPublicKey(current.PublicKey)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "configuration unavailable")
		return
	}
	pubKeys := []*ecdsa.PublicKey{currentPub}
	for _, key := range verification {
		if key.ID == current.ID {
			continue
		}
		pub, err := keycodec.ParsePEMPublicKey(key.PublicKey)
		if err != nil {
			h.logger.Error("parse stored public key failed", "error", err, "keyId", key.ID)
			continue
		}
		pubKeys = append(pubKeys, pub)
	}

	origin := h.apOrigin(r)
	doc := &config.AccountProvider{
		Issuer:               origin,
		SaveTokenReturn:      origin + saveTokenReturnPath,
		RecoverAccountReturn: origin + recoverAccountReturnPath,
		PrivacyPolicy:        origin + privacyPolicyPath,
		TokensignPubkeys:     pubKeys,
	}

	body, err := config.MarshalAccountProvider(doc)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "configuration unavailable")
		return
	}

	maxAge := h.cfg.ConfigMaxAge
	if maxAge <= 0 {
		maxAge = config.DefaultMaxAge
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds())))
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
