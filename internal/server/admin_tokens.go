package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/deleguard/recovery-go/internal/keycodec"
	"github.com/deleguard/recovery-go/internal/store"
	"github.com/deleguard/recovery-go/internal/token"
)

type issueTokenRequest struct {
	Username string `json:"username"`
	Audience string `json:"audience"`
	Options  byte   `json:"options"`
	Data     []byte `json:"data,omitempty"`
	Binding  []byte `json:"binding,omitempty"`
	TokenID  string `json:"tokenId,omitempty"` // optional, hex; caller-supplied id, otherwise generated
}

type issueTokenResponse struct {
	RecordID string `json:"recordId"`
	Token    string `json:"token"`
}

type renewTokenResponse struct {
	RecordID string `json:"recordId"`
	Token    string `json:"token"`
	State    string `json:"state"`
}

// handleIssueToken issues a new recovery token for a username, persists a
// provisional token record, and returns the encoded token alongside its
// record id. A request carrying an Idempotency-Key header that was already
// used replays the earlier response instead of issuing a second token.
func (h *Handler) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if h.replayIdempotent(w, r) {
		return
	}

	var req issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Username == "" {
		h.writeError(w, r, http.StatusBadRequest, "bad_request", "username is required")
		return
	}
	audience := req.Audience
	if audience == "" {
		audience = h.cfg.RPOrigin
	}

	id, idHex, err := resolveTokenID(req.TokenID)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	rt, err := h.issueRecoveryToken(r, id, req.Options, audience, req.Data, req.Binding)
	if err != nil {
		h.logger.Error("issue token failed", "error", err, "correlationId", correlationIDFrom(r.Context()))
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "could not issue token")
		return
	}

	now := h.clock()
	hash, err := rt.Sha256()
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "could not issue token")
		return
	}
	if err := h.store.CreateTokenRecord(r.Context(), store.TokenRecord{
		ID:        idHex,
		Issuer:    rt.Issuer(),
		Username:  req.Username,
		Hash:      hash,
		Status:    store.StatusProvisional,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		h.logger.Error("persist token record failed", "error", err, "correlationId", correlationIDFrom(r.Context()))
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "could not persist token record")
		return
	}

	tokensIssuedTotal.Inc()
	h.writeIdempotentJSON(w, r, http.StatusCreated, issueTokenResponse{RecordID: idHex, Token: rt.Encoded()})
}

// handleRenewToken issues a replacement token for an existing username and
// reports a composite state (newId,oldId) the caller can forward to the
// recovery provider as its opaque renewal state. A request carrying an
// Idempotency-Key header that was already used replays the earlier
// response instead of minting a second replacement token.
func (h *Handler) handleRenewToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if h.replayIdempotent(w, r) {
		return
	}

	var req struct {
		Username string `json:"username"`
		OldID    string `json:"oldRecordId"`
		Audience string `json:"audience"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Username == "" || req.OldID == "" {
		h.writeError(w, r, http.StatusBadRequest, "bad_request", "username and oldRecordId are required")
		return
	}
	if _, err := h.store.GetTokenRecord(r.Context(), req.OldID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, r, http.StatusNotFound, "record_not_found", "no token record with that id")
			return
		}
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "token record lookup failed")
		return
	}

	audience := req.Audience
	if audience == "" {
		audience = h.cfg.RPOrigin
	}

	id, idHex, err := resolveTokenID("")
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "could not generate token id")
		return
	}

	rt, err := h.issueRecoveryToken(r, id, token.NoOptions, audience, nil, nil)
	if err != nil {
		h.logger.Error("renew token failed", "error", err, "correlationId", correlationIDFrom(r.Context()))
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "could not issue replacement token")
		return
	}

	now := h.clock()
	hash, err := rt.Sha256()
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "could not issue replacement token")
		return
	}
	if err := h.store.CreateTokenRecord(r.Context(), store.TokenRecord{
		ID:        idHex,
		Issuer:    rt.Issuer(),
		Username:  req.Username,
		Hash:      hash,
		Status:    store.StatusProvisional,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		h.logger.Error("persist renewed token record failed", "error", err, "correlationId", correlationIDFrom(r.Context()))
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "could not persist token record")
		return
	}

	tokensIssuedTotal.Inc()
	h.writeIdempotentJSON(w, r, http.StatusCreated, renewTokenResponse{
		RecordID: idHex,
		Token:    rt.Encoded(),
		State:    idHex + "," + req.OldID,
	})
}

// handleInspectToken returns the stored token record named by the trailing
// path segment of /v1/recovery/tokens/{id}.
func (h *Handler) handleInspectToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/recovery/tokens/")
	if id == "" {
		h.writeError(w, r, http.StatusBadRequest, "bad_request", "token id is required")
		return
	}

	record, err := h.store.GetTokenRecord(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, r, http.StatusNotFound, "record_not_found", "no token record with that id")
			return
		}
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "token record lookup failed")
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

// issueRecoveryToken loads the current AP signing key and constructs a
// signed recovery token from it.
func (h *Handler) issueRecoveryToken(r *http.Request, id [16]byte, options byte, audience string, data, binding []byte) (*token.RecoveryToken, error) {
	current, err := h.store.GetCurrentSigningKey(r.Context())
	if err != nil {
		return nil, err
	}
	priv, err := keycodec.ParsePEMPrivateKey(current.PrivateKey)
	if err != nil {
		return nil, err
	}
	return token.New(priv, id, options, h.apOrigin(r), audience, data, binding)
}

// resolveTokenID generates a fresh token id, or validates and decodes a
// caller-supplied one.
func resolveTokenID(suppliedHex string) (id [16]byte, idHex string, err error) {
	if suppliedHex == "" {
		id, err = token.NewID()
		if err != nil {
			return id, "", err
		}
		return id, hexID(id), nil
	}
	raw, decodeErr := hex.DecodeString(suppliedHex)
	if decodeErr != nil || len(raw) != 16 {
		return id, "", token.ErrInvalidTokenID
	}
	copy(id[:], raw)
	return id, suppliedHex, nil
}

func hexID(id [16]byte) string { return hex.EncodeToString(id[:]) }
