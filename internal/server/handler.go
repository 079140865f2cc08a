// Package server exposes the delegated account recovery provider surface
// over HTTP: the unauthenticated protocol endpoints an RP and end-user
// browser reach (configuration discovery, token-status callback,
// countersigned-token submission) and the bearer-JWT protected admin API an
// operator uses to issue, renew, and inspect recovery tokens.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/deleguard/recovery-go/internal/appconfig"
	"github.com/deleguard/recovery-go/internal/authz"
	"github.com/deleguard/recovery-go/internal/config"
	"github.com/deleguard/recovery-go/internal/replay"
	"github.com/deleguard/recovery-go/internal/store"
)

type contextKey string

const contextKeyCorrelationID contextKey = "correlationId"

const headerCorrelationID = "X-Correlation-Id"

// headerIdempotencyKey is the client-supplied key an admin mutation can be
// retried under without issuing a second token; see replayIdempotent and
// writeIdempotentJSON.
const headerIdempotencyKey = "Idempotency-Key"

// idempotencyTTL bounds how long a cached admin mutation response remains
// replayable before the same key is treated as fresh again.
const idempotencyTTL = 24 * time.Hour

// Handler wires the HTTP endpoints of the delegated recovery provider
// surface using net/http.
type Handler struct {
	cfg       appconfig.Config
	store     store.Store
	guard     replay.Guard
	authority *authz.Authority
	fetcher   *config.Fetcher
	logger    *slog.Logger
	clock     func() time.Time
	router    *http.ServeMux

	rpConfig atomic.Pointer[config.RecoveryProvider]
}

// New builds a Handler from its collaborators and registers every route.
func New(cfg appconfig.Config, st store.Store, guard replay.Guard, authority *authz.Authority, fetcher *config.Fetcher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if fetcher == nil {
		fetcher = config.NewFetcher(nil)
	}
	h := &Handler{
		cfg:       cfg,
		store:     st,
		guard:     guard,
		authority: authority,
		fetcher:   fetcher,
		logger:    logger,
		clock:     func() time.Time { return time.Now().UTC() },
		router:    http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

// Router returns the handler's http.ServeMux with every route registered.
func (h *Handler) Router() *http.ServeMux { return h.router }

// MetricsRouter returns a minimal mux exposing only the Prometheus scrape
// endpoint, intended for the separate metrics listen address so the
// protocol and admin surfaces are never reachable from it.
func (h *Handler) MetricsRouter() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h.public("/metrics", http.HandlerFunc(h.handleMetrics)))
	return mux
}

// route registers handler at pattern on the router, wrapped with the
// common middleware, tagging request metrics with pattern rather than the
// concrete request path so a path segment like a token id never becomes a
// label value.
func (h *Handler) route(pattern string, handler http.Handler) {
	h.router.Handle(pattern, h.public(pattern, handler))
}

func (h *Handler) registerRoutes() {
	h.route(config.WellKnownPath, http.HandlerFunc(h.handleConfiguration))
	h.route(config.TokenStatusPath, http.HandlerFunc(h.handleTokenStatus))
	h.route("/v1/recovery/countersigned", http.HandlerFunc(h.handleCountersigned))

	h.route("/v1/recovery/tokens", h.requireAdmin(http.HandlerFunc(h.handleIssueToken)))
	h.route("/v1/recovery/tokens/renew", h.requireAdmin(http.HandlerFunc(h.handleRenewToken)))
	h.route("/v1/recovery/tokens/", h.requireAdmin(http.HandlerFunc(h.handleInspectToken)))
	h.route("/v1/recovery/keys/rotate", h.requireAdmin(http.HandlerFunc(h.handleRotateKey)))

	h.route("/healthz", http.HandlerFunc(h.handleHealthz))
	h.route("/readyz", http.HandlerFunc(h.handleReadyz))
	h.route("/metrics", http.HandlerFunc(h.handleMetrics))
}

type responseEnvelope struct {
	Data  any            `json:"data,omitempty"`
	Error *errorEnvelope `json:"error,omitempty"`
}

type errorEnvelope struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId"`
}

// public wraps next with the middleware common to every route: a
// correlation id, the mandatory security headers, request logging and
// metrics, a timeout, and panic recovery. Routes that also require admin
// authentication layer requireAdmin underneath this. pattern is the route
// pattern next was registered under, used as the metrics label instead of
// the request's concrete path.
func (h *Handler) public(pattern string, next http.Handler) http.Handler {
	return h.loggingMiddleware(pattern, h.timeoutMiddleware(h.securityHeaders(h.recoverPanic(next))))
}

func (h *Handler) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := strings.TrimSpace(r.Header.Get(headerCorrelationID))
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		w.Header().Set(headerCorrelationID, correlationID)
		w.Header().Set("Strict-Transport-Security", "max-age=3600000; includeSubDomains")
		w.Header().Set("X-Frame-Options", "DENY")
		if r.URL.Path != config.WellKnownPath {
			w.Header().Set("Cache-Control", "no-store, must-revalidate")
		}
		ctx := context.WithValue(r.Context(), contextKeyCorrelationID, correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic recovered", "panic", rec, "correlationId", correlationIDFrom(r.Context()))
				h.writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	payload, err := json.Marshal(responseEnvelope{Data: data})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	payload, err := json.Marshal(responseEnvelope{Error: &errorEnvelope{
		Code:          code,
		Message:       message,
		CorrelationID: correlationIDFrom(r.Context()),
	}})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

// replayIdempotent reports whether the request's Idempotency-Key header
// names a cached response from an earlier admin mutation and, if so, writes
// that exact response and returns true. A caller that gets true back must
// not run the mutation again.
func (h *Handler) replayIdempotent(w http.ResponseWriter, r *http.Request) bool {
	key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	if key == "" {
		return false
	}
	cached, ok := h.store.Recall(r.Context(), idempotencyStoreKey(r, key))
	if !ok {
		return false
	}
	for k, v := range cached.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
	return true
}

// writeIdempotentJSON writes data as a JSON envelope exactly as writeJSON
// does, and additionally remembers the response under the request's
// Idempotency-Key header, if any, so a retried mutation replays it instead
// of running again.
func (h *Handler) writeIdempotentJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	payload, err := json.Marshal(responseEnvelope{Data: data})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)

	key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	if key == "" {
		return
	}
	if err := h.store.Remember(r.Context(), idempotencyStoreKey(r, key), store.StoredResponse{
		StatusCode: status,
		Body:       payload,
		Headers:    map[string]string{"Content-Type": "application/json"},
		ExpiresAt:  h.clock().Add(idempotencyTTL),
	}); err != nil {
		h.logger.Error("idempotency cache store failed", "error", err, "correlationId", correlationIDFrom(r.Context()))
	}
}

func idempotencyStoreKey(r *http.Request, key string) string {
	return r.URL.Path + ":" + key
}

func correlationIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyCorrelationID).(string); ok {
		return v
	}
	return ""
}

// apOrigin resolves this account provider's own issuer origin: the
// configured override if set, or one derived from the request's Host
// header, consistent with a deployment that terminates TLS at a reverse
// proxy in front of this service.
func (h *Handler) apOrigin(r *http.Request) string {
	if h.cfg.APOrigin != "" {
		return h.cfg.APOrigin
	}
	return fmt.Sprintf("https://%s", r.Host)
}
