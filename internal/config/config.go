// Package config models the two provider configuration documents of the
// delegated account recovery protocol and fetches them over HTTPS from a
// provider's well-known endpoint.
package config

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deleguard/recovery-go/internal/keycodec"
	"github.com/deleguard/recovery-go/internal/origin"
)

// DefaultMaxAge is used when a fetch response carries no Cache-Control
// max-age directive.
const DefaultMaxAge = time.Hour

// WellKnownPath is the path segment, relative to a provider's origin, that
// serves its configuration document.
const WellKnownPath = "/.well-known/delegated-account-recovery/configuration"

// TokenStatusPath is the path segment that receives token-status callbacks.
const TokenStatusPath = "/.well-known/delegated-account-recovery/token-status"

// ErrMissingField is wrapped by a parse error naming the absent required
// JSON field.
var ErrMissingField = errors.New("delegated recovery: missing required configuration field")

// accountProviderWire is the exact wire shape of an AP configuration
// document.
type accountProviderWire struct {
	Issuer                   string   `json:"issuer"`
	SaveTokenReturn          string   `json:"save-token-return"`
	RecoverAccountReturn     string   `json:"recover-account-return"`
	PrivacyPolicy            string   `json:"privacy-policy"`
	Icon152px                string   `json:"icon-152px,omitempty"`
	TokensignPubkeysSecp256r1 []string `json:"tokensign-pubkeys-secp256r1"`
}

// recoveryProviderWire is the exact wire shape of an RP configuration
// document.
type recoveryProviderWire struct {
	Issuer                      string   `json:"issuer"`
	SaveToken                   string   `json:"save-token"`
	RecoverAccount              string   `json:"recover-account"`
	SaveTokenAsyncAPIIframe     *string  `json:"save-token-async-api-iframe,omitempty"`
	PrivacyPolicy               string   `json:"privacy-policy"`
	Icon152px                   string   `json:"icon-152px,omitempty"`
	TokenMaxSize                int      `json:"tokenMaxSize"`
	CountersignPubkeysSecp256r1 []string `json:"countersign-pubkeys-secp256r1"`
}

// AccountProvider is a parsed, immutable account provider configuration.
type AccountProvider struct {
	Issuer               string
	SaveTokenReturn      string
	RecoverAccountReturn string
	PrivacyPolicy        string
	Icon152px            string
	TokensignPubkeys     []*ecdsa.PublicKey
	ExpiresAt            time.Time
}

// RecoveryProvider is a parsed, immutable recovery provider configuration.
type RecoveryProvider struct {
	Issuer                  string
	SaveToken               string
	RecoverAccount          string
	SaveTokenAsyncAPIIframe *string
	PrivacyPolicy           string
	Icon152px               string
	TokenMaxSize            int
	CountersignPubkeys      []*ecdsa.PublicKey
	ExpiresAt               time.Time
}

// IsExpired reports whether the configuration's max-age has elapsed as of
// now.
func (c *AccountProvider) IsExpired(now time.Time) bool { return !now.Before(c.ExpiresAt) }

// IsExpired reports whether the configuration's max-age has elapsed as of
// now.
func (c *RecoveryProvider) IsExpired(now time.Time) bool { return !now.Before(c.ExpiresAt) }

// SigningKey returns the current (first-listed) token-signing public key, or
// nil if none were published.
func (c *AccountProvider) SigningKey() *ecdsa.PublicKey {
	if len(c.TokensignPubkeys) == 0 {
		return nil
	}
	return c.TokensignPubkeys[0]
}

// ParseAccountProvider parses and validates an AP configuration document,
// stamping ExpiresAt as fetchedAt+maxAge.
func ParseAccountProvider(body []byte, fetchedAt time.Time, maxAge time.Duration) (*AccountProvider, error) {
	var wire accountProviderWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("delegated recovery: parse account provider configuration: %w", err)
	}
	if wire.Issuer == "" {
		return nil, fmt.Errorf("%w: issuer", ErrMissingField)
	}
	wire.Issuer = strings.ToLower(wire.Issuer)
	if wire.SaveTokenReturn == "" {
		return nil, fmt.Errorf("%w: save-token-return", ErrMissingField)
	}
	if wire.RecoverAccountReturn == "" {
		return nil, fmt.Errorf("%w: recover-account-return", ErrMissingField)
	}
	if wire.PrivacyPolicy == "" {
		return nil, fmt.Errorf("%w: privacy-policy", ErrMissingField)
	}
	if len(wire.TokensignPubkeysSecp256r1) == 0 {
		return nil, fmt.Errorf("%w: tokensign-pubkeys-secp256r1", ErrMissingField)
	}
	if err := origin.Validate(wire.Issuer); err != nil {
		return nil, fmt.Errorf("issuer: %w", err)
	}

	keys, err := decodeKeys(wire.TokensignPubkeysSecp256r1)
	if err != nil {
		return nil, err
	}

	return &AccountProvider{
		Issuer:               wire.Issuer,
		SaveTokenReturn:      wire.SaveTokenReturn,
		RecoverAccountReturn: wire.RecoverAccountReturn,
		PrivacyPolicy:        wire.PrivacyPolicy,
		Icon152px:            wire.Icon152px,
		TokensignPubkeys:     keys,
		ExpiresAt:            fetchedAt.Add(maxAge),
	}, nil
}

// ParseRecoveryProvider parses and validates an RP configuration document,
// stamping ExpiresAt as fetchedAt+maxAge.
func ParseRecoveryProvider(body []byte, fetchedAt time.Time, maxAge time.Duration) (*RecoveryProvider, error) {
	var wire recoveryProviderWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("delegated recovery: parse recovery provider configuration: %w", err)
	}
	if wire.Issuer == "" {
		return nil, fmt.Errorf("%w: issuer", ErrMissingField)
	}
	wire.Issuer = strings.ToLower(wire.Issuer)
	if wire.SaveToken == "" {
		return nil, fmt.Errorf("%w: save-token", ErrMissingField)
	}
	if wire.RecoverAccount == "" {
		return nil, fmt.Errorf("%w: recover-account", ErrMissingField)
	}
	if wire.PrivacyPolicy == "" {
		return nil, fmt.Errorf("%w: privacy-policy", ErrMissingField)
	}
	if len(wire.CountersignPubkeysSecp256r1) == 0 {
		return nil, fmt.Errorf("%w: countersign-pubkeys-secp256r1", ErrMissingField)
	}
	if err := origin.Validate(wire.Issuer); err != nil {
		return nil, fmt.Errorf("issuer: %w", err)
	}

	keys, err := decodeKeys(wire.CountersignPubkeysSecp256r1)
	if err != nil {
		return nil, err
	}

	return &RecoveryProvider{
		Issuer:                  wire.Issuer,
		SaveToken:               wire.SaveToken,
		RecoverAccount:          wire.RecoverAccount,
		SaveTokenAsyncAPIIframe: wire.SaveTokenAsyncAPIIframe,
		PrivacyPolicy:           wire.PrivacyPolicy,
		Icon152px:               wire.Icon152px,
		TokenMaxSize:            wire.TokenMaxSize,
		CountersignPubkeys:      keys,
		ExpiresAt:               fetchedAt.Add(maxAge),
	}, nil
}

// MarshalAccountProvider re-emits an AP configuration as its canonical
// publishable JSON document.
func MarshalAccountProvider(c *AccountProvider) ([]byte, error) {
	wire := accountProviderWire{
		Issuer:               c.Issuer,
		SaveTokenReturn:      c.SaveTokenReturn,
		RecoverAccountReturn: c.RecoverAccountReturn,
		PrivacyPolicy:        c.PrivacyPolicy,
		Icon152px:            c.Icon152px,
	}
	for _, key := range c.TokensignPubkeys {
		encoded, err := keycodec.EncodeBase64PublicKey(key)
		if err != nil {
			return nil, err
		}
		wire.TokensignPubkeysSecp256r1 = append(wire.TokensignPubkeysSecp256r1, encoded)
	}
	return json.Marshal(wire)
}

func decodeKeys(encoded []string) ([]*ecdsa.PublicKey, error) {
	keys := make([]*ecdsa.PublicKey, 0, len(encoded))
	for i, e := range encoded {
		key, err := keycodec.DecodeBase64PublicKey(e)
		if err != nil {
			return nil, fmt.Errorf("public key %d: %w", i, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}
