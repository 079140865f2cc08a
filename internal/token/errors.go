package token

import "errors"

// Sentinel errors for the conditions enumerated by the protocol's error
// taxonomy. Validation failures wrap one of these so callers can test with
// errors.Is without depending on message text.
var (
	// ErrSignatureInvalid means no supplied public key verified the token's
	// signature over its canonical signing input.
	ErrSignatureInvalid = errors.New("delegated recovery: signature invalid")

	// ErrIssuerMismatch means the token's issuer did not match the expected
	// origin.
	ErrIssuerMismatch = errors.New("delegated recovery: issuer mismatch")

	// ErrAudienceMismatch means the token's audience did not match the
	// expected origin.
	ErrAudienceMismatch = errors.New("delegated recovery: audience mismatch")

	// ErrBindingMismatch means the token's binding bytes did not match the
	// expected binding.
	ErrBindingMismatch = errors.New("delegated recovery: binding mismatch")

	// ErrTokenExpired means the token's issuedTime fell outside the allowed
	// clock skew window.
	ErrTokenExpired = errors.New("delegated recovery: token expired")

	// ErrUnexpectedType means a token's type byte did not match what the
	// caller expected (e.g. a recovery token where a countersigned token
	// was required).
	ErrUnexpectedType = errors.New("delegated recovery: unexpected token type")

	// ErrUnsupportedVersion means a token's version byte was not the single
	// value this implementation understands.
	ErrUnsupportedVersion = errors.New("delegated recovery: unsupported token version")

	// ErrInvalidTokenID means a token id was not exactly 16 bytes.
	ErrInvalidTokenID = errors.New("delegated recovery: token id must be 16 bytes")
)
