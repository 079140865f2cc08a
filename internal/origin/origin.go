// Package origin validates RFC-6454 ASCII origins used to identify account
// and recovery providers in the delegated recovery protocol.
package origin

import (
	"errors"
	"regexp"
)

// ErrInvalidOrigin is returned when a string fails the origin grammar.
var ErrInvalidOrigin = errors.New("delegated recovery: invalid origin")

// grammar matches "https://host[:port]" with no path, query, or fragment:
// lower-case DNS labels, a 2-63 char alphabetic TLD, optional numeric port.
var grammar = regexp.MustCompile(`^https://(?:[a-z0-9-]{1,63}\.)+[a-z]{2,63}(?::[0-9]+)?$`)

// Validate returns nil if s is a well-formed https origin with no trailing
// slash, path, query, or fragment, and ErrInvalidOrigin otherwise.
func Validate(s string) error {
	if !grammar.MatchString(s) {
		return ErrInvalidOrigin
	}
	return nil
}

// IsValid reports whether s satisfies Validate.
func IsValid(s string) bool {
	return grammar.MatchString(s)
}
