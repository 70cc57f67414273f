package ranger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired marks a bearer token whose exp claim is in the past.
var ErrTokenExpired = errors.New("bearer token expired")

// InspectToken checks a bearer token's expiry without verifying its
// signature. The admin server stays the authority on validity; this is a
// pre-flight warning so a run does not spend its single pass on a
// credential that is already stale. An empty token passes.
func InspectToken(raw string, now time.Time) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return fmt.Errorf("token is not a decodable JWT: %w", err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return fmt.Errorf("token carries an unreadable exp claim: %w", err)
	}
	if exp == nil {
		return nil
	}
	if now.After(exp.Time) {
		return fmt.Errorf("%w at %s", ErrTokenExpired, exp.Time.UTC().Format(time.RFC3339))
	}
	return nil
}
