package tokens

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var expiresInPattern = regexp.MustCompile(`^(\d+)\s*(ms|s|m|h|d|w|y)?$`)

// ExpiryOf resolves when a pair stops being usable. The access token "exp"
// claim wins; the token is not verified, only decoded. Without a claim the
// ExpiresIn hint is applied to issuedAt. A zero time means unknown.
func ExpiryOf(p Pair, issuedAt time.Time) time.Time {
	if exp, ok := jwtExpiry(p.AccessToken); ok {
		return exp
	}
	if d, err := ParseExpiresIn(p.ExpiresIn); err == nil && d > 0 {
		return issuedAt.Add(d)
	}
	return time.Time{}
}

func jwtExpiry(raw string) (time.Time, bool) {
	if strings.Count(raw, ".") != 2 {
		return time.Time{}, false
	}
	claims := jwtlib.MapClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// ParseExpiresIn parses the login expiry hint format ("1y", "30d", "12h",
// "15m", "45s", "500ms", bare seconds).
func ParseExpiresIn(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	m := expiresInPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid expires_in %q", s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid expires_in %q: %w", s, err)
	}
	unit := map[string]time.Duration{
		"ms": time.Millisecond,
		"":   time.Second,
		"s":  time.Second,
		"m":  time.Minute,
		"h":  time.Hour,
		"d":  24 * time.Hour,
		"w":  7 * 24 * time.Hour,
		"y":  8766 * time.Hour, // 365.25 days
	}[m[2]]
	return time.Duration(n) * unit, nil
}
