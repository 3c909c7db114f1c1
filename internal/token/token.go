// Package token decodes the upstream access token without verifying its
// signature. The token is a bearer credential obtained out-of-band, so the
// payload is trusted as issued; only structure and expiry are checked.
package token

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RefreshLead is how long before expiry a token is considered stale. Staleness
// triggers a proactive refresh; it is not a hard expiry check.
const RefreshLead = 24 * time.Hour

// Claims holds the fields extracted from the token payload segment.
type Claims struct {
	Subject   string `json:"sub"`
	ClientID  string `json:"aud"`
	ExpiresAt int64  `json:"exp"`
}

// ExpireTime returns the expiry as a time.Time.
func (c *Claims) ExpireTime() time.Time {
	return time.Unix(c.ExpiresAt, 0)
}

// Decode splits the token on "." and parses the middle segment as a base64
// encoded JSON object. It returns an error for anything that is not a
// well-formed three-segment token; callers treat that as "session invalid",
// never as a fatal condition.
func Decode(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("token: empty token")
	}
	segments := strings.Split(raw, ".")
	if len(segments) != 3 {
		return nil, fmt.Errorf("token: expected 3 segments, got %d", len(segments))
	}
	payload, err := decodeSegment(segments[1])
	if err != nil {
		return nil, fmt.Errorf("token: decode payload failed: %w", err)
	}
	var claims Claims
	if err = json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("token: parse payload failed: %w", err)
	}
	return &claims, nil
}

// decodeSegment accepts both URL-safe and standard alphabets, padded or not.
func decodeSegment(segment string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.StdEncoding,
	} {
		if decoded, err := enc.DecodeString(segment); err == nil {
			return decoded, nil
		}
	}
	return nil, fmt.Errorf("invalid base64 segment")
}

// IsValid reports whether the token decodes and has not expired yet.
func IsValid(raw string) bool {
	claims, err := Decode(raw)
	if err != nil {
		return false
	}
	return claims.ExpireTime().After(time.Now())
}

// NeedsRefresh reports whether the token is absent, undecodable, or expires
// within RefreshLead. An already-expired token always needs a refresh.
func NeedsRefresh(raw string) bool {
	claims, err := Decode(raw)
	if err != nil {
		return true
	}
	return time.Until(claims.ExpireTime()) < RefreshLead
}
