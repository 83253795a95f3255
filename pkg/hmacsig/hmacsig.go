// Package hmacsig authenticates device bridge requests. Each request carries
// an HMAC-SHA256 of its raw body plus a millisecond timestamp; both must check
// out for the request to be accepted.
package hmacsig

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

const DefaultSkew = 120 * time.Second

var (
	ErrBadSignature   = errors.New("invalid signature")
	ErrStaleTimestamp = errors.New("stale timestamp")
)

// Sign computes the hex HMAC-SHA256 of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body under secret, in constant
// time.
func Verify(body []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	expected := Sign(body, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// IsFresh reports whether a millisecond timestamp lies within skew of now.
// The boundary is inclusive on both sides.
func IsFresh(timestampMs int64, now time.Time, skew time.Duration) bool {
	diff := now.UnixMilli() - timestampMs
	if diff < 0 {
		diff = -diff
	}
	return diff <= skew.Milliseconds()
}

// Verifier authenticates requests against per-device secrets, falling back to
// a shared default for devices without one.
type Verifier struct {
	defaultSecret string
	deviceSecrets map[string]string
	skew          time.Duration
	now           func() time.Time
}

// NewVerifier creates a Verifier. A zero skew falls back to DefaultSkew.
func NewVerifier(defaultSecret string, deviceSecrets map[string]string, skew time.Duration) *Verifier {
	if skew <= 0 {
		skew = DefaultSkew
	}
	return &Verifier{
		defaultSecret: defaultSecret,
		deviceSecrets: deviceSecrets,
		skew:          skew,
		now:           time.Now,
	}
}

// SecretFor returns the signing secret for a device.
func (v *Verifier) SecretFor(deviceID string) string {
	if s, ok := v.deviceSecrets[deviceID]; ok {
		return s
	}
	return v.defaultSecret
}

// Authenticate checks freshness first, then the signature, and returns the
// first failure.
func (v *Verifier) Authenticate(deviceID string, timestampMs int64, body []byte, signature string) error {
	if !IsFresh(timestampMs, v.now(), v.skew) {
		return ErrStaleTimestamp
	}
	if !Verify(body, signature, v.SecretFor(deviceID)) {
		return ErrBadSignature
	}
	return nil
}
