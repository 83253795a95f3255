// Package idempotency derives stable, content-addressed identifiers for
// inbound transaction events so repeated deliveries collapse to one record.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
)

// BuildKey returns the idempotency key for an inbound event.
//
// When externalRef is present the key is "provider:externalRef", which keeps
// the key human-traceable and provider-scoped. Otherwise the key is the hex
// sha256 of "provider|rawText|occurredAtIso", a content fingerprint for
// sources without stable references. Absent inputs are treated as empty
// strings; identical inputs always produce identical keys.
func BuildKey(provider, externalRef, rawText, occurredAtIso string) string {
	if externalRef != "" {
		return provider + ":" + externalRef
	}
	sum := sha256.Sum256([]byte(provider + "|" + rawText + "|" + occurredAtIso))
	return hex.EncodeToString(sum[:])
}
