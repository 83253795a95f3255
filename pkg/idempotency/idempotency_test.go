package idempotency

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildKey(t *testing.T) {
	t.Run("External Ref Present", func(t *testing.T) {
		key := BuildKey("EXT_GENERIC", "DEMO-1", "ignored", "2025-01-21T10:00:00Z")
		assert.Equal(t, "EXT_GENERIC:DEMO-1", key)
	})

	t.Run("Deterministic", func(t *testing.T) {
		a := BuildKey("MTN_UG", "", "You have received UGX 5,000", "2025-01-21T10:00:00Z")
		b := BuildKey("MTN_UG", "", "You have received UGX 5,000", "2025-01-21T10:00:00Z")
		assert.Equal(t, a, b)
		assert.Len(t, a, 64)
	})

	t.Run("Hash Changes With Any Field", func(t *testing.T) {
		base := BuildKey("MTN_UG", "", "raw", "2025-01-21T10:00:00Z")
		assert.NotEqual(t, base, BuildKey("AIRTEL_UG", "", "raw", "2025-01-21T10:00:00Z"))
		assert.NotEqual(t, base, BuildKey("MTN_UG", "", "raw2", "2025-01-21T10:00:00Z"))
		assert.NotEqual(t, base, BuildKey("MTN_UG", "", "raw", "2025-01-21T10:00:01Z"))
	})

	t.Run("Ref Switches Key Scheme", func(t *testing.T) {
		hashed := BuildKey("MTN_UG", "", "raw", "2025-01-21T10:00:00Z")
		scoped := BuildKey("MTN_UG", "ref-1", "raw", "2025-01-21T10:00:00Z")
		assert.NotEqual(t, hashed, scoped)
		assert.Equal(t, "MTN_UG:ref-1", scoped)
	})

	t.Run("Empty Inputs", func(t *testing.T) {
		// Absent fields behave as empty strings, never panic.
		key := BuildKey("", "", "", "")
		assert.Len(t, key, 64)
	})
}
