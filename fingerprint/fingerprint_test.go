package fingerprint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/sessionkit/fingerprint"
)

func TestComputeIPPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ip   string
		want string
	}{
		{"ipv4 truncated to /24", "10.0.0.5", "10.0.0.0/24"},
		{"ipv4 last octet dropped", "203.0.113.254", "203.0.113.0/24"},
		{"ipv6 truncated to /64", "2001:db8:1:2:3:4:5:6", "2001:db8:1:2::/64"},
		{"compressed ipv6", "2001:db8::1", "2001:db8::/64"},
		{"4-in-6 mapped treated as ipv4", "::ffff:10.0.0.5", "10.0.0.0/24"},
		{"unparseable yields empty", "not-an-ip", ""},
		{"empty yields empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fp := fingerprint.Compute(tt.ip, "agent")
			assert.Equal(t, tt.want, fp.IPPrefix)
		})
	}
}

func TestComputeUserAgentHash(t *testing.T) {
	t.Parallel()

	a := fingerprint.Compute("10.0.0.5", "Mozilla/5.0")
	b := fingerprint.Compute("10.0.0.5", "Mozilla/5.0")
	c := fingerprint.Compute("10.0.0.5", "curl/8.0")

	assert.Equal(t, a.UserAgentHash, b.UserAgentHash, "hash must be stable")
	assert.NotEqual(t, a.UserAgentHash, c.UserAgentHash)
	assert.Len(t, a.UserAgentHash, 32)

	empty := fingerprint.Compute("10.0.0.5", "")
	assert.Empty(t, empty.UserAgentHash)
}

func TestComputePrefixGranularity(t *testing.T) {
	t.Parallel()

	fp := fingerprint.Compute("10.0.113.5", "agent", fingerprint.WithIPv4PrefixBits(16))
	assert.Equal(t, "10.0.0.0/16", fp.IPPrefix)

	fp = fingerprint.Compute("2001:db8:1:2:3::", "agent", fingerprint.WithIPv6PrefixBits(48))
	assert.Equal(t, "2001:db8:1::/48", fp.IPPrefix)

	// Out-of-range values keep the defaults.
	fp = fingerprint.Compute("10.0.113.5", "agent", fingerprint.WithIPv4PrefixBits(0))
	assert.Equal(t, "10.0.113.0/24", fp.IPPrefix)
}

func TestValidateModes(t *testing.T) {
	t.Parallel()

	stored := fingerprint.Compute("10.0.0.5", "Mozilla/5.0")
	same := fingerprint.Compute("10.0.0.200", "Mozilla/5.0") // same /24
	moved := fingerprint.Compute("10.0.1.5", "Mozilla/5.0")  // different /24
	otherUA := fingerprint.Compute("10.0.0.5", "curl/8.0")

	t.Run("off never invalidates", func(t *testing.T) {
		assert.Equal(t, fingerprint.Match, fingerprint.Validate(stored, moved, fingerprint.ModeOff))
		assert.Equal(t, fingerprint.Match, fingerprint.Validate(stored, otherUA, fingerprint.ModeOff))
	})

	t.Run("same prefix matches", func(t *testing.T) {
		assert.Equal(t, fingerprint.Match, fingerprint.Validate(stored, same, fingerprint.ModeStrict))
	})

	t.Run("soft reports but never invalidates", func(t *testing.T) {
		assert.Equal(t, fingerprint.MismatchLogged, fingerprint.Validate(stored, moved, fingerprint.ModeSoft))
		assert.Equal(t, fingerprint.MismatchLogged, fingerprint.Validate(stored, otherUA, fingerprint.ModeSoft))
	})

	t.Run("strict always invalidates on mismatch", func(t *testing.T) {
		assert.Equal(t, fingerprint.MismatchInvalidated, fingerprint.Validate(stored, moved, fingerprint.ModeStrict))
		assert.Equal(t, fingerprint.MismatchInvalidated, fingerprint.Validate(stored, otherUA, fingerprint.ModeStrict))
	})

	t.Run("unknown mode behaves like soft", func(t *testing.T) {
		assert.Equal(t, fingerprint.MismatchLogged, fingerprint.Validate(stored, moved, fingerprint.Mode("bogus")))
	})
}

func TestFingerprintIsZero(t *testing.T) {
	t.Parallel()

	assert.True(t, fingerprint.Fingerprint{}.IsZero())
	assert.False(t, fingerprint.Compute("10.0.0.5", "agent").IsZero())
}
