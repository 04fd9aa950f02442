package fingerprint

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/netip"
)

// Fingerprint is a low-entropy summary of client identity used to detect
// probable session theft: a truncated network prefix plus a stable hash of
// the raw user-agent string.
type Fingerprint struct {
	IPPrefix      string `json:"ip_prefix"`
	UserAgentHash string `json:"user_agent_hash"`
}

// Mode controls how fingerprint mismatches are treated.
type Mode string

const (
	// ModeOff skips comparison entirely.
	ModeOff Mode = "off"
	// ModeSoft keeps the session on mismatch but reports it for logging,
	// tolerating NAT and mobile IP churn.
	ModeSoft Mode = "soft"
	// ModeStrict invalidates the session on any mismatch.
	ModeStrict Mode = "strict"
)

// Outcome is the result of validating an observed fingerprint against a
// stored one.
type Outcome uint8

const (
	Match Outcome = iota
	MismatchLogged
	MismatchInvalidated
)

const (
	// DefaultIPv4PrefixBits truncates IPv4 addresses to their first 3 octets.
	DefaultIPv4PrefixBits = 24
	// DefaultIPv6PrefixBits truncates IPv6 addresses to their first 4 groups.
	DefaultIPv6PrefixBits = 64
)

type config struct {
	v4bits int
	v6bits int
}

// Option tunes prefix granularity.
type Option func(*config)

// WithIPv4PrefixBits overrides the IPv4 truncation length (1-32).
func WithIPv4PrefixBits(bits int) Option {
	return func(c *config) {
		if bits >= 1 && bits <= 32 {
			c.v4bits = bits
		}
	}
}

// WithIPv6PrefixBits overrides the IPv6 truncation length (1-128).
func WithIPv6PrefixBits(bits int) Option {
	return func(c *config) {
		if bits >= 1 && bits <= 128 {
			c.v6bits = bits
		}
	}
}

// Compute derives a fingerprint from the client IP and raw user-agent
// string. The IP is truncated at the bit level through a real address parser
// so compressed and mixed IPv6 notations are handled correctly; unparseable
// addresses yield an empty prefix rather than an error, since a fingerprint
// is advisory, not authentication.
func Compute(ip, userAgent string, opts ...Option) Fingerprint {
	cfg := config{v4bits: DefaultIPv4PrefixBits, v6bits: DefaultIPv6PrefixBits}
	for _, opt := range opts {
		opt(&cfg)
	}

	return Fingerprint{
		IPPrefix:      ipPrefix(ip, cfg),
		UserAgentHash: hashUserAgent(userAgent),
	}
}

// Validate compares a stored fingerprint against the observed one under the
// given mode. Comparison is constant-time. Unknown modes behave like
// ModeSoft: observable, never destructive.
func Validate(stored, observed Fingerprint, mode Mode) Outcome {
	if mode == ModeOff {
		return Match
	}

	ipEqual := constantTimeEqual(stored.IPPrefix, observed.IPPrefix)
	uaEqual := constantTimeEqual(stored.UserAgentHash, observed.UserAgentHash)
	if ipEqual && uaEqual {
		return Match
	}

	if mode == ModeStrict {
		return MismatchInvalidated
	}
	return MismatchLogged
}

// IsZero reports whether the fingerprint carries no identity at all.
func (f Fingerprint) IsZero() bool {
	return f.IPPrefix == "" && f.UserAgentHash == ""
}

func ipPrefix(ip string, cfg config) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ""
	}
	addr = addr.Unmap()

	bits := cfg.v6bits
	if addr.Is4() {
		bits = cfg.v4bits
	}

	prefix, err := addr.Prefix(bits)
	if err != nil {
		return ""
	}
	return prefix.String()
}

// hashUserAgent returns the first 16 bytes of the SHA-256 of the raw
// user-agent string as a 32-character hex string.
func hashUserAgent(userAgent string) string {
	if userAgent == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(userAgent))
	return hex.EncodeToString(sum[:16])
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
