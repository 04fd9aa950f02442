// Package fingerprint computes and validates lightweight client-identity
// fingerprints for session hijacking detection.
//
// A fingerprint combines a bit-level truncated network prefix (IPv4 /24,
// IPv6 /64 by default, tunable per deployment) with a stable SHA-256 hash of
// the raw user-agent string. Truncation uses net/netip rather than string
// splitting, so compressed and 4-in-6 mapped notations normalize correctly.
//
// Three validation modes are supported: ModeOff skips comparison, ModeSoft
// reports mismatches so callers can log them while keeping the session, and
// ModeStrict invalidates the session on any mismatch.
//
//	fp := fingerprint.Compute("203.0.113.7", r.UserAgent())
//	switch fingerprint.Validate(stored, fp, fingerprint.ModeStrict) {
//	case fingerprint.Match:
//	    // keep session
//	case fingerprint.MismatchInvalidated:
//	    // discard session, issue a fresh anonymous one
//	}
package fingerprint
