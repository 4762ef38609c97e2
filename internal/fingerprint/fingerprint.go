// Package fingerprint derives content-addressed identities for uploaded
// resumes. The fingerprint is the dedupe and cache key for both cache tiers.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/jobstack/resume-parser/constants"
)

// Fingerprint is an opaque content-derived identity. Immutable once computed.
type Fingerprint struct {
	digest string
	kind   constants.Kind
}

// Compute hashes the raw bytes together with the declared kind. Identical
// bytes declared under different kinds produce distinct fingerprints, since
// they may route to different providers.
func Compute(data []byte, kind constants.Kind) Fingerprint {
	sum := sha256.Sum256(data)
	return Fingerprint{digest: hex.EncodeToString(sum[:]), kind: kind}
}

// Kind returns the declared kind the fingerprint was computed under.
func (f Fingerprint) Kind() constants.Kind { return f.kind }

// String returns the kind-qualified digest.
func (f Fingerprint) String() string {
	return string(f.kind) + ":" + f.digest
}

// Short returns a truncated digest for logging.
func (f Fingerprint) Short() string {
	if len(f.digest) > 16 {
		return f.digest[:16]
	}
	return f.digest
}

// RawKey is the Tier A (raw extraction) cache key.
func (f Fingerprint) RawKey() string { return "raw:" + f.String() }

// NormKey is the Tier B (normalized result) cache key.
func (f Fingerprint) NormKey() string { return "norm:" + f.String() }
