package fabrik

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// DigestLen is the length of a content identifier: a SHA-256 digest,
// hex-encoded.
const DigestLen = 64

// Digest is a canonical content identifier (64 lowercase hex characters).
type Digest string

// ParseDigest validates and canonicalizes a caller-supplied identifier.
// It accepts exactly DigestLen hex characters in either case and returns
// the lowercase form used as a path component, so lookups behave the same
// on case-sensitive and case-insensitive filesystems.
func ParseDigest(s string) (Digest, error) {
	if len(s) != DigestLen {
		return "", fmt.Errorf("%w: got %d characters, want %d", ErrInvalidDigest, len(s), DigestLen)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return "", fmt.Errorf("%w: non-hex character %q at offset %d", ErrInvalidDigest, c, i)
		}
	}
	return Digest(strings.ToLower(s)), nil
}

// Sum returns the digest of data. Callers that want true content
// addressing store under Sum(data).
func Sum(data []byte) Digest {
	h := sha256.Sum256(data)
	return Digest(hex.EncodeToString(h[:]))
}

func (d Digest) String() string { return string(d) }

// Shard returns the shard directory component (first two characters).
func (d Digest) Shard() string { return string(d[:2]) }

// Rest returns the filename component (everything after the shard).
func (d Digest) Rest() string { return string(d[2:]) }
