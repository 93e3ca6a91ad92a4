// Package chash computes the content hashes the incremental checker
// compares to decide whether an artifact is stale.
package chash

import "crypto/md5" //nolint:gosec // content fingerprinting, not a security boundary

// Size is the length in bytes of a Hash.
const Size = md5.Size

// Hash is a fixed-size content fingerprint, stored verbatim inside Meta
// records.
type Hash [Size]byte

// Sum computes the hash of buf.
func Sum(buf []byte) Hash {
	return Hash(md5.Sum(buf)) //nolint:gosec
}

// Equal reports whether two hashes are byte-equal.
func (h Hash) Equal(other Hash) bool {
	return h == other
}

// IsZero reports whether h is the zero hash (i.e. never computed).
func (h Hash) IsZero() bool {
	return h == Hash{}
}
