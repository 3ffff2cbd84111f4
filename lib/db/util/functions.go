package util

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// --------------------------------------------------------------------------
// Seeds and Hashing
// --------------------------------------------------------------------------

// GenerateSeed returns a random seed for the row hashing of an engine
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// UintKey is the hash of a row key
type UintKey uint64

const (
	fnvOffset64 = 14695981039346656037
	fnvPrime64  = 1099511628211
)

// HashString hashes s with seeded FNV-1a. Rows are raw bytes, so s is hashed
// byte by byte and not rune by rune.
func HashString(s string, seed uint64) UintKey {
	hash := uint64(fnvOffset64) ^ seed
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= fnvPrime64
	}
	return UintKey(hash)
}

// NodeID derives a stable, non-zero RAFT replica id from a node name.
// Every process of a cluster must derive the same id for the same name.
func NodeID(name string) uint64 {
	if id := uint64(HashString(name, 0)); id != 0 {
		return id
	}
	return 1
}
