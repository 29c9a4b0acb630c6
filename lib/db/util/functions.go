package util

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// --------------------------------------------------------------------------
// General Utility Functions
// --------------------------------------------------------------------------

// GenerateSeed creates a random seed for internal hash distribution
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// time based fallback, only used if the system random source fails
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// UintKey is an efficient key type based on uint64 for internal hash representation
type UintKey uint64

const (
	offset64 = 14695981039346656037
	prime64  = 1099511628211
)

// HashString generates a hash value for a string with a seed
// This function uses the FNV-1a hash algorithm, which is fast and has good distribution
func HashString(s string, seed uint64) UintKey {
	hash := uint64(offset64) ^ seed
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}
	return UintKey(hash)
}

// HashRowKey hashes a (table, row) address with FNV-1a over its 12 little endian bytes.
// Consecutive row ids of one table spread over all shards.
func HashRowKey(table uint32, row uint64, seed uint64) UintKey {
	hash := uint64(offset64) ^ seed
	for i := 0; i < 4; i++ {
		hash ^= uint64(byte(table >> (8 * i)))
		hash *= prime64
	}
	for i := 0; i < 8; i++ {
		hash ^= uint64(byte(row >> (8 * i)))
		hash *= prime64
	}
	return UintKey(hash)
}

// ShardIndex maps a hashed key onto one of n shards
func ShardIndex(key UintKey, n int) int {
	// Shift right by 7 bits to use higher-quality bits for distribution
	return int((uint64(key) >> 7) % uint64(n))
}
