// Package payload generates the randomized request bodies the load
// drivers send: keys, property maps, and large binary blobs.
package payload

import (
	"encoding/hex"
	"math/rand"

	"golang.org/x/crypto/blake2b"
)

const letters = "abcdefghijklmnopqrstuvwxyz"
const alphanumeric = "abcdefghijklmnopqrstuvwxyz0123456789"

// RandomString returns n random lowercase letters. The charset is
// URL-safe so the result can be embedded in paths without escaping.
func RandomString(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rng.Intn(len(letters))]
	}
	return string(b)
}

// RandomID returns prefix plus 8 random alphanumeric characters,
// e.g. RandomID(rng, "store-") -> "store-x7k2m9q1".
func RandomID(rng *rand.Rand, prefix string) string {
	b := make([]byte, 8)
	for i := range b {
		b[i] = alphanumeric[rng.Intn(len(alphanumeric))]
	}
	return prefix + string(b)
}

// Blob returns sizeKB kibibytes of random text bytes.
func Blob(rng *rand.Rand, sizeKB int) []byte {
	b := make([]byte, sizeKB*1024)
	for i := range b {
		b[i] = letters[rng.Intn(len(letters))]
	}
	return b
}

// Digest returns the hex BLAKE2b-256 digest of data. The simple driver
// remembers the digest at upload time and compares it on blob reads.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
