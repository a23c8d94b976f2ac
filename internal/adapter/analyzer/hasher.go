package analyzer

import (
	"fmt"
	"hash/fnv"
)

// Hasher maps a normalized key to its index bucket.
type Hasher interface {
	Hash(key string) uint64

	// Name identifies the function in persisted index metadata.
	Name() string
}

// FNVHasher hashes keys with 64-bit FNV-1a, optionally truncated to Bits bits.
type FNVHasher struct {
	Bits int
}

// NewFNVHasher returns an FNV-1a hasher keeping the low bits of the hash.
// bits outside 1..64 select the full 64-bit width.
func NewFNVHasher(bits int) *FNVHasher {
	if bits <= 0 || bits > 64 {
		bits = 64
	}
	return &FNVHasher{Bits: bits}
}

// Hash returns the (possibly truncated) FNV-1a hash of key.
func (h *FNVHasher) Hash(key string) uint64 {
	f := fnv.New64a()
	f.Write([]byte(key))
	sum := f.Sum64()
	if h.Bits < 64 {
		sum &= (uint64(1) << uint(h.Bits)) - 1
	}
	return sum
}

// Name returns e.g. "fnv1a64/20".
func (h *FNVHasher) Name() string {
	return fmt.Sprintf("fnv1a64/%d", h.Bits)
}
