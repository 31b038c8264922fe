// Package util contains internal helpers (grid math, coordinate hashing).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

// HashCoord mixes a tile coordinate and a seed into a 64-bit FNV-1a hash.
// The result is stable across runs and platforms, so it can drive
// procedural content and fault injection deterministically.
func HashCoord(seed uint64, x, z int) uint64 {
	h := uint64(fnvOffset64)
	h = fnv64aUint64(h, seed)
	h = fnv64aUint64(h, uint64(int64(x)))
	h = fnv64aUint64(h, uint64(int64(z)))
	return h
}

// Unit maps a hash to [0, 1).
func Unit(h uint64) float64 {
	return float64(h>>11) / (1 << 53)
}

const (
	fnvOffset64 = 1469598103934665603
	fnvPrime64  = 1099511628211
)

// fnv64aUint64 folds the 8 little-endian bytes of u into h without allocating.
func fnv64aUint64(h, u uint64) uint64 {
	for i := 0; i < 8; i++ {
		h ^= uint64(byte(u))
		h *= fnvPrime64
		u >>= 8
	}
	return h
}
