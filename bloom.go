package pagelsm

import "math"

// BloomFilter is a per-SST probabilistic membership summary that occupies
// exactly one 4096-byte page: one byte per slot, nonzero meaning "set".
// It never produces a false negative.
type BloomFilter struct {
	slots      [PageSize]byte
	numEntries int
	numHash    int
}

// NewBloomFilter builds a filter sized for numEntries target insertions at
// bitsPerEntry bits per entry. The slot vector is always exactly one page
// regardless of numEntries; bitsPerEntry only drives the hash count
// k = max(1, round(bitsPerEntry * ln 2)).
func NewBloomFilter(numEntries, bitsPerEntry int) *BloomFilter {
	k := int(math.Round(float64(bitsPerEntry) * math.Ln2))
	if k < 1 {
		k = 1
	}
	return &BloomFilter{numEntries: numEntries, numHash: k}
}

// splitmix64 is a fast integer avalanche mixer used to derive H1 from the
// raw key. H2 is fixed as H(H1); applying the same mixer twice gives H2 a
// distribution as good as H1's without a second hash family.
func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	x = x ^ (x >> 31)
	return x
}

// hashPair returns (H1, H2) for key: a primary integer hash H1 and
// H2 = H(H1).
func hashPair(key int64) (uint64, uint64) {
	h1 := splitmix64(uint64(key))
	h2 := splitmix64(h1)
	return h1, h2
}

// slotIndex computes hash_i = (H1 + i*H2) mod 4096.
func slotIndex(h1, h2 uint64, i int) uint64 {
	return (h1 + uint64(i)*h2) % PageSize
}

// Insert sets all k slots derived from key.
func (bf *BloomFilter) Insert(key int64) {
	h1, h2 := hashPair(key)
	for i := 0; i < bf.numHash; i++ {
		bf.slots[slotIndex(h1, h2, i)] = 1
	}
}

// Query returns false as soon as any of the k slots for key is unset, true
// otherwise. A true result is only probabilistic; a false result is exact.
func (bf *BloomFilter) Query(key int64) bool {
	h1, h2 := hashPair(key)
	for i := 0; i < bf.numHash; i++ {
		if bf.slots[slotIndex(h1, h2, i)] == 0 {
			return false
		}
	}
	return true
}

// Serialize returns the filter's raw 4096-byte slot vector.
func (bf *BloomFilter) Serialize() []byte {
	out := make([]byte, PageSize)
	copy(out, bf.slots[:])
	return out
}

// ReadBloomFilter decodes a filter from its raw 4096-byte slot vector. The
// hash count must be supplied since it is not itself serialised: the
// on-disk Bloom page is just the bytes; k is reconstructed from whatever
// bits-per-entry the SST was built with.
func ReadBloomFilter(buf []byte, bitsPerEntry int) (*BloomFilter, error) {
	if len(buf) != PageSize {
		return nil, wrapCorrupt("bloom: buffer must be %d bytes, got %d", PageSize, len(buf))
	}
	bf := NewBloomFilter(0, bitsPerEntry)
	copy(bf.slots[:], buf)
	return bf, nil
}
