package pagelsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBloomFilterNoFalseNegatives(t *testing.T) {
	bf := NewBloomFilter(DefaultNumEntries, DefaultBitsPerEntry)
	inserted := make([]int64, 0, 500)
	for i := int64(0); i < 500; i++ {
		key := i * 7919
		bf.Insert(key)
		inserted = append(inserted, key)
	}
	for _, key := range inserted {
		require.True(t, bf.Query(key), "key %d must never be a false negative", key)
	}
}

func TestBloomFilterSerializeRoundTrip(t *testing.T) {
	bf := NewBloomFilter(DefaultNumEntries, DefaultBitsPerEntry)
	bf.Insert(123)
	bf.Insert(456)

	buf := bf.Serialize()
	require.Len(t, buf, PageSize)

	decoded, err := ReadBloomFilter(buf, DefaultBitsPerEntry)
	require.NoError(t, err)
	require.True(t, decoded.Query(123))
	require.True(t, decoded.Query(456))
}

func TestReadBloomFilterRejectsWrongSize(t *testing.T) {
	_, err := ReadBloomFilter(make([]byte, 100), DefaultBitsPerEntry)
	require.Error(t, err)
}

func TestHashPairDerivesH2FromH1(t *testing.T) {
	h1, h2 := hashPair(42)
	require.Equal(t, splitmix64(h1), h2)
}
