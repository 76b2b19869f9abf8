package pagelsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemtablePutGet(t *testing.T) {
	m := NewMemtable()
	m.Put(5, 50)
	m.Put(1, 10)
	m.Put(9, 90)

	v, ok := m.Get(5)
	require.True(t, ok)
	require.Equal(t, int64(50), v)

	_, ok = m.Get(100)
	require.False(t, ok)
}

func TestMemtablePutOverwriteDoesNotDuplicate(t *testing.T) {
	m := NewMemtable()
	m.Put(1, 10)
	m.Put(1, 20)
	require.Equal(t, 1, len(m.All()))
	v, ok := m.Get(1)
	require.True(t, ok)
	require.Equal(t, int64(20), v)
}

func TestMemtableSizeCountsCallsNotKeys(t *testing.T) {
	m := NewMemtable()
	m.Put(1, 10)
	m.Put(1, 20)
	m.Del(1)
	require.Equal(t, int64(3), m.Size())
}

func TestMemtableDelWritesTombstone(t *testing.T) {
	m := NewMemtable()
	m.Put(1, 10)
	m.Del(1)
	v, ok := m.Get(1)
	require.True(t, ok)
	require.Equal(t, Tombstone, v)
}

func TestMemtableScanReturnsAscendingRangeIncludingTombstones(t *testing.T) {
	m := NewMemtable()
	for _, k := range []int64{5, 1, 9, 3, 7} {
		m.Put(k, k*10)
	}
	m.Del(3)

	got := m.Scan(2, 7)
	require.Equal(t, []Entry{
		{Key: 3, Value: Tombstone},
		{Key: 5, Value: 50},
		{Key: 7, Value: 70},
	}, got)
}

func TestMemtableClearResetsSizeAndContents(t *testing.T) {
	m := NewMemtable()
	m.Put(1, 10)
	m.Put(2, 20)
	m.Clear()
	require.Equal(t, int64(0), m.Size())
	require.Empty(t, m.All())
}

func TestMemtableAllIsAscending(t *testing.T) {
	m := NewMemtable()
	keys := []int64{50, 10, 90, 30, 70, 20, 60, 40, 80}
	for _, k := range keys {
		m.Put(k, k)
	}
	all := m.All()
	for i := 1; i < len(all); i++ {
		require.Less(t, all[i-1].Key, all[i].Key)
	}
}
