package pagelsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPageAddEntryRejectsOverflow(t *testing.T) {
	p := NewPage()
	n := 0
	for p.AddEntry(int64(n), int64(n)*10) {
		n++
	}
	require.Greater(t, n, 0)
	require.Equal(t, n, p.Len())
	require.False(t, p.AddEntry(int64(n), 0))
}

func TestPageSerializeRoundTrip(t *testing.T) {
	p := NewPage()
	keys := []int64{3, 7, 9, 42}
	for _, k := range keys {
		require.True(t, p.AddEntry(k, k*100))
	}

	buf := make([]byte, PageSize)
	require.NoError(t, p.Serialize(buf))

	r, err := ReadPage(buf)
	require.NoError(t, err)
	require.Equal(t, len(keys), r.NumEntries())
	require.Equal(t, keys[0], r.StartingKey())

	for i, k := range keys {
		gotKey, gotVal, err := r.EntryAt(i)
		require.NoError(t, err)
		require.Equal(t, k, gotKey)
		require.Equal(t, k*100, gotVal)
	}
}

func TestPageFindBinarySearch(t *testing.T) {
	p := NewPage()
	for _, k := range []int64{1, 4, 8, 16, 32} {
		require.True(t, p.AddEntry(k, k+1))
	}
	buf := make([]byte, PageSize)
	require.NoError(t, p.Serialize(buf))
	r, err := ReadPage(buf)
	require.NoError(t, err)

	v, ok, err := r.Find(16)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(17), v)

	_, ok, err = r.Find(5)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReadPageRejectsWrongSize(t *testing.T) {
	_, err := ReadPage(make([]byte, 10))
	require.Error(t, err)
}
