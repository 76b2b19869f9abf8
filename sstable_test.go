package pagelsm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeZeroFile(path string, size int) error {
	return os.WriteFile(path, make([]byte, size), 0o644)
}

func writeTestSSTable(t *testing.T, dir string, name string, keys []int64, degree int) *SSTableReader {
	t.Helper()
	path := filepath.Join(dir, name)
	w := NewSSTableWriter(path, DefaultBitsPerEntry, degree)
	for _, k := range keys {
		w.Add(k, k*10)
	}
	require.NoError(t, w.Finish())

	r, err := OpenSSTableReader(path, NewBufferPool(64, nil), DefaultBitsPerEntry, nil)
	require.NoError(t, err)
	return r
}

func sequentialKeys(n int) []int64 {
	keys := make([]int64, n)
	for i := range keys {
		keys[i] = int64(i)
	}
	return keys
}

func TestSSTableGetBinarySearchAndBTreeAgree(t *testing.T) {
	dir := t.TempDir()
	keys := sequentialKeys(2000) // several data pages and a multi-level B-tree at a small degree
	r := writeTestSSTable(t, dir, "a.sst", keys, 4)
	defer r.Close()

	for _, target := range []int64{0, 1, 500, 1001, 1999} {
		binVal, binOK, err := r.Get(target, false)
		require.NoError(t, err)
		btVal, btOK, err := r.Get(target, true)
		require.NoError(t, err)

		require.True(t, binOK)
		require.True(t, btOK)
		require.Equal(t, target*10, binVal)
		require.Equal(t, target*10, btVal)
	}

	_, ok, err := r.Get(-1, false)
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = r.Get(-1, true)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSSTableHeaderBounds(t *testing.T) {
	dir := t.TempDir()
	r := writeTestSSTable(t, dir, "a.sst", []int64{10, 20, 30}, DefaultBTreeDegree)
	defer r.Close()
	require.Equal(t, int64(10), r.StartingKey())
	require.Equal(t, int64(30), r.EndingKey())
}

func TestSSTableMayContainNeverFalseNegative(t *testing.T) {
	dir := t.TempDir()
	keys := sequentialKeys(1000)
	r := writeTestSSTable(t, dir, "a.sst", keys, DefaultBTreeDegree)
	defer r.Close()

	for _, k := range keys {
		require.True(t, r.MayContain(k))
	}
}

func TestSSTableScanReturnsRangeInOrder(t *testing.T) {
	dir := t.TempDir()
	keys := sequentialKeys(500)
	r := writeTestSSTable(t, dir, "a.sst", keys, 4)
	defer r.Close()

	entries, err := r.Scan(100, 110)
	require.NoError(t, err)
	require.Len(t, entries, 11)
	for i, e := range entries {
		require.Equal(t, int64(100+i), e.Key)
		require.Equal(t, int64(100+i)*10, e.Value)
	}
}

func TestSSTableAllEntriesCoversEverything(t *testing.T) {
	dir := t.TempDir()
	keys := sequentialKeys(300)
	r := writeTestSSTable(t, dir, "a.sst", keys, DefaultBTreeDegree)
	defer r.Close()

	entries, err := r.AllEntries()
	require.NoError(t, err)
	require.Len(t, entries, len(keys))
	for i, e := range entries {
		require.Equal(t, keys[i], e.Key)
	}
}

func TestSSTableWriterRejectsEmpty(t *testing.T) {
	dir := t.TempDir()
	w := NewSSTableWriter(filepath.Join(dir, "empty.sst"), DefaultBitsPerEntry, DefaultBTreeDegree)
	require.Error(t, w.Finish())
}

func TestOpenSSTableReaderRejectsCorruptHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.sst")
	require.NoError(t, writeZeroFile(path, SSTMetadataSize+PageSize*2))

	_, err := OpenSSTableReader(path, NewBufferPool(8, nil), DefaultBitsPerEntry, nil)
	require.Error(t, err)
}
