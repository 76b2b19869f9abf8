package pagelsm

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildAndWrite is a test helper: builds a static B-tree over entries with
// the given degree, writes it starting at offset startOffset, and returns
// the raw bytes plus the root's absolute offset.
func buildAndWrite(t *testing.T, entries []leafEntry, degree int, startOffset int64) ([]byte, int64) {
	t.Helper()
	arena, root := buildBTree(entries, degree)

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	offset := startOffset
	rootOffset, err := writeBTreePostOrder(w, arena, root, &offset)
	require.NoError(t, err)
	require.NoError(t, w.Flush())
	return buf.Bytes(), rootOffset
}

func nodeAt(t *testing.T, raw []byte, startOffset, nodeOffset int64) *BTreeNode {
	t.Helper()
	i := nodeOffset - startOffset
	node, err := ReadBTreeNode(raw[i : i+PageSize])
	require.NoError(t, err)
	return node
}

func TestBuildBTreeSingleLeaf(t *testing.T) {
	entries := []leafEntry{{maxKey: 10, pageOffset: 1000}, {maxKey: 20, pageOffset: 2000}}
	raw, rootOffset := buildAndWrite(t, entries, 128, 5000)

	root := nodeAt(t, raw, 5000, rootOffset)
	require.True(t, root.IsLeaf())
	require.Equal(t, 2, root.KeyCount())
	require.Equal(t, int64(1000), root.ChildAt(0))
	require.Equal(t, int64(2000), root.ChildAt(1))
}

func TestBuildBTreeMultiLevel(t *testing.T) {
	// degree 2 => leaves hold at most 3 entries; force several internal levels.
	var entries []leafEntry
	for i := int64(0); i < 40; i++ {
		entries = append(entries, leafEntry{maxKey: i, pageOffset: 9000 + i*PageSize})
	}
	raw, rootOffset := buildAndWrite(t, entries, 2, 9000+40*PageSize)
	root := nodeAt(t, raw, 9000+40*PageSize, rootOffset)
	require.False(t, root.IsLeaf())

	// Descend for every key and confirm it lands on the right leaf offset.
	startOffset := int64(9000 + 40*PageSize)
	for i := int64(0); i < 40; i++ {
		offset := rootOffset
		for {
			n := nodeAt(t, raw, startOffset, offset)
			if n.IsLeaf() {
				break
			}
			offset = n.Descend(i)
		}
		n := nodeAt(t, raw, startOffset, offset)
		found := false
		for k := 0; k < n.KeyCount(); k++ {
			if n.KeyAt(k) == i {
				require.Equal(t, int64(9000)+i*PageSize, n.ChildAt(k))
				found = true
			}
		}
		require.True(t, found, "key %d not found via descent", i)
	}
}

func TestDescendFollowsFirstChildWithKeyGreaterOrEqual(t *testing.T) {
	entries := []leafEntry{{maxKey: 10, pageOffset: 100}, {maxKey: 20, pageOffset: 200}, {maxKey: 30, pageOffset: 300}}
	raw, rootOffset := buildAndWrite(t, entries, 128, 9999)
	root := nodeAt(t, raw, 9999, rootOffset)
	require.Equal(t, int64(300), root.ChildAt(root.KeyCount()-1))
	require.Equal(t, int64(100), root.Descend(5))
	require.Equal(t, int64(200), root.Descend(15))
	require.Equal(t, int64(300), root.Descend(25))
}
