package pagelsm

import (
	"bufio"
	"encoding/binary"
)

// leafEntry is one (page-max-key, page-offset) pair: the unit the static
// B-tree is built over, one per data page written to an SST.
type leafEntry struct {
	maxKey     int64
	pageOffset int64
}

// btreeNode is an in-memory build-time node. Leaf nodes' ptrs are already
// real file offsets into the data-page region (known up front, since data
// pages are written before the B-tree). Internal nodes' ptrs are arena
// indices into the node slice built by buildBTree, resolved to real file
// offsets only once the pointed-to child is actually written, in
// writeBTreePostOrder.
type btreeNode struct {
	leaf   bool
	keys   []int64
	ptrs   []int64
	maxKey int64
}

// buildBTree builds a static B-tree over entries (already sorted ascending
// by maxKey, one per data page) using minimum degree t. It is a bulk load:
// leaves are filled left to right with up to 2t-1 entries each, and each
// internal level groups up to 2t children under a node whose keys are
// copies of the max keys of all but its last child. Every entry stays in a
// leaf; this is not the node shape that node-by-node classical
// insert-with-split would produce, where a median key leaves its child.
// Returns the arena of all nodes and the index of the root.
func buildBTree(entries []leafEntry, degree int) ([]*btreeNode, int) {
	maxKeys := 2*degree - 1

	var level []*btreeNode
	for i := 0; i < len(entries); i += maxKeys {
		end := i + maxKeys
		if end > len(entries) {
			end = len(entries)
		}
		chunk := entries[i:end]
		node := &btreeNode{leaf: true}
		for _, e := range chunk {
			node.keys = append(node.keys, e.maxKey)
			node.ptrs = append(node.ptrs, e.pageOffset)
		}
		node.maxKey = chunk[len(chunk)-1].maxKey
		level = append(level, node)
	}

	arena := append([]*btreeNode{}, level...)
	// levelIdx holds the arena index of each node currently in `level`.
	levelIdx := make([]int, len(level))
	for i := range level {
		levelIdx[i] = i
	}

	for len(level) > 1 {
		maxChildren := 2 * degree
		var nextLevel []*btreeNode
		var nextIdx []int
		for i := 0; i < len(level); i += maxChildren {
			end := i + maxChildren
			if end > len(level) {
				end = len(level)
			}
			children := level[i:end]
			childArenaIdx := levelIdx[i:end]

			node := &btreeNode{leaf: false}
			for j := 0; j < len(children)-1; j++ {
				node.keys = append(node.keys, children[j].maxKey)
			}
			for _, idx := range childArenaIdx {
				node.ptrs = append(node.ptrs, int64(idx))
			}
			node.maxKey = children[len(children)-1].maxKey

			arena = append(arena, node)
			nextLevel = append(nextLevel, node)
			nextIdx = append(nextIdx, len(arena)-1)
		}
		level = nextLevel
		levelIdx = nextIdx
	}

	return arena, levelIdx[0]
}

// writeBTreePostOrder writes every node in the arena reachable from root to
// w, children before parents, and returns the root's file offset. offset is
// the running write cursor (the first byte past the last data page) and is
// advanced as nodes are written.
func writeBTreePostOrder(w *bufio.Writer, arena []*btreeNode, root int, offset *int64) (int64, error) {
	node := arena[root]

	var childOffsets []int64
	if node.leaf {
		childOffsets = node.ptrs
	} else {
		childOffsets = make([]int64, len(node.ptrs))
		for i, childArenaIdx := range node.ptrs {
			off, err := writeBTreePostOrder(w, arena, int(childArenaIdx), offset)
			if err != nil {
				return 0, err
			}
			childOffsets[i] = off
		}
	}

	buf := make([]byte, PageSize)
	serializeBTreeNode(node.keys, childOffsets, buf)
	if _, err := w.Write(buf); err != nil {
		return 0, wrapIO(err, "write", "btree node")
	}
	thisOffset := *offset
	*offset += PageSize
	return thisOffset, nil
}

// serializeBTreeNode writes keyCount(int32) | childCount(int32) |
// (childOffset int64, key int64) x keyCount | optional trailing childOffset
// | padding, into buf (exactly PageSize bytes, caller-allocated and zeroed).
func serializeBTreeNode(keys, childOffsets []int64, buf []byte) {
	keyCount := len(keys)
	childCount := len(childOffsets)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(keyCount))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(childCount))

	pos := 8
	for i := 0; i < keyCount; i++ {
		binary.LittleEndian.PutUint64(buf[pos:pos+8], uint64(childOffsets[i]))
		binary.LittleEndian.PutUint64(buf[pos+8:pos+16], uint64(keys[i]))
		pos += 16
	}
	if childCount > keyCount {
		binary.LittleEndian.PutUint64(buf[pos:pos+8], uint64(childOffsets[keyCount]))
	}
}

// BTreeNode is a decoded, read-only view over one 4096-byte B-tree node,
// used for descent during point lookup and range scan.
type BTreeNode struct {
	keyCount   int
	childCount int
	buf        []byte
}

// ReadBTreeNode decodes a node from a raw page buffer.
func ReadBTreeNode(buf []byte) (*BTreeNode, error) {
	if len(buf) != PageSize {
		return nil, wrapCorrupt("btree: buffer must be %d bytes, got %d", PageSize, len(buf))
	}
	keyCount := int(int32(binary.LittleEndian.Uint32(buf[0:4])))
	childCount := int(int32(binary.LittleEndian.Uint32(buf[4:8])))
	if keyCount < 0 || childCount < keyCount || childCount > keyCount+1 {
		return nil, wrapCorrupt("btree: invalid keyCount=%d childCount=%d", keyCount, childCount)
	}
	return &BTreeNode{keyCount: keyCount, childCount: childCount, buf: buf}, nil
}

// IsLeaf reports whether this node has no trailing child, matching a B-tree
// leaf's (offset,key) pairs with no structural extra pointer.
func (n *BTreeNode) IsLeaf() bool { return n.childCount == n.keyCount }

// KeyAt returns the i-th routing key.
func (n *BTreeNode) KeyAt(i int) int64 {
	pos := 8 + i*16 + 8
	return int64(binary.LittleEndian.Uint64(n.buf[pos : pos+8]))
}

// ChildAt returns the i-th child offset (there are childCount of them: one
// before each key, plus a trailing one when childCount > keyCount).
func (n *BTreeNode) ChildAt(i int) int64 {
	if i < n.keyCount {
		pos := 8 + i*16
		return int64(binary.LittleEndian.Uint64(n.buf[pos : pos+8]))
	}
	pos := 8 + n.keyCount*16
	return int64(binary.LittleEndian.Uint64(n.buf[pos : pos+8]))
}

// KeyCount returns the number of routing keys in the node.
func (n *BTreeNode) KeyCount() int { return n.keyCount }

// Descend returns the child offset to follow for target: the first child
// whose associated key is >= target, or the trailing child if every key is
// less than target.
func (n *BTreeNode) Descend(target int64) int64 {
	for i := 0; i < n.keyCount; i++ {
		if n.KeyAt(i) >= target {
			return n.ChildAt(i)
		}
	}
	return n.ChildAt(n.keyCount)
}

// FirstChildCovering returns the leftmost child offset whose subtree can
// contain keys >= from, used to seed a range scan. Identical rule to
// Descend; kept as a separate name for call-site clarity.
func (n *BTreeNode) FirstChildCovering(from int64) int64 {
	return n.Descend(from)
}
