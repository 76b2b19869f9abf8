package pagelsm

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"
)

// SSTableWriter accumulates (key, value) entries, which must arrive in
// ascending key order (guaranteed by the memtable flush and by the
// compaction merge, both of which produce monotonic sequences), and emits
// one immutable SST file on Finish.
type SSTableWriter struct {
	path         string
	entries      []pageEntry
	bitsPerEntry int
	btreeDegree  int
}

// NewSSTableWriter returns a writer that will produce path on Finish.
func NewSSTableWriter(path string, bitsPerEntry, btreeDegree int) *SSTableWriter {
	return &SSTableWriter{path: path, bitsPerEntry: bitsPerEntry, btreeDegree: btreeDegree}
}

// Add appends one entry. Entries must be added in ascending key order.
func (w *SSTableWriter) Add(key, value int64) {
	w.entries = append(w.entries, pageEntry{key: key, value: value})
}

// Len returns the number of entries added so far.
func (w *SSTableWriter) Len() int { return len(w.entries) }

// Finish packs the accumulated entries into pages, builds the Bloom filter
// and static B-tree, and writes the whole file atomically: the data is
// written to a ".tmp" sibling which is then renamed into place, so a
// reader never observes a partially written SST.
func (w *SSTableWriter) Finish() error {
	if len(w.entries) == 0 {
		return wrapCorrupt("sstable: cannot write an empty SST")
	}

	pages := packPages(w.entries)

	bloom := NewBloomFilter(len(w.entries), w.bitsPerEntry)
	for _, e := range w.entries {
		bloom.Insert(e.key)
	}

	dataStart := int64(SSTMetadataSize + PageSize)
	leaves := make([]leafEntry, len(pages))
	for i, p := range pages {
		leaves[i] = leafEntry{maxKey: p.EndingKey(), pageOffset: dataStart + int64(i)*PageSize}
	}
	arena, root := buildBTree(leaves, w.btreeDegree)

	tmpPath := w.path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return wrapIO(err, "create", tmpPath)
	}
	bw := bufio.NewWriter(file)

	header := make([]byte, SSTMetadataSize)
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(w.entries)))
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(pages)))
	binary.LittleEndian.PutUint64(header[8:16], uint64(w.entries[0].key))
	binary.LittleEndian.PutUint64(header[16:24], uint64(w.entries[len(w.entries)-1].key))
	if _, err := bw.Write(header); err != nil {
		file.Close()
		return wrapIO(err, "write", tmpPath)
	}

	if _, err := bw.Write(bloom.Serialize()); err != nil {
		file.Close()
		return wrapIO(err, "write", tmpPath)
	}

	for _, p := range pages {
		buf := make([]byte, PageSize)
		if err := p.Serialize(buf); err != nil {
			file.Close()
			return err
		}
		if _, err := bw.Write(buf); err != nil {
			file.Close()
			return wrapIO(err, "write", tmpPath)
		}
	}

	offset := dataStart + int64(len(pages))*PageSize
	if _, err := writeBTreePostOrder(bw, arena, root, &offset); err != nil {
		file.Close()
		return err
	}

	if err := bw.Flush(); err != nil {
		file.Close()
		return wrapIO(err, "flush", tmpPath)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return wrapIO(err, "sync", tmpPath)
	}
	if err := file.Close(); err != nil {
		return wrapIO(err, "close", tmpPath)
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		return wrapIO(err, "rename", tmpPath)
	}
	return nil
}

// packPages greedily fills 4096-byte pages from sorted entries.
func packPages(entries []pageEntry) []*Page {
	var pages []*Page
	cur := NewPage()
	for _, e := range entries {
		if !cur.AddEntry(e.key, e.value) {
			pages = append(pages, cur)
			cur = NewPage()
			cur.AddEntry(e.key, e.value)
		}
	}
	if cur.Len() > 0 {
		pages = append(pages, cur)
	}
	return pages
}

// SSTableReader opens an existing, immutable SST file for point lookup and
// range scan. All page and B-tree-node reads are routed through the
// shared BufferPool.
type SSTableReader struct {
	path            string
	file            *os.File
	pool            *BufferPool
	logger          *zap.Logger
	numEntries      int32
	numPages        int32
	startingKey     int64
	endingKey       int64
	bloom           *BloomFilter
	btreeRootOffset int64
	dataStart       int64
	dataEnd         int64
	pageStartKeys   []int64
}

// OpenSSTableReader opens path read-only and loads its fixed header and
// Bloom filter page into memory.
func OpenSSTableReader(path string, pool *BufferPool, bitsPerEntry int, logger *zap.Logger) (*SSTableReader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, wrapIO(err, "open", path)
	}

	header := make([]byte, SSTMetadataSize)
	if _, err := file.ReadAt(header, 0); err != nil {
		file.Close()
		return nil, wrapIO(err, "read header", path)
	}
	numEntries := int32(binary.LittleEndian.Uint32(header[0:4]))
	numPages := int32(binary.LittleEndian.Uint32(header[4:8]))
	if numEntries <= 0 || numPages <= 0 {
		file.Close()
		return nil, wrapCorrupt("sstable %s: non-positive numEntries=%d numPages=%d", path, numEntries, numPages)
	}
	startingKey := int64(binary.LittleEndian.Uint64(header[8:16]))
	endingKey := int64(binary.LittleEndian.Uint64(header[16:24]))

	bloomBuf := make([]byte, PageSize)
	if _, err := file.ReadAt(bloomBuf, SSTMetadataSize); err != nil {
		file.Close()
		return nil, wrapIO(err, "read bloom page", path)
	}
	bloom, err := ReadBloomFilter(bloomBuf, bitsPerEntry)
	if err != nil {
		file.Close()
		return nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, wrapIO(err, "stat", path)
	}

	dataStart := int64(SSTMetadataSize + PageSize)
	dataEnd := dataStart + int64(numPages)*PageSize
	rootOffset := stat.Size() - PageSize
	if rootOffset < dataEnd {
		file.Close()
		return nil, wrapCorrupt("sstable %s: file too small for declared page count", path)
	}

	r := &SSTableReader{
		path: path, file: file, pool: pool, logger: logger,
		numEntries: numEntries, numPages: numPages,
		startingKey: startingKey, endingKey: endingKey,
		bloom: bloom, btreeRootOffset: rootOffset,
		dataStart: dataStart, dataEnd: dataEnd,
	}

	r.pageStartKeys = make([]int64, numPages)
	for i := int32(0); i < numPages; i++ {
		buf := make([]byte, 8)
		if _, err := file.ReadAt(buf, dataStart+int64(i)*PageSize+4); err != nil {
			file.Close()
			return nil, wrapIO(err, "read page starting key", path)
		}
		r.pageStartKeys[i] = int64(binary.LittleEndian.Uint64(buf))
	}

	return r, nil
}

// Close releases the underlying file descriptor.
func (r *SSTableReader) Close() error {
	return wrapIO(r.file.Close(), "close", r.path)
}

// Filename returns the path this reader was opened from.
func (r *SSTableReader) Filename() string { return r.path }

// StartingKey and EndingKey are the SST's min/max key (tombstone keys
// included), per the header.
func (r *SSTableReader) StartingKey() int64 { return r.startingKey }
func (r *SSTableReader) EndingKey() int64   { return r.endingKey }

// MayContain consults the Bloom filter only; a false result proves key is
// absent from this SST, a true result requires a page search to confirm.
func (r *SSTableReader) MayContain(key int64) bool {
	return r.bloom.Query(key)
}

func (r *SSTableReader) pageID(offset int64) string {
	return fmt.Sprintf("%s:%d", r.path, offset)
}

func (r *SSTableReader) readPage(offset int64) (*PageReader, error) {
	id := r.pageID(offset)
	if cached, ok := r.pool.GetPage(id); ok {
		return ReadPage(cached)
	}
	buf := make([]byte, PageSize)
	if _, err := r.file.ReadAt(buf, offset); err != nil {
		return nil, wrapIO(err, "read page", r.path)
	}
	r.pool.InsertPage(id, buf)
	return ReadPage(buf)
}

func (r *SSTableReader) readBTreeNode(offset int64) (*BTreeNode, error) {
	id := r.pageID(offset)
	if cached, ok := r.pool.GetPage(id); ok {
		return ReadBTreeNode(cached)
	}
	buf := make([]byte, PageSize)
	if _, err := r.file.ReadAt(buf, offset); err != nil {
		return nil, wrapIO(err, "read btree node", r.path)
	}
	r.pool.InsertPage(id, buf)
	return ReadBTreeNode(buf)
}

// isDataPageOffset reports whether offset lands in the data-page region,
// which ends a B-tree descent.
func (r *SSTableReader) isDataPageOffset(offset int64) bool {
	return offset >= r.dataStart && offset < r.dataEnd
}

// descend walks the B-tree from the root to the data page that would hold
// key: follow the first child whose key >= target, or the trailing child
// if none qualify, recursing until the followed offset is a data page.
func (r *SSTableReader) descend(key int64) (int64, error) {
	offset := r.btreeRootOffset
	for !r.isDataPageOffset(offset) {
		node, err := r.readBTreeNode(offset)
		if err != nil {
			return 0, err
		}
		offset = node.Descend(key)
	}
	return offset, nil
}

// findPageBinary locates, via binary search over recorded per-page
// starting keys, the one page whose range could contain key.
func (r *SSTableReader) findPageBinary(key int64) (int64, bool) {
	idx := sort.Search(len(r.pageStartKeys), func(i int) bool {
		return r.pageStartKeys[i] > key
	})
	if idx == 0 {
		return 0, false
	}
	return r.dataStart + int64(idx-1)*PageSize, true
}

// Get searches the SST for key using binary search over pages (useBTree
// false) or B-tree descent (useBTree true), both followed by a directory
// binary search inside the landed page. Returns (value, found, error); a
// tombstone is surfaced as (Tombstone, true, nil) so the caller decides
// shadowing.
func (r *SSTableReader) Get(key int64, useBTree bool) (int64, bool, error) {
	if key < r.startingKey || key > r.endingKey {
		return 0, false, nil
	}

	var pageOffset int64
	if useBTree {
		off, err := r.descend(key)
		if err != nil {
			return 0, false, err
		}
		pageOffset = off
	} else {
		off, ok := r.findPageBinary(key)
		if !ok {
			return 0, false, nil
		}
		pageOffset = off
	}

	page, err := r.readPage(pageOffset)
	if err != nil {
		return 0, false, err
	}
	return page.Find(key)
}

// Scan returns all entries in [start, end] (tombstones included; the
// engine filters them at the merge layer) by descending the B-tree to the
// first page that could hold `start`, then walking pages sequentially
// until a key exceeds `end`.
func (r *SSTableReader) Scan(start, end int64) ([]Entry, error) {
	var out []Entry
	if end < r.startingKey || start > r.endingKey {
		return out, nil
	}

	firstOffset, err := r.descend(start)
	if err != nil {
		return nil, err
	}

	for offset := firstOffset; offset < r.dataEnd; offset += PageSize {
		page, err := r.readPage(offset)
		if err != nil {
			return nil, err
		}
		done := false
		for i := 0; i < page.NumEntries(); i++ {
			k, v, err := page.EntryAt(i)
			if err != nil {
				return nil, err
			}
			if k > end {
				done = true
				break
			}
			if k >= start {
				out = append(out, Entry{Key: k, Value: v})
			}
		}
		if done {
			break
		}
	}
	return out, nil
}

// AllEntries returns every (key, value) in the SST in ascending order,
// including tombstones, by walking every data page. Used by compaction's
// merge, which needs the full contents rather than a bounded range.
func (r *SSTableReader) AllEntries() ([]Entry, error) {
	out := make([]Entry, 0, r.numEntries)
	for offset := r.dataStart; offset < r.dataEnd; offset += PageSize {
		page, err := r.readPage(offset)
		if err != nil {
			return nil, err
		}
		for i := 0; i < page.NumEntries(); i++ {
			k, v, err := page.EntryAt(i)
			if err != nil {
				return nil, err
			}
			out = append(out, Entry{Key: k, Value: v})
		}
	}
	return out, nil
}
