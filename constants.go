package pagelsm

// Bit-exact on-disk constants. These are the defaults DefaultOptions()
// uses; Options itself allows overriding them for tests that want smaller
// fixtures, but the on-disk formats below always assume PageSize = 4096
// since the page/B-tree-node/Bloom-filter layouts are all sized to exactly
// one page.
const (
	// PageSize is the fixed size in bytes of a data page, a B-tree node,
	// and a Bloom-filter slot vector.
	PageSize = 4096

	// SSTMetadataSize is the size in bytes of the fixed SST header:
	// numEntries(4) + numPages(4) + startingKey(8) + endingKey(8).
	SSTMetadataSize = 24

	// pageMetaSize is the per-page prefix: numEntries(4) + startingKey(8) +
	// freeSpace(4).
	pageMetaSize = 16

	// pageDirEntrySize is one (key int64, value-offset int32) directory slot.
	pageDirEntrySize = 12

	// pageEntryFootprint is the bytes a single page.AddEntry call consumes:
	// 8 (key) + 4 (offset) + 8 (value).
	pageEntryFootprint = 20

	// DefaultBTreeDegree is the classical B-tree minimum degree t: nodes
	// hold between t-1 and 2t-1 keys.
	DefaultBTreeDegree = 128

	// DefaultBitsPerEntry is the Bloom filter's bits-per-entry parameter.
	DefaultBitsPerEntry = 12

	// DefaultNumEntries is a Bloom filter target entry count. It does not
	// affect the hash count k = max(1, round(bitsPerEntry * ln 2)), which
	// depends on bitsPerEntry alone.
	DefaultNumEntries = 340

	// Tombstone is the reserved sentinel value T marking a deleted key:
	// INT64_MIN + 5.
	Tombstone int64 = (-1 << 63) + 5

	// Absent is the sentinel returned by point lookups that find nothing.
	// Callers storing -1 as a real value cannot distinguish it from a miss;
	// this is a known, accepted limitation.
	Absent int64 = -1

	// DefaultLevelSizeRatio is the number of SSTs a level holds before it
	// is compacted into the next level.
	DefaultLevelSizeRatio = 2

	// DefaultBufferPoolCapacity is the number of 4096-byte pages an
	// engine's page cache holds at once.
	DefaultBufferPoolCapacity = 1024

	// DefaultMemtableThreshold is the number of Put/Del calls the memtable
	// accepts before it is flushed to a new level-0 SST.
	DefaultMemtableThreshold = 3
)
