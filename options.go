package pagelsm

// Options configures an Engine. Zero-value fields are filled in with their
// documented defaults by Open; callers normally start from DefaultOptions
// and override only what a test or caller cares about.
type Options struct {
	// MemtableThreshold is the number of Put/Del calls the memtable accepts
	// before it is flushed to a new level-0 SST.
	MemtableThreshold int

	// LevelSizeRatio R is the number of SSTs a level holds before it is
	// cascaded into the next level.
	LevelSizeRatio int

	// BTreeDegree is the minimum degree t of the static per-SST B-tree
	// index.
	BTreeDegree int

	// BloomBitsPerEntry controls the Bloom filter's false-positive rate via
	// k = max(1, round(BloomBitsPerEntry * ln 2)) hash functions.
	BloomBitsPerEntry int

	// BufferPoolCapacity is the number of 4096-byte pages the engine's
	// page cache holds.
	BufferPoolCapacity int

	// UseBTree selects, for point lookups, descending the static B-tree
	// (true) over binary search across the recorded page starting keys
	// (false). Either path returns identical results; this only changes
	// the I/O pattern. DefaultOptions sets it to true; normalize leaves it
	// as given, so an Options literal that omits it selects binary search.
	UseBTree bool
}

// DefaultOptions returns the engine's default configuration.
func DefaultOptions() *Options {
	return &Options{
		MemtableThreshold:  DefaultMemtableThreshold,
		LevelSizeRatio:     DefaultLevelSizeRatio,
		BTreeDegree:        DefaultBTreeDegree,
		BloomBitsPerEntry:  DefaultBitsPerEntry,
		BufferPoolCapacity: DefaultBufferPoolCapacity,
		UseBTree:           true,
	}
}

// normalize fills in zero-valued fields with their defaults, so a caller can
// build an Options literal naming only the fields it wants to override.
func (o *Options) normalize() *Options {
	out := *o
	if out.MemtableThreshold <= 0 {
		out.MemtableThreshold = DefaultMemtableThreshold
	}
	if out.LevelSizeRatio <= 0 {
		out.LevelSizeRatio = DefaultLevelSizeRatio
	}
	if out.BTreeDegree <= 0 {
		out.BTreeDegree = DefaultBTreeDegree
	}
	if out.BloomBitsPerEntry <= 0 {
		out.BloomBitsPerEntry = DefaultBitsPerEntry
	}
	if out.BufferPoolCapacity <= 0 {
		out.BufferPoolCapacity = DefaultBufferPoolCapacity
	}
	return &out
}
