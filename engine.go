package pagelsm

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const metadataLogName = "lsmtree.log"

// Engine is the public, single-process embedded key-value store. It is not
// safe for concurrent use from multiple goroutines: callers serialize
// access externally.
type Engine struct {
	dir       string
	opts      *Options
	logger    *zap.Logger
	memtable  *Memtable
	lsm       *lsmManager
	pool      *BufferPool
	useBTree  bool
	closed    bool
}

// Open opens (creating if necessary) the database rooted at dir, replaying
// its metadata log to rediscover existing SSTs. opts may be nil, in which
// case DefaultOptions() is used; logger may be nil, in which case logging
// is disabled.
func Open(dir string, opts *Options, logger *zap.Logger) (*Engine, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	opts = opts.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wrapIO(err, "mkdir", dir)
	}

	pool := NewBufferPool(opts.BufferPoolCapacity, logger)
	lsm := newLSMManager(dir, pool, opts.LevelSizeRatio, opts.BloomBitsPerEntry, opts.BTreeDegree, logger)

	e := &Engine{
		dir:      dir,
		opts:     opts,
		logger:   logger,
		memtable: NewMemtable(),
		lsm:      lsm,
		pool:     pool,
		useBTree: opts.UseBTree,
	}

	if err := e.loadMetadataLog(); err != nil {
		return nil, err
	}

	e.logger.Info("opened database", zap.String("dir", dir), zap.Int("sstables", lsm.SSTableCount()))
	return e, nil
}

// loadMetadataLog replays dir/lsmtree.log, if present, registering every
// previously persisted SST and restoring the suffix counter.
func (e *Engine) loadMetadataLog() error {
	path := filepath.Join(e.dir, metadataLogName)
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return wrapIO(err, "open", path)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ",", 2)
		if len(parts) != 2 {
			return wrapCorrupt("lsmtree.log: malformed line %q", line)
		}
		if first {
			if parts[0] != "counter" {
				return wrapCorrupt("lsmtree.log: expected counter line, got %q", line)
			}
			n, err := strconv.ParseUint(parts[1], 10, 64)
			if err != nil {
				return wrapCorrupt("lsmtree.log: invalid counter %q", parts[1])
			}
			e.lsm.setCounter(n)
			first = false
			continue
		}
		level, err := strconv.Atoi(parts[0])
		if err != nil {
			return wrapCorrupt("lsmtree.log: invalid level %q", parts[0])
		}
		if err := e.lsm.registerExisting(level, parts[1]); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return wrapIO(err, "read", path)
	}
	return nil
}

// Put inserts or overwrites key with value, flushing the memtable to a new
// level-0 SST once it reaches the configured threshold.
func (e *Engine) Put(key, value int64) error {
	if e.closed {
		return errors.WithMessage(ErrInvalidArgument, "pagelsm: engine is closed")
	}
	e.memtable.Put(key, value)
	return e.maybeFlush()
}

// Del marks key as deleted by writing the tombstone sentinel.
func (e *Engine) Del(key int64) error {
	if e.closed {
		return errors.WithMessage(ErrInvalidArgument, "pagelsm: engine is closed")
	}
	e.memtable.Del(key)
	return e.maybeFlush()
}

func (e *Engine) maybeFlush() error {
	if e.memtable.Size() < int64(e.opts.MemtableThreshold) {
		return nil
	}
	entries := e.memtable.All()
	if err := e.lsm.Flush(entries); err != nil {
		return err
	}
	e.memtable.Clear()
	return nil
}

// Get looks up key, checking the memtable first and then each SST level,
// newest data first throughout. It returns Absent (-1) if key is not
// present or has been deleted.
func (e *Engine) Get(key int64) (int64, error) {
	if e.closed {
		return Absent, errors.WithMessage(ErrInvalidArgument, "pagelsm: engine is closed")
	}
	if value, ok := e.memtable.Get(key); ok {
		if value == Tombstone {
			return Absent, nil
		}
		return value, nil
	}

	value, found, err := e.lsm.Get(key, e.useBTree)
	if err != nil {
		return Absent, err
	}
	if !found || value == Tombstone {
		return Absent, nil
	}
	return value, nil
}

// Scan returns every live (key, value) pair with start <= key <= end, in
// ascending key order, merging the memtable and every SST with newest-write-
// wins shadowing. Returns ErrInvalidArgument if start > end.
func (e *Engine) Scan(start, end int64) ([]Entry, error) {
	if e.closed {
		return nil, errors.WithMessage(ErrInvalidArgument, "pagelsm: engine is closed")
	}
	if start > end {
		return nil, errors.WithMessagef(ErrInvalidArgument, "pagelsm: scan start %d > end %d", start, end)
	}

	sources := [][]Entry{e.memtable.Scan(start, end)}
	lsmSources, err := e.lsm.ScanSources(start, end)
	if err != nil {
		return nil, err
	}
	sources = append(sources, lsmSources...)

	return mergeEntries(sources), nil
}

// mergeEntries resolves shadowing across sources ordered from highest to
// lowest priority (each individually ascending by key, possibly overlapping
// in key range with one another): the first source to mention a key wins.
// Tombstone winners are dropped from the result.
func mergeEntries(sources [][]Entry) []Entry {
	seen := make(map[int64]int64)
	order := make([]int64, 0)
	for _, src := range sources {
		for _, e := range src {
			if _, ok := seen[e.Key]; ok {
				continue
			}
			seen[e.Key] = e.Value
			order = append(order, e.Key)
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	out := make([]Entry, 0, len(order))
	for _, k := range order {
		if v := seen[k]; v != Tombstone {
			out = append(out, Entry{Key: k, Value: v})
		}
	}
	return out
}

// SetUseBTree switches the lookup strategy point reads use: B-tree descent
// when true, binary search over page starting keys when false. Both return
// identical results; this is exposed for testing and for callers who want
// to measure the difference.
func (e *Engine) SetUseBTree(use bool) { e.useBTree = use }

// Stats summarizes the engine's current on-disk footprint. This is not part
// of the on-disk format and carries no durability guarantee; it exists to
// give callers (and the demo program) visibility into compaction behavior.
type Stats struct {
	MemtableSize int64
	SSTableCount int
	LevelCounts  []int
	DiskBytes    int64
}

// Stats reports the current memtable size, per-level SST counts, and total
// on-disk bytes used by live SSTs.
func (e *Engine) Stats() (Stats, error) {
	diskBytes, err := e.lsm.DiskUsage()
	if err != nil {
		return Stats{}, err
	}
	levelCounts := make([]int, len(e.lsm.levels))
	for i, level := range e.lsm.levels {
		levelCounts[i] = len(level)
	}
	return Stats{
		MemtableSize: e.memtable.Size(),
		SSTableCount: e.lsm.SSTableCount(),
		LevelCounts:  levelCounts,
		DiskBytes:    diskBytes,
	}, nil
}

// Close flushes a non-empty memtable to a final SST, writes the metadata
// log atomically, and releases every open SST file descriptor and the
// buffer pool. The engine still does not guarantee durability against a
// crash between writes; only the state as of a clean Close is recoverable.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	if e.memtable.Size() > 0 {
		entries := e.memtable.All()
		if err := e.lsm.Flush(entries); err != nil {
			return err
		}
		e.memtable.Clear()
	}

	if err := e.writeMetadataLog(); err != nil {
		return err
	}
	if err := e.lsm.Close(); err != nil {
		return err
	}
	e.pool.Clear()
	e.logger.Info("closed database", zap.String("dir", e.dir))
	return nil
}

// writeMetadataLog writes dir/lsmtree.log atomically: the data is written
// to a ".tmp" sibling, flushed and synced, then renamed into place, so a
// crash mid-write never leaves a corrupt log behind.
func (e *Engine) writeMetadataLog() error {
	path := filepath.Join(e.dir, metadataLogName)
	tmpPath := path + ".tmp"

	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return wrapIO(err, "create", tmpPath)
	}
	w := bufio.NewWriter(file)

	if _, err := w.WriteString("counter," + strconv.FormatUint(e.lsm.counter(), 10) + "\n"); err != nil {
		file.Close()
		return wrapIO(err, "write", tmpPath)
	}
	for _, pair := range e.lsm.PersistedLevels() {
		if _, err := w.WriteString(pair[0] + "," + pair[1] + "\n"); err != nil {
			file.Close()
			return wrapIO(err, "write", tmpPath)
		}
	}

	if err := w.Flush(); err != nil {
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
	return wrapIO(os.Rename(tmpPath, path), "rename", tmpPath)
}
