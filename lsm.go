package pagelsm

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// lsmManager owns the per-level filename lists, the open SSTableReaders
// backing them, and the monotonic SST-suffix counter. It is owned by the
// engine facade, one instance per open database.
type lsmManager struct {
	dir          string
	levels       [][]string
	readers      map[string]*SSTableReader
	nextSuffix   uint64
	sizeRatio    int
	bitsPerEntry int
	btreeDegree  int
	pool         *BufferPool
	logger       *zap.Logger
}

func newLSMManager(dir string, pool *BufferPool, sizeRatio, bitsPerEntry, btreeDegree int, logger *zap.Logger) *lsmManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &lsmManager{
		dir:          dir,
		readers:      make(map[string]*SSTableReader),
		sizeRatio:    sizeRatio,
		bitsPerEntry: bitsPerEntry,
		btreeDegree:  btreeDegree,
		pool:         pool,
		logger:       logger,
	}
}

func (m *lsmManager) ensureLevel(l int) {
	for len(m.levels) <= l {
		m.levels = append(m.levels, nil)
	}
}

// registerExisting opens filename (already on disk, named by an earlier
// process) and appends it to level l, used while rebuilding from the
// metadata log on Open.
func (m *lsmManager) registerExisting(level int, filename string) error {
	m.ensureLevel(level)
	reader, err := OpenSSTableReader(filepath.Join(m.dir, filename), m.pool, m.bitsPerEntry, m.logger)
	if err != nil {
		return err
	}
	m.readers[filename] = reader
	m.levels[level] = append(m.levels[level], filename)
	return nil
}

func (m *lsmManager) setCounter(n uint64) { m.nextSuffix = n }
func (m *lsmManager) counter() uint64     { return m.nextSuffix }

// Flush packs entries (already sorted ascending by the memtable drain)
// into a new level-0 SST named with the next monotonic suffix, then
// triggers cascading compaction if level 0 has reached the size ratio.
func (m *lsmManager) Flush(entries []Entry) error {
	suffix := m.nextSuffix
	m.nextSuffix++
	filename := fmt.Sprintf("sst_%d.sst", suffix)
	path := filepath.Join(m.dir, filename)

	w := NewSSTableWriter(path, m.bitsPerEntry, m.btreeDegree)
	for _, e := range entries {
		w.Add(e.Key, e.Value)
	}
	if err := w.Finish(); err != nil {
		return err
	}

	reader, err := OpenSSTableReader(path, m.pool, m.bitsPerEntry, m.logger)
	if err != nil {
		return err
	}
	m.readers[filename] = reader
	m.ensureLevel(0)
	m.levels[0] = append(m.levels[0], filename)
	m.logger.Debug("flushed memtable to SST", zap.String("file", filename), zap.Int("entries", len(entries)))

	if len(m.levels[0]) == m.sizeRatio {
		return m.compact()
	}
	return nil
}

// compact begins a cascade of compactions at level 0.
func (m *lsmManager) compact() error {
	return m.mergeLevel(0)
}

type taggedEntry struct {
	key   int64
	value int64
	src   int
}

// mergeLevel compacts level L's SSTs (its length must equal the
// configured size ratio) into one new SST appended to level L+1, deletes
// the inputs, and recurses into L+1 if it has now also reached the ratio.
func (m *lsmManager) mergeLevel(l int) error {
	m.ensureLevel(l)
	if len(m.levels[l]) != m.sizeRatio {
		return nil
	}
	filenames := append([]string{}, m.levels[l]...)

	var all []taggedEntry
	for i, fn := range filenames {
		reader := m.readers[fn]
		entries, err := reader.AllEntries()
		if err != nil {
			return err
		}
		for _, e := range entries {
			all = append(all, taggedEntry{key: e.Key, value: e.Value, src: i})
		}
	}
	sort.SliceStable(all, func(a, b int) bool {
		if all[a].key != all[b].key {
			return all[a].key < all[b].key
		}
		return all[a].src < all[b].src
	})

	m.ensureLevel(l + 1)
	// Tombstones are dropped only when no older data lies below the output:
	// the destination is the deepest level and holds no SST yet.
	isBottom := l+1 == len(m.levels)-1 && len(m.levels[l+1]) == 0

	var merged []Entry
	for i := 0; i < len(all); {
		j := i
		for j < len(all) && all[j].key == all[i].key {
			j++
		}
		winner := all[j-1] // largest src among equal keys: the newer input wins
		if !isBottom || winner.value != Tombstone {
			merged = append(merged, Entry{Key: winner.key, Value: winner.value})
		}
		i = j
	}

	lo, hi := suffixRange(filenames[0])
	for _, fn := range filenames[1:] {
		lo2, hi2 := suffixRange(fn)
		if lo2 < lo {
			lo = lo2
		}
		if hi2 > hi {
			hi = hi2
		}
	}
	outFilename := fmt.Sprintf("sst_%d_%d.sst", lo, hi)
	outPath := filepath.Join(m.dir, outFilename)

	if len(merged) > 0 {
		w := NewSSTableWriter(outPath, m.bitsPerEntry, m.btreeDegree)
		for _, e := range merged {
			w.Add(e.Key, e.Value)
		}
		if err := w.Finish(); err != nil {
			return err
		}
	}

	for _, fn := range filenames {
		if reader, ok := m.readers[fn]; ok {
			reader.Close()
			delete(m.readers, fn)
		}
		if err := os.Remove(filepath.Join(m.dir, fn)); err != nil && !os.IsNotExist(err) {
			return wrapIO(err, "remove", fn)
		}
	}
	m.levels[l] = nil

	m.logger.Debug("compacted level", zap.Int("level", l), zap.Strings("inputs", filenames),
		zap.String("output", outFilename), zap.Bool("bottom", isBottom), zap.Int("outputEntries", len(merged)))

	if len(merged) == 0 {
		return nil
	}

	reader, err := OpenSSTableReader(outPath, m.pool, m.bitsPerEntry, m.logger)
	if err != nil {
		return err
	}
	m.readers[outFilename] = reader
	m.levels[l+1] = append(m.levels[l+1], outFilename)

	if len(m.levels[l+1]) == m.sizeRatio {
		return m.mergeLevel(l + 1)
	}
	return nil
}

var suffixDigits = regexp.MustCompile(`\d+`)

// suffixRange extracts the min and max integer suffix embedded in an SST
// filename. A flush-produced name has one number; a compaction-produced
// name has two, already the min/max of everything it subsumes.
func suffixRange(filename string) (lo, hi uint64) {
	matches := suffixDigits.FindAllString(filename, -1)
	lo = ^uint64(0)
	for _, m := range matches {
		n, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			continue
		}
		if n < lo {
			lo = n
		}
		if n > hi {
			hi = n
		}
	}
	if lo == ^uint64(0) {
		lo = 0
	}
	return lo, hi
}

// Get searches levels 0..N-1 in order; within a level, SSTs are scanned
// newest-first, since a level can transiently hold more than one SST
// before it reaches its compaction trigger.
func (m *lsmManager) Get(key int64, useBTree bool) (int64, bool, error) {
	for _, level := range m.levels {
		for i := len(level) - 1; i >= 0; i-- {
			reader := m.readers[level[i]]
			if !reader.MayContain(key) {
				continue
			}
			value, found, err := reader.Get(key, useBTree)
			if err != nil {
				return 0, false, err
			}
			if found {
				return value, true, nil
			}
		}
	}
	return 0, false, nil
}

// ScanSources returns, for every SST across every level, its entries
// within [start, end], ordered from highest to lowest priority: level 0
// before level 1 before level 2 ..., and within a level, newest SST
// before oldest. The engine merges these with the memtable's own range
// (highest priority of all) to resolve shadowing.
func (m *lsmManager) ScanSources(start, end int64) ([][]Entry, error) {
	var sources [][]Entry
	for _, level := range m.levels {
		for i := len(level) - 1; i >= 0; i-- {
			reader := m.readers[level[i]]
			entries, err := reader.Scan(start, end)
			if err != nil {
				return nil, err
			}
			sources = append(sources, entries)
		}
	}
	return sources, nil
}

// PersistedLevels returns the (level, filename) pairs to write to the
// metadata log: level ascending, filenames in stored (chronological)
// order within each level.
func (m *lsmManager) PersistedLevels() [][2]string {
	var out [][2]string
	for level, filenames := range m.levels {
		for _, fn := range filenames {
			out = append(out, [2]string{strconv.Itoa(level), fn})
		}
	}
	return out
}

// SSTableCount returns the total number of live SSTs across all levels.
func (m *lsmManager) SSTableCount() int {
	n := 0
	for _, level := range m.levels {
		n += len(level)
	}
	return n
}

// DiskUsage sums the byte size of every live SST file.
func (m *lsmManager) DiskUsage() (int64, error) {
	var total int64
	for _, level := range m.levels {
		for _, fn := range level {
			info, err := os.Stat(filepath.Join(m.dir, fn))
			if err != nil {
				return 0, wrapIO(err, "stat", fn)
			}
			total += info.Size()
		}
	}
	return total, nil
}

// Close releases every open SSTableReader's file descriptor.
func (m *lsmManager) Close() error {
	var firstErr error
	for fn, reader := range m.readers {
		if err := reader.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.readers, fn)
	}
	return firstErr
}

// describeLevels is a debug helper for logging.
func describeLevels(levels [][]string) string {
	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = fmt.Sprintf("L%d:%v", i, l)
	}
	return strings.Join(parts, " ")
}
