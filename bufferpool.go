package pagelsm

import "go.uber.org/zap"

// bufferPoolSlot is one (pageID, payload, reference bit) entry. Slots live
// in a fixed-size ring (a fixed-capacity ring buffer with a hand index);
// an empty slot has pageID == "".
type bufferPoolSlot struct {
	pageID  string
	payload [PageSize]byte
	ref     bool
}

// BufferPool is the fixed-capacity page cache every SST read path of an
// engine routes through; Open builds one pool per engine. It is not safe
// for concurrent use by multiple goroutines: the engine is single-threaded,
// so no locking is required.
type BufferPool struct {
	slots    []bufferPoolSlot
	index    map[string]int
	count    int
	hand     int
	capacity int
	logger   *zap.Logger
}

// NewBufferPool constructs a pool with room for capacity pages.
func NewBufferPool(capacity int, logger *zap.Logger) *BufferPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BufferPool{
		slots:    make([]bufferPoolSlot, capacity),
		index:    make(map[string]int, capacity),
		capacity: capacity,
		logger:   logger,
	}
}

// GetPage returns a copy of the cached payload for pageID and sets its
// reference bit, or (nil, false) on a cache miss. A miss is never an
// error: the caller falls back to a disk read.
func (bp *BufferPool) GetPage(pageID string) ([]byte, bool) {
	idx, ok := bp.index[pageID]
	if !ok {
		return nil, false
	}
	bp.slots[idx].ref = true
	out := make([]byte, PageSize)
	copy(out, bp.slots[idx].payload[:])
	return out, true
}

// InsertPage caches payload (exactly PageSize bytes) under pageID. If the
// page is already cached, its reference bit is refreshed and the payload
// replaced in place. Otherwise, if the pool is full, one entry is evicted
// per the clock policy before the new page is appended.
func (bp *BufferPool) InsertPage(pageID string, payload []byte) {
	if idx, ok := bp.index[pageID]; ok {
		bp.slots[idx].ref = true
		copy(bp.slots[idx].payload[:], payload)
		return
	}

	var idx int
	if bp.count < bp.capacity {
		idx = bp.count
		bp.count++
	} else {
		idx = bp.evict()
	}

	bp.slots[idx].pageID = pageID
	bp.slots[idx].ref = true
	copy(bp.slots[idx].payload[:], payload)
	bp.index[pageID] = idx
}

// evict advances the clock hand, clearing reference bits it finds set,
// until it lands on an entry whose bit is already clear; that entry is
// removed and its slot index returned for reuse.
func (bp *BufferPool) evict() int {
	for {
		if bp.slots[bp.hand].ref {
			bp.slots[bp.hand].ref = false
			bp.hand = (bp.hand + 1) % bp.capacity
			continue
		}
		victim := bp.hand
		bp.logger.Debug("buffer pool eviction", zap.String("pageID", bp.slots[victim].pageID))
		delete(bp.index, bp.slots[victim].pageID)
		bp.hand = (bp.hand + 1) % bp.capacity
		return victim
	}
}

// Clear empties the pool without affecting correctness: every buffer-pool
// entry is a transient, disposable copy of an SST page.
func (bp *BufferPool) Clear() {
	bp.index = make(map[string]int, bp.capacity)
	bp.count = 0
	bp.hand = 0
	for i := range bp.slots {
		bp.slots[i] = bufferPoolSlot{}
	}
}
