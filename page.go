package pagelsm

import "encoding/binary"

// pageEntry is one (key, value) pair held by a Page, in the order it was
// added to the builder.
type pageEntry struct {
	key   int64
	value int64
}

// Page is a 4096-byte block of entries in ascending key order. It doubles
// as a builder (AddEntry) and, once Serialize'd to a byte slice, the wire
// format ReadPage decodes back. Layout:
//
//	[0:4)    numEntries int32
//	[4:12)   startingKey int64
//	[12:16)  freeSpace int32
//	[16:...) directory: numEntries * (key int64, value-offset int32)
//	...      values packed from the tail backward, 8 bytes each
type Page struct {
	entries   []pageEntry
	started   bool
	startKey  int64
	freeSpace int
}

// NewPage returns an empty page builder with the full page available.
func NewPage() *Page {
	return &Page{freeSpace: PageSize - pageMetaSize}
}

// AddEntry appends (key, value) to the page if the 20 bytes it needs (8
// key + 4 directory offset + 8 value) still fit. The caller must supply
// keys in ascending order; AddEntry does not itself re-sort. Returns false
// without mutating the page when there isn't enough free space.
func (p *Page) AddEntry(key, value int64) bool {
	if p.freeSpace < pageEntryFootprint {
		return false
	}
	if !p.started {
		p.startKey = key
		p.started = true
	}
	p.entries = append(p.entries, pageEntry{key: key, value: value})
	p.freeSpace -= pageEntryFootprint
	return true
}

// Len returns the number of entries currently held.
func (p *Page) Len() int { return len(p.entries) }

// StartingKey returns the key of the first entry added, or 0 if empty.
func (p *Page) StartingKey() int64 { return p.startKey }

// EndingKey returns the key of the last entry added, or 0 if empty.
func (p *Page) EndingKey() int64 {
	if len(p.entries) == 0 {
		return 0
	}
	return p.entries[len(p.entries)-1].key
}

// Serialize writes the page's wire format into buf, which must be exactly
// PageSize bytes.
func (p *Page) Serialize(buf []byte) error {
	if len(buf) != PageSize {
		return wrapCorrupt("page: buffer must be %d bytes, got %d", PageSize, len(buf))
	}
	n := len(p.entries)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(n))
	binary.LittleEndian.PutUint64(buf[4:12], uint64(p.startKey))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(p.freeSpace))

	for i, e := range p.entries {
		dirOff := pageMetaSize + i*pageDirEntrySize
		valOff := PageSize - 8*(i+1)
		binary.LittleEndian.PutUint64(buf[dirOff:dirOff+8], uint64(e.key))
		binary.LittleEndian.PutUint32(buf[dirOff+8:dirOff+12], uint32(valOff))
		binary.LittleEndian.PutUint64(buf[valOff:valOff+8], uint64(e.value))
	}
	return nil
}

// PageReader provides read-only directory and value access over a decoded
// 4096-byte page buffer, without copying entries out into a slice.
type PageReader struct {
	buf        []byte
	numEntries int
	startKey   int64
	freeSpace  int
}

// ReadPage decodes a page's metadata prefix and validates directory bounds.
// buf must be exactly PageSize bytes and is retained (not copied).
func ReadPage(buf []byte) (*PageReader, error) {
	if len(buf) != PageSize {
		return nil, wrapCorrupt("page: buffer must be %d bytes, got %d", PageSize, len(buf))
	}
	n := int(int32(binary.LittleEndian.Uint32(buf[0:4])))
	if n < 0 || pageMetaSize+n*pageDirEntrySize > PageSize {
		return nil, wrapCorrupt("page: invalid entry count %d", n)
	}
	startKey := int64(binary.LittleEndian.Uint64(buf[4:12]))
	freeSpace := int(int32(binary.LittleEndian.Uint32(buf[12:16])))
	if freeSpace < 0 {
		return nil, wrapCorrupt("page: negative free space %d", freeSpace)
	}
	return &PageReader{buf: buf, numEntries: n, startKey: startKey, freeSpace: freeSpace}, nil
}

// NumEntries returns the number of directory entries.
func (r *PageReader) NumEntries() int { return r.numEntries }

// StartingKey returns the page's recorded starting key.
func (r *PageReader) StartingKey() int64 { return r.startKey }

// EntryAt returns the key and value at directory slot i.
func (r *PageReader) EntryAt(i int) (key, value int64, err error) {
	if i < 0 || i >= r.numEntries {
		return 0, 0, wrapCorrupt("page: directory index %d out of range [0,%d)", i, r.numEntries)
	}
	dirOff := pageMetaSize + i*pageDirEntrySize
	key = int64(binary.LittleEndian.Uint64(r.buf[dirOff : dirOff+8]))
	valOff := int(int32(binary.LittleEndian.Uint32(r.buf[dirOff+8 : dirOff+12])))
	if valOff < 0 || valOff+8 > PageSize {
		return 0, 0, wrapCorrupt("page: value offset %d out of range", valOff)
	}
	value = int64(binary.LittleEndian.Uint64(r.buf[valOff : valOff+8]))
	return key, value, nil
}

// Find performs a binary search over the (always ascending) directory for
// key, returning (value, true) on a hit.
func (r *PageReader) Find(key int64) (int64, bool, error) {
	lo, hi := 0, r.numEntries-1
	for lo <= hi {
		mid := (lo + hi) / 2
		k, v, err := r.EntryAt(mid)
		if err != nil {
			return 0, false, err
		}
		switch {
		case k == key:
			return v, true, nil
		case k < key:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return 0, false, nil
}
