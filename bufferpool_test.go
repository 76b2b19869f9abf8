package pagelsm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func pagePayload(fill byte) []byte {
	buf := make([]byte, PageSize)
	buf[0] = fill
	return buf
}

func TestBufferPoolInsertAndGet(t *testing.T) {
	bp := NewBufferPool(4, nil)
	bp.InsertPage("a", pagePayload(1))

	got, ok := bp.GetPage("a")
	require.True(t, ok)
	require.Equal(t, byte(1), got[0])

	_, ok = bp.GetPage("missing")
	require.False(t, ok)
}

func TestBufferPoolClockEviction(t *testing.T) {
	bp := NewBufferPool(2, nil)
	bp.InsertPage("a", pagePayload(1))
	bp.InsertPage("b", pagePayload(2))

	// Both pages enter with their reference bit set, so the hand clears "a"
	// and "b" in turn, wraps around, and evicts "a": exactly one of the two
	// stays cached.
	_, _ = bp.GetPage("a")
	bp.InsertPage("c", pagePayload(3))

	_, aStillCached := bp.GetPage("a")
	_, bStillCached := bp.GetPage("b")
	_, cCached := bp.GetPage("c")

	require.True(t, cCached)
	require.NotEqual(t, aStillCached, bStillCached)
}

func TestBufferPoolCapacityNeverExceeded(t *testing.T) {
	bp := NewBufferPool(3, nil)
	for i := 0; i < 100; i++ {
		bp.InsertPage(fmt.Sprintf("page-%d", i), pagePayload(byte(i)))
	}
	require.LessOrEqual(t, len(bp.index), 3)
}

func TestBufferPoolClear(t *testing.T) {
	bp := NewBufferPool(2, nil)
	bp.InsertPage("a", pagePayload(1))
	bp.Clear()
	_, ok := bp.GetPage("a")
	require.False(t, ok)
}
