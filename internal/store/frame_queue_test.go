package store_test

import (
	"testing"

	"pulse-gateway/internal/models"
	"pulse-gateway/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameAt(ts int64) models.Frame {
	return models.Frame{TimestampMS: ts}
}

func TestFrameQueue_FIFOOrder(t *testing.T) {
	q := store.NewFrameQueue()
	q.Push(frameAt(1))
	q.Push(frameAt(2))
	q.Push(frameAt(3))

	f, ok := q.PopOldest()
	require.True(t, ok)
	assert.Equal(t, int64(1), f.TimestampMS)

	f, ok = q.PopOldest()
	require.True(t, ok)
	assert.Equal(t, int64(2), f.TimestampMS)
}

func TestFrameQueue_ReadyAtThreshold(t *testing.T) {
	q := store.NewFrameQueue()
	for i := 0; i < store.BatchThreshold-1; i++ {
		q.Push(frameAt(int64(i)))
		assert.False(t, q.Ready())
	}
	q.Push(frameAt(99))
	assert.True(t, q.Ready())
}

func TestFrameQueue_DropsOldestWhenFull(t *testing.T) {
	q := store.NewFrameQueue()
	for i := 0; i < store.FrameCapacity; i++ {
		dropped := q.Push(frameAt(int64(i)))
		assert.False(t, dropped)
	}
	require.Equal(t, store.FrameCapacity, q.Len())

	// one over capacity: frame 0 is gone, length stays put
	dropped := q.Push(frameAt(1000))
	assert.True(t, dropped)
	assert.Equal(t, store.FrameCapacity, q.Len())

	f, ok := q.PopOldest()
	require.True(t, ok)
	assert.Equal(t, int64(1), f.TimestampMS)
}

func TestFrameQueue_PopEmpty(t *testing.T) {
	q := store.NewFrameQueue()
	_, ok := q.PopOldest()
	assert.False(t, ok)
}

func TestReadingHistory_SlidingWindow(t *testing.T) {
	h := store.NewReadingHistory()
	for i := 0; i < store.HistoryCapacity+20; i++ {
		h.Append(models.Reading{TimestampMS: int64(i)})
	}
	require.Equal(t, store.HistoryCapacity, h.Len())

	snap := h.Snapshot()
	require.Len(t, snap, store.HistoryCapacity)
	// oldest 20 evicted, order preserved
	assert.Equal(t, int64(20), snap[0].TimestampMS)
	assert.Equal(t, int64(store.HistoryCapacity+19), snap[len(snap)-1].TimestampMS)
}

func TestReadingHistory_SnapshotIsCopy(t *testing.T) {
	h := store.NewReadingHistory()
	h.Append(models.Reading{TimestampMS: 1})

	snap := h.Snapshot()
	snap[0].TimestampMS = 42

	// mutating the snapshot must not touch the stored history
	assert.Equal(t, int64(1), h.Snapshot()[0].TimestampMS)
}
