package sync

import (
	stdsync "sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkTrackerLifecycle(t *testing.T) {
	tracker := NewBulkTracker()
	groupID := int64(1)

	assert.False(t, tracker.IsActive(groupID))

	id := tracker.Start(groupID, 3)
	require.NotEmpty(t, id)
	assert.True(t, tracker.IsActive(groupID))

	completed, total, active := tracker.Progress(groupID)
	assert.Equal(t, 0, completed)
	assert.Equal(t, 3, total)
	assert.True(t, active)

	_, _, finished := tracker.Increment(groupID)
	assert.False(t, finished)
	_, _, finished = tracker.Increment(groupID)
	assert.False(t, finished)
	completed, total, finished = tracker.Increment(groupID)
	assert.True(t, finished)
	assert.Equal(t, 3, completed)
	assert.Equal(t, 3, total)

	assert.False(t, tracker.IsActive(groupID))

	// Increments after close are ignored.
	completed, total, finished = tracker.Increment(groupID)
	assert.False(t, finished)
	assert.Zero(t, completed)
	assert.Zero(t, total)
}

func TestBulkTrackerConcurrentIncrements(t *testing.T) {
	tracker := NewBulkTracker()
	groupID := int64(2)
	const n = 100

	tracker.Start(groupID, n)

	var wg stdsync.WaitGroup
	var finishCount stdsync.Map
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, _, finished := tracker.Increment(groupID); finished {
				finishCount.Store(i, true)
			}
		}(i)
	}
	wg.Wait()

	// Exactly one increment observes the close.
	closes := 0
	finishCount.Range(func(_, _ any) bool { closes++; return true })
	assert.Equal(t, 1, closes)

	completed, total, active := tracker.Progress(groupID)
	assert.Equal(t, n, completed)
	assert.Equal(t, n, total)
	assert.False(t, active)
}

func TestBulkTrackerEnd(t *testing.T) {
	tracker := NewBulkTracker()
	groupID := int64(3)

	tracker.Start(groupID, 5)
	require.True(t, tracker.IsActive(groupID))

	tracker.End(groupID)
	assert.False(t, tracker.IsActive(groupID))

	// Ending an unknown group is a no-op.
	tracker.End(999)
}

func TestBulkTrackerRestartOverwrites(t *testing.T) {
	tracker := NewBulkTracker()
	groupID := int64(4)

	tracker.Start(groupID, 2)
	tracker.Increment(groupID)
	tracker.Increment(groupID)
	require.False(t, tracker.IsActive(groupID))

	id2 := tracker.Start(groupID, 7)
	assert.Equal(t, id2, tracker.SessionID(groupID))

	completed, total, active := tracker.Progress(groupID)
	assert.Equal(t, 0, completed)
	assert.Equal(t, 7, total)
	assert.True(t, active)
}

func TestVisitedSet(t *testing.T) {
	visited := NewVisitedSet()

	assert.True(t, visited.Add(1))
	assert.False(t, visited.Add(1))
	assert.True(t, visited.Add(2))
	assert.Equal(t, 2, visited.Len())
}
