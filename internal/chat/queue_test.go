package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueAddTaskPositions(t *testing.T) {
	q := NewQueue(newFakeCache(), time.Hour)
	ctx := context.Background()

	pos, err := q.AddTask(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, pos)

	pos, err = q.AddTask(ctx, 2, 20)
	require.NoError(t, err)
	require.Equal(t, 2, pos)

	pos, err = q.AddTask(ctx, 3, 30)
	require.NoError(t, err)
	require.Equal(t, 3, pos)
}

func TestQueueOneCellPerUser(t *testing.T) {
	q := NewQueue(newFakeCache(), time.Hour)
	ctx := context.Background()

	_, err := q.AddTask(ctx, 1, 10)
	require.NoError(t, err)

	// same user, same chat
	_, err = q.AddTask(ctx, 1, 10)
	require.ErrorIs(t, err, ErrAccessDenied)

	// same user, different chat
	_, err = q.AddTask(ctx, 1, 11)
	require.ErrorIs(t, err, ErrAccessDenied)

	// released head frees the user for a new cell
	_, err = q.RemoveTask(ctx)
	require.NoError(t, err)

	pos, err := q.AddTask(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, pos)
}

func TestQueueRemoveTaskRenumbers(t *testing.T) {
	cache := newFakeCache()
	q := NewQueue(cache, time.Hour)
	ctx := context.Background()

	// user 2's chat has a live snapshot; user 3's does not
	st := &ChatState{ID: 20, UserID: 2, QueuePosition: 2}
	encoded, err := EncodeState(st)
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, SnapshotKey(2, 20), encoded, time.Hour))

	for _, c := range []struct{ user, chat uint64 }{{1, 10}, {2, 20}, {3, 30}} {
		_, err := q.AddTask(ctx, c.user, c.chat)
		require.NoError(t, err)
	}

	state, err := q.RemoveTask(ctx)
	require.NoError(t, err)
	require.Len(t, state.Cells, 2)
	require.Equal(t, uint64(2), state.Cells[0].UserID)

	// the surviving snapshot saw its position move up
	raw, err := cache.Get(ctx, SnapshotKey(2, 20))
	require.NoError(t, err)
	got, err := DecodeState(raw)
	require.NoError(t, err)
	require.Equal(t, 1, got.QueuePosition)

	pos, err := q.PositionOf(ctx, 30)
	require.NoError(t, err)
	require.Equal(t, 2, pos)

	pos, err = q.PositionOf(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 0, pos, "removed chat holds no cell")
}

func TestQueueRemoveByUser(t *testing.T) {
	cache := newFakeCache()
	q := NewQueue(cache, time.Hour)
	ctx := context.Background()

	st := &ChatState{ID: 30, UserID: 3, QueuePosition: 3}
	encoded, err := EncodeState(st)
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, SnapshotKey(3, 30), encoded, time.Hour))

	for _, c := range []struct{ user, chat uint64 }{{1, 10}, {2, 20}, {3, 30}} {
		_, err := q.AddTask(ctx, c.user, c.chat)
		require.NoError(t, err)
	}

	// removing a middle cell must not touch the head
	require.NoError(t, q.RemoveByUser(ctx, 2))

	pos, err := q.PositionOf(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, pos, "head cell keeps its place")

	pos, err = q.PositionOf(ctx, 30)
	require.NoError(t, err)
	require.Equal(t, 2, pos)

	// the trailing chat's snapshot saw the renumber
	raw, err := cache.Get(ctx, SnapshotKey(3, 30))
	require.NoError(t, err)
	got, err := DecodeState(raw)
	require.NoError(t, err)
	require.Equal(t, 2, got.QueuePosition)

	// user 2 can be admitted again
	_, err = q.AddTask(ctx, 2, 20)
	require.NoError(t, err)

	// unknown user is a no-op
	require.NoError(t, q.RemoveByUser(ctx, 99))
}

func TestQueueRemoveTaskEmpty(t *testing.T) {
	q := NewQueue(newFakeCache(), time.Hour)

	state, err := q.RemoveTask(context.Background())
	require.NoError(t, err)
	require.Empty(t, state.Cells)
}

func TestQueuePersistsAcrossInstances(t *testing.T) {
	cache := newFakeCache()
	ctx := context.Background()

	_, err := NewQueue(cache, time.Hour).AddTask(ctx, 1, 10)
	require.NoError(t, err)

	// a fresh instance over the same cache sees the cell
	pos, err := NewQueue(cache, time.Hour).PositionOf(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, pos)

	// the queue key never expires
	require.Equal(t, time.Duration(0), cache.ttlOf("queue"))
}
