package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitForFlush(t *testing.T, repo *Repo, chatID uint64, want int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var count int64
		require.NoError(t, repo.db.Model(&Message{}).Where("chat_id = ?", chatID).Count(&count).Error)
		if count == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("durable message count never reached %d", want)
}

func TestReconcilerFlushesExpiredChat(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	cache := newFakeCache()
	sub := newChanSubscriber()
	m := NewManager(repo, cache, time.Hour, 55*time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := seedChat(t, repo, 1, ProgressionArithmetic)
	st, err := m.Load(ctx, c.ID, 1)
	require.NoError(t, err)
	st.AppendMessage(RoleUser, "hello")
	st.AppendMessage(RoleAssistant, "welcome")
	st.TotalRequestTokens = 40
	st.TotalResponseTokens = 15
	st.CurrentRequestTokens = 40
	require.NoError(t, m.Save(ctx, st))

	done := make(chan error, 1)
	rec := NewReconciler(repo, cache, sub)
	go func() { done <- rec.Run(ctx) }()

	// the notification key expires; the snapshot is still readable
	cache.expire(NotifyKey(1, c.ID))
	sub.ch <- NotifyKey(1, c.ID)

	waitForFlush(t, repo, c.ID, 3)

	// snapshot key removed once the delta is durable
	deadline := time.Now().Add(2 * time.Second)
	for cache.has(SnapshotKey(1, c.ID)) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.False(t, cache.has(SnapshotKey(1, c.ID)))

	var row Chat
	require.NoError(t, repo.db.First(&row, c.ID).Error)
	require.Equal(t, 40, row.TotalRequestTokens)
	require.Equal(t, 15, row.TotalResponseTokens)

	cancel()
	require.NoError(t, <-done)
}

func TestReconcilerIgnoresForeignKeys(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	cache := newFakeCache()
	sub := newChanSubscriber()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	rec := NewReconciler(repo, cache, sub)
	go func() { done <- rec.Run(ctx) }()

	// captcha keys and other expirations share the keyspace channel
	sub.ch <- "captcha:someone@example.com"
	sub.ch <- "some/other:key"

	// a notification without a snapshot is a no-op, not a failure
	sub.ch <- NotifyKey(9, 99)

	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	var count int64
	require.NoError(t, repo.db.Model(&Message{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestReconcilerSweepFlushesOrphanedSnapshot(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	cache := newFakeCache()
	sub := newChanSubscriber()
	m := NewManager(repo, cache, time.Hour, 55*time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// orphan: its notification expired while no listener was running
	orphan := seedChat(t, repo, 1, ProgressionArithmetic)
	st, err := m.Load(ctx, orphan.ID, 1)
	require.NoError(t, err)
	st.AppendMessage(RoleUser, "anyone there?")
	require.NoError(t, m.Save(ctx, st))
	cache.expire(NotifyKey(1, orphan.ID))

	// healthy: notification key still pending
	healthy := seedChat(t, repo, 2, ProgressionArithmetic)
	hst, err := m.Load(ctx, healthy.ID, 2)
	require.NoError(t, err)
	hst.AppendMessage(RoleUser, "still here")
	require.NoError(t, m.Save(ctx, hst))

	done := make(chan error, 1)
	rec := NewReconciler(repo, cache, sub)
	go func() { done <- rec.Run(ctx) }()

	// the startup sweep alone must recover the orphan
	waitForFlush(t, repo, orphan.ID, 2)

	deadline := time.Now().Add(2 * time.Second)
	for cache.has(SnapshotKey(1, orphan.ID)) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.False(t, cache.has(SnapshotKey(1, orphan.ID)))

	// the healthy chat was left alone
	require.True(t, cache.has(SnapshotKey(2, healthy.ID)))
	var count int64
	require.NoError(t, repo.db.Model(&Message{}).Where("chat_id = ?", healthy.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)

	cancel()
	require.NoError(t, <-done)
}

func TestReconcilerStopsOnClosedChannel(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	sub := newChanSubscriber()

	done := make(chan error, 1)
	rec := NewReconciler(repo, newFakeCache(), sub)
	go func() { done <- rec.Run(context.Background()) }()

	close(sub.ch)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reconciler did not stop on closed subscription")
	}
}
