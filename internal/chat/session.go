package chat

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Manager assembles a chat's full working state, choosing between the cache
// and the durable store. While a snapshot lives in the cache it is
// authoritative: durable commits are deferred to the reconciler or to an
// explicit archive, so the durable copy may lag behind.
type Manager struct {
	repo  *Repo
	cache Cache

	snapshotTTL time.Duration
	notifyTTL   time.Duration
}

// NewManager wires a session manager. The notification TTL is clamped below
// the snapshot TTL so the expiration signal always precedes data loss.
func NewManager(repo *Repo, cache Cache, snapshotTTL, notifyTTL time.Duration) *Manager {
	if notifyTTL >= snapshotTTL {
		notifyTTL = snapshotTTL - snapshotTTL/36
	}
	return &Manager{
		repo:        repo,
		cache:       cache,
		snapshotTTL: snapshotTTL,
		notifyTTL:   notifyTTL,
	}
}

// Load returns the chat's current state, cache-first. A durable read primes
// the cache with the snapshot and its companion notification key. A cached
// snapshot with an unknown schema version is dropped and reloaded from the
// durable store.
func (m *Manager) Load(ctx context.Context, chatID, userID uint64) (*ChatState, error) {
	key := SnapshotKey(userID, chatID)

	raw, err := m.cache.Get(ctx, key)
	switch {
	case err == nil:
		st, derr := DecodeState(raw)
		if derr == nil {
			return st, nil
		}
		if !errors.Is(derr, ErrSnapshotVersion) {
			return nil, derr
		}
		log.Warn().Str("key", key).Err(derr).Msg("session: dropping stale snapshot")
		if cerr := m.cache.Delete(ctx, key, NotifyKey(userID, chatID)); cerr != nil {
			return nil, cerr
		}
	case !errors.Is(err, ErrCacheMiss):
		return nil, err
	}

	c, err := m.repo.ChatGet(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}

	st := NewChatState(c)
	if err := m.Save(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// Save writes the full state back to the cache and refreshes both TTLs.
// Nothing is written to the durable store here.
func (m *Manager) Save(ctx context.Context, st *ChatState) error {
	encoded, err := EncodeState(st)
	if err != nil {
		return err
	}
	if err := m.cache.Set(ctx, NotifyKey(st.UserID, st.ID), "", m.notifyTTL); err != nil {
		return err
	}
	return m.cache.Set(ctx, SnapshotKey(st.UserID, st.ID), encoded, m.snapshotTTL)
}

// Archive soft-deletes the chat: the durable row is marked archived
// immediately so list queries exclude it, then any cached snapshot is
// flushed into the durable store and both cache keys are removed. No
// message can be lost to a later natural expiry.
func (m *Manager) Archive(ctx context.Context, chatID, userID uint64) (*ChatState, error) {
	c, err := m.repo.ChatGet(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}

	archived := true
	if _, err := m.repo.ChatEdit(ctx, chatID, ChatEditFields{IsArchived: &archived}); err != nil {
		return nil, err
	}
	c.IsArchived = true

	key := SnapshotKey(userID, chatID)
	raw, err := m.cache.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return NewChatState(c), nil
		}
		return nil, err
	}

	st, err := DecodeState(raw)
	if err != nil {
		// The snapshot is unreadable; the durable copy is all we have.
		log.Warn().Str("key", key).Err(err).Msg("session: archive with undecodable snapshot")
		if cerr := m.cache.Delete(ctx, NotifyKey(userID, chatID), key); cerr != nil {
			return nil, cerr
		}
		return NewChatState(c), nil
	}

	st.IsArchived = true
	if err := m.repo.FlushState(ctx, st); err != nil {
		return nil, err
	}
	if err := m.cache.Delete(ctx, NotifyKey(userID, chatID), key); err != nil {
		return nil, err
	}
	return st, nil
}
