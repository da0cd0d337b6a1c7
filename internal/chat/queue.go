package chat

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// queueKey is the single well-known cache key holding the serialized queue.
// It never expires; the queue survives process restarts.
const queueKey = "queue"

// QueueCell is one pending AI-turn request for a (user, chat) pair.
type QueueCell struct {
	ChatID uint64 `json:"chat_id"`
	UserID uint64 `json:"user_id"`
}

type QueueState struct {
	Cells []QueueCell `json:"cells"`
}

// Queue is the global FIFO admitting one in-flight AI request per user. All
// mutations are whole-value read-modify-write against the cache; there is no
// cross-process mutual exclusion, so the admission invariant is advisory and
// suited to single-instance deployments.
type Queue struct {
	cache       Cache
	snapshotTTL time.Duration
}

func NewQueue(cache Cache, snapshotTTL time.Duration) *Queue {
	return &Queue{cache: cache, snapshotTTL: snapshotTTL}
}

// Get reads the queue, initializing an empty one on first use.
func (q *Queue) Get(ctx context.Context) (*QueueState, error) {
	raw, err := q.cache.Get(ctx, queueKey)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			state := &QueueState{Cells: []QueueCell{}}
			if err := q.save(ctx, state); err != nil {
				return nil, err
			}
			return state, nil
		}
		return nil, err
	}

	var state QueueState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, err
	}
	if state.Cells == nil {
		state.Cells = []QueueCell{}
	}
	return &state, nil
}

// AddTask appends a cell for (userID, chatID) and returns the 1-based queue
// position. A user holding any cell is rejected with ErrAccessDenied.
func (q *Queue) AddTask(ctx context.Context, userID, chatID uint64) (int, error) {
	state, err := q.Get(ctx)
	if err != nil {
		return 0, err
	}

	for _, cell := range state.Cells {
		if cell.UserID == userID {
			return 0, ErrAccessDenied
		}
	}

	state.Cells = append(state.Cells, QueueCell{ChatID: chatID, UserID: userID})
	if err := q.save(ctx, state); err != nil {
		return 0, err
	}
	return len(state.Cells), nil
}

// RemoveTask pops the head cell, renumbers the remaining cells 1..N and
// best-effort pushes each new position into the affected chat's cached
// snapshot. A chat without a snapshot is skipped: the position is
// informational, not authoritative.
func (q *Queue) RemoveTask(ctx context.Context) (*QueueState, error) {
	state, err := q.Get(ctx)
	if err != nil {
		return nil, err
	}
	if len(state.Cells) == 0 {
		return state, nil
	}

	state.Cells = state.Cells[1:]
	q.renumber(ctx, state.Cells)

	if err := q.save(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// RemoveByUser deletes the user's cell wherever it sits and renumbers the
// cells behind it. This backs out an admission whose turn was never handed
// to a worker; head-popping would release someone else's cell.
func (q *Queue) RemoveByUser(ctx context.Context, userID uint64) error {
	state, err := q.Get(ctx)
	if err != nil {
		return err
	}

	idx := -1
	for i, cell := range state.Cells {
		if cell.UserID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	state.Cells = append(state.Cells[:idx], state.Cells[idx+1:]...)
	q.renumber(ctx, state.Cells)
	return q.save(ctx, state)
}

// renumber best-effort pushes each cell's 1-based position into the
// affected chat's cached snapshot. A chat without a snapshot is skipped:
// the position is informational, not authoritative.
func (q *Queue) renumber(ctx context.Context, cells []QueueCell) {
	for i, cell := range cells {
		key := SnapshotKey(cell.UserID, cell.ChatID)
		raw, err := q.cache.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, ErrCacheMiss) {
				log.Warn().Err(err).Str("key", key).Msg("queue: read snapshot for renumber")
			}
			continue
		}

		st, err := DecodeState(raw)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("queue: decode snapshot for renumber")
			continue
		}

		st.QueuePosition = i + 1
		encoded, err := EncodeState(st)
		if err != nil {
			continue
		}
		if err := q.cache.Set(ctx, key, encoded, q.snapshotTTL); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("queue: write snapshot for renumber")
		}
	}
}

// PositionOf returns the chat's 1-based position, or 0 when the chat holds
// no cell (not queued, or being processed right now).
func (q *Queue) PositionOf(ctx context.Context, chatID uint64) (int, error) {
	state, err := q.Get(ctx)
	if err != nil {
		return 0, err
	}
	for i, cell := range state.Cells {
		if cell.ChatID == chatID {
			return i + 1, nil
		}
	}
	return 0, nil
}

func (q *Queue) save(ctx context.Context, state *QueueState) error {
	b, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return q.cache.Set(ctx, queueKey, string(b), 0)
}
