package chat

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Engine injects scripted events into conversations with an escalating
// per-chat chance between hits.
type Engine struct {
	repo *Repo

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine builds an engine. A nil rng gets a time-seeded source; tests
// pass a fixed seed.
func NewEngine(repo *Repo, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{repo: repo, rng: rng}
}

// DrawInitial picks 0-3 distinct events uniformly at random as a new chat's
// initial candidate pool.
func (e *Engine) DrawInitial(ctx context.Context) ([]Event, error) {
	e.mu.Lock()
	count := e.rng.Intn(4)
	e.mu.Unlock()
	if count == 0 {
		return nil, nil
	}

	pool, err := e.repo.EventList(ctx)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, nil
	}

	e.mu.Lock()
	e.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	e.mu.Unlock()

	if count > len(pool) {
		count = len(pool)
	}
	return pool[:count], nil
}

// MaybeDraw runs one escalation step for the chat and rolls for an event.
//
// Arithmetic chats multiply the chance by 1.6 per miss and reset to 1.5 on a
// hit; geometric chats add 10 per miss and reset to 10. The roll is a
// uniform integer in [1,99]; the event fires when the roll is at or below
// the escalated chance. Events already attached to the chat are excluded,
// so once the chat has collected every event the draw silently stops firing
// (accepted steady state).
//
// Returns the fired event (nil for a miss or an exhausted pool) and the
// chat's next chance.
func (e *Engine) MaybeDraw(ctx context.Context, st *ChatState) (*Event, float64, error) {
	var newChance float64
	switch st.ProgressionType {
	case ProgressionGeometric:
		newChance = st.CurrentEventChance + 10.0
	default:
		newChance = st.CurrentEventChance * 1.6
	}

	e.mu.Lock()
	roll := e.rng.Intn(99) + 1
	e.mu.Unlock()

	if float64(roll) > newChance {
		return nil, newChance, nil
	}

	reset := ArithmeticBaseChance
	if st.ProgressionType == ProgressionGeometric {
		reset = GeometricBaseChance
	}

	event, err := e.pickExcluding(ctx, st.EventIDs())
	if err != nil {
		return nil, newChance, err
	}
	return event, reset, nil
}

func (e *Engine) pickExcluding(ctx context.Context, excludeIDs []uint64) (*Event, error) {
	pool, err := e.repo.EventList(ctx)
	if err != nil {
		return nil, err
	}

	excluded := make(map[uint64]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}

	candidates := pool[:0]
	for _, ev := range pool {
		if !excluded[ev.ID] {
			candidates = append(candidates, ev)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	e.mu.Lock()
	picked := candidates[e.rng.Intn(len(candidates))]
	e.mu.Unlock()
	return &picked, nil
}
