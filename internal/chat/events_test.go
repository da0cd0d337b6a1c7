package chat

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func seedEvents(t *testing.T, repo *Repo, contents ...string) []Event {
	t.Helper()
	out := make([]Event, 0, len(contents))
	for _, c := range contents {
		ev, err := repo.EventCreate(context.Background(), c)
		require.NoError(t, err)
		out = append(out, *ev)
	}
	return out
}

func TestEngineArithmeticEscalation(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	seedEvents(t, repo, "power outage", "hostile interviewer joins")
	engine := NewEngine(repo, rand.New(rand.NewSource(42)))
	ctx := context.Background()

	st := &ChatState{ProgressionType: ProgressionArithmetic, CurrentEventChance: ArithmeticBaseChance}

	// chance multiplies by 1.6 per miss; once it passes 99 the roll cannot
	// miss, so a hit is forced within a bounded number of turns
	hit := false
	for i := 0; i < 12; i++ {
		before := st.CurrentEventChance
		ev, chance, err := engine.MaybeDraw(ctx, st)
		require.NoError(t, err)
		if ev == nil {
			require.InDelta(t, before*1.6, chance, 1e-9)
		} else {
			require.Equal(t, ArithmeticBaseChance, chance)
			hit = true
			break
		}
		st.CurrentEventChance = chance
	}
	require.True(t, hit, "escalation must force a hit")
}

func TestEngineGeometricEscalation(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	seedEvents(t, repo, "scope change mid-task")
	engine := NewEngine(repo, rand.New(rand.NewSource(7)))
	ctx := context.Background()

	st := &ChatState{ProgressionType: ProgressionGeometric, CurrentEventChance: GeometricBaseChance}

	hit := false
	for i := 0; i < 12; i++ {
		before := st.CurrentEventChance
		ev, chance, err := engine.MaybeDraw(ctx, st)
		require.NoError(t, err)
		if ev == nil {
			require.InDelta(t, before+10.0, chance, 1e-9)
		} else {
			require.Equal(t, GeometricBaseChance, chance)
			hit = true
			break
		}
		st.CurrentEventChance = chance
	}
	require.True(t, hit, "escalation must force a hit")
}

func TestEngineGuaranteedHitResetsChance(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	evs := seedEvents(t, repo, "production incident")
	engine := NewEngine(repo, rand.New(rand.NewSource(1)))

	// 99 * 1.6 clears the maximum roll, so this turn always fires
	st := &ChatState{ProgressionType: ProgressionArithmetic, CurrentEventChance: 99}

	ev, chance, err := engine.MaybeDraw(context.Background(), st)
	require.NoError(t, err)
	require.NotNil(t, ev)
	require.Equal(t, evs[0].ID, ev.ID)
	require.Equal(t, ArithmeticBaseChance, chance)
}

func TestEngineExcludesAttachedEvents(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	evs := seedEvents(t, repo, "first", "second")
	engine := NewEngine(repo, rand.New(rand.NewSource(1)))

	st := &ChatState{
		ProgressionType:    ProgressionArithmetic,
		CurrentEventChance: 99,
		Events:             []EventState{{ID: evs[0].ID, Content: evs[0].Content}},
	}

	ev, _, err := engine.MaybeDraw(context.Background(), st)
	require.NoError(t, err)
	require.NotNil(t, ev)
	require.Equal(t, evs[1].ID, ev.ID, "attached event must not fire again")
}

func TestEngineExhaustedPool(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	evs := seedEvents(t, repo, "only one")
	engine := NewEngine(repo, rand.New(rand.NewSource(1)))

	st := &ChatState{
		ProgressionType:    ProgressionArithmetic,
		CurrentEventChance: 99,
		Events:             []EventState{{ID: evs[0].ID, Content: evs[0].Content}},
	}

	// the roll hits but every event is already attached: no event, and the
	// chance still resets
	ev, chance, err := engine.MaybeDraw(context.Background(), st)
	require.NoError(t, err)
	require.Nil(t, ev)
	require.Equal(t, ArithmeticBaseChance, chance)
}

func TestEngineDrawInitial(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	seedEvents(t, repo, "a", "b", "c", "d", "e")
	engine := NewEngine(repo, rand.New(rand.NewSource(3)))

	drawn, err := engine.DrawInitial(context.Background())
	require.NoError(t, err)
	require.LessOrEqual(t, len(drawn), 3)

	seen := make(map[uint64]bool)
	for _, ev := range drawn {
		require.False(t, seen[ev.ID], "initial draw must be distinct")
		seen[ev.ID] = true
	}
}

func TestEngineDrawInitialEmptyPool(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	engine := NewEngine(repo, rand.New(rand.NewSource(3)))

	drawn, err := engine.DrawInitial(context.Background())
	require.NoError(t, err)
	require.Empty(t, drawn)
}
