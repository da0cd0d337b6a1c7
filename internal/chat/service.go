package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kseverny/interview-platform/internal/ai"
	"github.com/kseverny/interview-platform/internal/models"
)

// Service orchestrates chats: durable rows, cached live state, the shared
// request queue, event injection and the AI provider.
type Service struct {
	repo     *Repo
	sessions *Manager
	queue    *Queue
	events   *Engine
	provider ai.Provider
}

func NewService(repo *Repo, sessions *Manager, queue *Queue, events *Engine, provider ai.Provider) *Service {
	return &Service{
		repo:     repo,
		sessions: sessions,
		queue:    queue,
		events:   events,
		provider: provider,
	}
}

// CreateChatParams carries the interview style settings submitted with a new
// chat. The scale fields are 0-4 indexes into the descriptor tables.
type CreateChatParams struct {
	Title             string
	Language          int
	Difficulty        int
	Politeness        int
	Friendliness      int
	Rigidity          int
	DetailOrientation int
	Pacing            int
	ProgressionType   int
	InitialContext    string
}

// ErrChatLimit is returned when an anonymous user already has a chat.
var ErrChatLimit = errors.New("chat limit reached")

// PrepareInitialContext runs the submitted vacancy text through the two-stage
// pipeline: a strict validator call, then a conversion call that produces the
// structured block for the system prompt. Empty input is passed through.
func (s *Service) PrepareInitialContext(ctx context.Context, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}

	verdict, err := s.provider.Chat(ctx, []ai.Message{
		{Role: RoleSystem, Content: vacancyValidatorPrompt},
		{Role: RoleUser, Content: raw},
	})
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(strings.TrimSpace(verdict.Content), "OK") {
		log.Info().Str("verdict", verdict.Content).Msg("initial context rejected")
		return "", ErrContextRejected
	}

	converted, err := s.provider.Chat(ctx, []ai.Message{
		{Role: RoleSystem, Content: vacancyConverterPrompt},
		{Role: RoleUser, Content: raw},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(converted.Content), nil
}

// ChatCreate provisions a new interview chat: draws the initial event pool,
// persists the row and its system prompt, asks the provider for a greeting
// and primes the cache with the resulting state. Anonymous users are capped
// at a single chat, archived ones included.
func (s *Service) ChatCreate(ctx context.Context, userID uint64, role models.Role, p CreateChatParams) (*ChatState, error) {
	if role == models.RoleAnonym {
		n, err := s.repo.ChatCount(ctx, userID)
		if err != nil {
			return nil, err
		}
		if n >= 1 {
			return nil, ErrChatLimit
		}
	}

	drawn, err := s.events.DrawInitial(ctx)
	if err != nil {
		return nil, err
	}

	chance := ArithmeticBaseChance
	if p.ProgressionType == ProgressionGeometric {
		chance = GeometricBaseChance
	}

	c := &Chat{
		UserID:             userID,
		Title:              p.Title,
		ProgressionType:    p.ProgressionType,
		CurrentEventChance: chance,
		Events:             drawn,
	}
	if err := s.repo.ChatCreate(ctx, c); err != nil {
		return nil, err
	}

	system, err := s.repo.MessageCreate(ctx, c.ID, RoleSystem, buildSystemPrompt(p, p.InitialContext, drawn))
	if err != nil {
		return nil, err
	}
	c.Messages = append(c.Messages, *system)

	st := NewChatState(c)

	greeting, err := s.provider.Chat(ctx, stateMessages(st))
	if err != nil {
		return nil, err
	}
	st.AppendMessage(RoleAssistant, greeting.Content)
	st.TotalRequestTokens += greeting.PromptTokens
	st.TotalResponseTokens += greeting.CompletionTokens
	st.CurrentRequestTokens = greeting.PromptTokens
	st.UpdatedAt = time.Now().UTC()

	if err := s.sessions.Save(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Service) ChatGet(ctx context.Context, chatID, userID uint64) (*ChatState, error) {
	return s.sessions.Load(ctx, chatID, userID)
}

func (s *Service) ChatList(ctx context.Context, userID *uint64, page, perPage int) ([]Chat, int64, error) {
	return s.repo.ChatGetAll(ctx, userID, page, perPage)
}

func (s *Service) ChatArchive(ctx context.Context, chatID, userID uint64) (*ChatState, error) {
	return s.sessions.Archive(ctx, chatID, userID)
}

// AdmitTurn loads the chat, claims a queue cell for the user and records the
// assigned position in the cached state. A user already holding a cell gets
// ErrAccessDenied.
func (s *Service) AdmitTurn(ctx context.Context, chatID, userID uint64) (*ChatState, int, error) {
	st, err := s.sessions.Load(ctx, chatID, userID)
	if err != nil {
		return nil, 0, err
	}

	pos, err := s.queue.AddTask(ctx, userID, chatID)
	if err != nil {
		return nil, 0, err
	}

	st.QueuePosition = pos
	if err := s.sessions.Save(ctx, st); err != nil {
		return nil, 0, err
	}
	return st, pos, nil
}

// ReleaseAdmission backs out an admission whose turn never reached a
// worker. The cell is removed from the queue and the cached position is
// cleared; left alone, the cell would wait forever and block every retry
// with ErrAccessDenied.
func (s *Service) ReleaseAdmission(ctx context.Context, chatID, userID uint64) {
	if err := s.queue.RemoveByUser(ctx, userID); err != nil {
		log.Warn().Err(err).Uint64("user_id", userID).Msg("admission rollback failed")
		return
	}
	st, err := s.sessions.Load(ctx, chatID, userID)
	if err != nil {
		return
	}
	if st.QueuePosition != 0 {
		st.QueuePosition = 0
		if err := s.sessions.Save(ctx, st); err != nil {
			log.Warn().Err(err).Uint64("chat_id", chatID).Msg("admission rollback save failed")
		}
	}
}

// ProcessTurn executes one admitted turn: appends the user message to a
// working copy, rolls event injection, calls the provider and publishes the
// updated state. The queue cell is released whether or not the provider call
// succeeds; on failure the working copy is discarded and the cached state
// stays as it was at admission.
func (s *Service) ProcessTurn(ctx context.Context, chatID, userID uint64, content string) (*ChatState, error) {
	st, err := s.sessions.Load(ctx, chatID, userID)
	if err != nil {
		s.releaseTurn(ctx)
		return nil, err
	}

	work := st.Clone()
	work.AppendMessage(RoleUser, content)

	ev, chance, err := s.events.MaybeDraw(ctx, work)
	if err != nil {
		log.Warn().Err(err).Uint64("chat_id", chatID).Msg("event draw failed, continuing without event")
		chance = work.CurrentEventChance
	}
	work.CurrentEventChance = chance
	if ev != nil {
		work.Events = append(work.Events, EventState{ID: ev.ID, Content: ev.Content})
		work.AppendMessage(RoleSystem, "Event added: "+ev.Content)
	}

	resp, aiErr := s.provider.Chat(ctx, stateMessages(work))

	s.releaseTurn(ctx)

	if aiErr != nil {
		return nil, aiErr
	}

	work.AppendMessage(RoleAssistant, resp.Content)
	work.TotalRequestTokens += resp.PromptTokens
	work.TotalResponseTokens += resp.CompletionTokens
	work.CurrentRequestTokens = resp.PromptTokens
	work.QueuePosition = 0
	work.UpdatedAt = time.Now().UTC()

	if err := s.sessions.Save(ctx, work); err != nil {
		return nil, err
	}
	return work, nil
}

func (s *Service) releaseTurn(ctx context.Context) {
	if _, err := s.queue.RemoveTask(ctx); err != nil {
		log.Warn().Err(err).Msg("queue release failed")
	}
}

// stateMessages projects the snapshot's transcript into provider messages.
func stateMessages(st *ChatState) []ai.Message {
	out := make([]ai.Message, 0, len(st.Messages))
	for _, m := range st.Messages {
		out = append(out, ai.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
