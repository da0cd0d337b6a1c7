package chat

import (
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotSchemaVersion tags the cached snapshot layout. Decoding rejects
// any other version; the caller falls back to the durable copy.
const SnapshotSchemaVersion = 1

// Cache key layout. The strings are an interop contract and must not change:
// other processes (and any already-cached data) address chats by them.
const notifyKeyPrefix = "notifications/delete="

func SnapshotKey(userID, chatID uint64) string {
	return fmt.Sprintf("%d/chat:%d", userID, chatID)
}

func NotifyKey(userID, chatID uint64) string {
	return notifyKeyPrefix + SnapshotKey(userID, chatID)
}

// MessageState is a message inside a cached snapshot. ID stays nil until the
// row is committed to the durable store.
type MessageState struct {
	ID        *uint64   `json:"id"`
	ChatID    uint64    `json:"chat_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type EventState struct {
	ID      uint64 `json:"id"`
	Content string `json:"content"`
}

// ChatState is the full working state of a chat: the unit of cache update.
type ChatState struct {
	SchemaVersion int `json:"schema_version"`

	ID     uint64 `json:"id"`
	UserID uint64 `json:"user_id"`
	Title  string `json:"title"`

	Messages []MessageState `json:"messages"`
	Events   []EventState   `json:"events"`

	TotalRequestTokens   int `json:"total_count_request_tokens"`
	TotalResponseTokens  int `json:"total_count_response_tokens"`
	CurrentRequestTokens int `json:"current_count_request_tokens"`

	CurrentEventChance float64 `json:"current_event_chance"`
	ProgressionType    int     `json:"progression_type"`

	IsArchived bool `json:"is_archived"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// QueuePosition is informational and never persisted durably.
	QueuePosition int `json:"queue_position"`
}

// NewChatState builds a snapshot from a durable chat row with its messages
// and events loaded.
func NewChatState(c *Chat) *ChatState {
	st := &ChatState{
		SchemaVersion:        SnapshotSchemaVersion,
		ID:                   c.ID,
		UserID:               c.UserID,
		Title:                c.Title,
		Messages:             make([]MessageState, 0, len(c.Messages)),
		Events:               make([]EventState, 0, len(c.Events)),
		TotalRequestTokens:   c.TotalRequestTokens,
		TotalResponseTokens:  c.TotalResponseTokens,
		CurrentRequestTokens: c.CurrentRequestTokens,
		CurrentEventChance:   c.CurrentEventChance,
		ProgressionType:      c.ProgressionType,
		IsArchived:           c.IsArchived,
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
	}
	for _, m := range c.Messages {
		id := m.ID
		st.Messages = append(st.Messages, MessageState{
			ID:        &id,
			ChatID:    m.ChatID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	for _, e := range c.Events {
		st.Events = append(st.Events, EventState{ID: e.ID, Content: e.Content})
	}
	return st
}

func EncodeState(st *ChatState) (string, error) {
	st.SchemaVersion = SnapshotSchemaVersion
	b, err := json.Marshal(st)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeState(raw string) (*ChatState, error) {
	var st ChatState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, err
	}
	if st.SchemaVersion != SnapshotSchemaVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSnapshotVersion, st.SchemaVersion, SnapshotSchemaVersion)
	}
	return &st, nil
}

// Clone deep-copies the state so a turn can mutate a working copy and only
// publish it on full success.
func (st *ChatState) Clone() *ChatState {
	out := *st
	out.Messages = make([]MessageState, len(st.Messages))
	for i, m := range st.Messages {
		out.Messages[i] = m
		if m.ID != nil {
			id := *m.ID
			out.Messages[i].ID = &id
		}
	}
	out.Events = append([]EventState(nil), st.Events...)
	return &out
}

// AppendMessage adds a not-yet-persisted message. Unpersisted messages
// always sort after the persisted ones created earlier, so append order is
// the durable order.
func (st *ChatState) AppendMessage(role, content string) {
	st.Messages = append(st.Messages, MessageState{
		ID:        nil,
		ChatID:    st.ID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
}

func (st *ChatState) EventIDs() []uint64 {
	ids := make([]uint64, 0, len(st.Events))
	for _, e := range st.Events {
		ids = append(ids, e.ID)
	}
	return ids
}
