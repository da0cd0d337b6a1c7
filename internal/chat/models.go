package chat

import "time"

// Message roles accepted by the model endpoint.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Progression policies for event-injection chance between hits.
const (
	ProgressionArithmetic = 0
	ProgressionGeometric  = 1
)

// Starting chances per progression policy; MaybeDraw resets to these after
// an event fires.
const (
	ArithmeticBaseChance = 1.5
	GeometricBaseChance  = 10.0
)

type Chat struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID uint64 `gorm:"index;not null" json:"user_id"`
	Title  string `gorm:"type:varchar(256)" json:"title"`

	Messages []Message `gorm:"foreignKey:ChatID" json:"messages,omitempty"`
	Events   []Event   `gorm:"many2many:events_association" json:"events,omitempty"`

	TotalRequestTokens   int `gorm:"not null;default:0" json:"total_count_request_tokens"`
	TotalResponseTokens  int `gorm:"not null;default:0" json:"total_count_response_tokens"`
	CurrentRequestTokens int `gorm:"not null;default:0" json:"current_count_request_tokens"`

	CurrentEventChance float64 `gorm:"not null;default:1.5" json:"current_event_chance"`
	ProgressionType    int     `gorm:"not null;default:0" json:"progression_type"`

	IsArchived bool `gorm:"not null;default:false" json:"is_archived"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Chat) TableName() string { return "chats" }

type Message struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatID    uint64    `gorm:"index;not null" json:"chat_id"`
	Role      string    `gorm:"type:varchar(16);not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (Message) TableName() string { return "messages" }

// Event is a scripted scenario injected into conversations. Chats accumulate
// a set of distinct events through the events_association table.
type Event struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (Event) TableName() string { return "events" }
