package ai

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response is one completed model turn with token accounting.
type Response struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Provider is a synchronous request/response model endpoint: ordered
// messages in, content plus token counts out.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (Response, error)
}
