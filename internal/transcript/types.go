package transcript

import (
	"context"
	"time"
)

// Utterance is one archived half of a conversational turn: what the user
// said or what the assistant replied.
type Utterance struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store archives finished utterances for later inspection. Writes are
// best-effort from the turn pipeline; reads back the ops API.
type Store interface {
	Save(ctx context.Context, u Utterance) error
	BySession(ctx context.Context, sessionID string, limit int) ([]Utterance, error)
	Ping(ctx context.Context) error
	Close() error
}
