package models

import (
	"time"

	"github.com/google/uuid"
)

// Exchange is one audited request/response cycle of the chat endpoint.
// It never carries the user's text, only a fingerprint of it.
type Exchange struct {
	ID           uuid.UUID `json:"id"`
	RequestID    string    `json:"request_id"`
	Variant      string    `json:"variant"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Status       int       `json:"status"`
	ErrorCode    *string   `json:"error_code"`
	Fingerprint  string    `json:"fingerprint"`
	PromptLength int       `json:"prompt_length"`
	Attempts     int       `json:"attempts"`
	DurationMS   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}
