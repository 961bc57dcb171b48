package models

import "github.com/google/uuid"

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Chat pipeline stages reported to live subscribers.
const (
	StageReceived  = "received"
	StageForwarded = "forwarded"
	StageCompleted = "completed"
	StageFailed    = "failed"
)

type StatusUpdate struct {
	SessionID uuid.UUID `json:"session_id"`
	RequestID string    `json:"request_id"`
	Stage     string    `json:"stage"`
	Status    int       `json:"status,omitempty"`
	ErrorCode string    `json:"error_code,omitempty"`
}
