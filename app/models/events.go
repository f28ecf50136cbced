package models

import "time"

// SessionEvent is published whenever an upload session reaches a terminal state.
type SessionEvent struct {
	SessionID string        `json:"session_id"`
	Status    SessionStatus `json:"status"`
	Message   string        `json:"message,omitempty"`
	Processed int           `json:"processed"`
	Total     int           `json:"total"`
	At        time.Time     `json:"at"`
}
