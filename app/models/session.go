package models

import (
	"fmt"
	"time"
)

type SessionStatus string

const (
	SessionProcessing SessionStatus = "processing"
	SessionCompleted  SessionStatus = "completed"
	SessionError      SessionStatus = "error"
	SessionCanceled   SessionStatus = "canceled"
)

// Terminal reports whether no further transition is allowed from s.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionError || s == SessionCanceled
}

func ParseSessionStatus(v string) (SessionStatus, error) {
	switch s := SessionStatus(v); s {
	case SessionProcessing, SessionCompleted, SessionError, SessionCanceled:
		return s, nil
	default:
		return "", fmt.Errorf("unknown session status %q", v)
	}
}

// Progress is the payload persisted with every session update and pushed to
// progress subscribers.
type Progress struct {
	Processed    int    `json:"processed"`
	Total        int    `json:"total"`
	Stage        string `json:"stage"`
	Completed    bool   `json:"completed,omitempty"`
	Error        bool   `json:"error,omitempty"`
	Canceled     bool   `json:"canceled,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Timestamp    int64  `json:"timestamp"` // unix millis
}

// Done reports whether the progress payload describes a finished job.
func (p Progress) Done() bool {
	return p.Completed || p.Error || p.Canceled
}

// UploadSession is the durable record of one batch upload.
type UploadSession struct {
	SessionID              string        `json:"sessionId"`
	Status                 SessionStatus `json:"status"`
	FileID                 *int64        `json:"fileId,omitempty"`
	Progress               Progress      `json:"progress"`
	CreatedAt              time.Time     `json:"createdAt"`
	UpdatedAt              time.Time     `json:"updatedAt"`
	ServerStartFingerprint string        `json:"serverStartTimestamp"`
}

// ActiveSession describes a worker process currently owned by the manager.
type ActiveSession struct {
	SessionID string    `json:"sessionId"`
	StartedAt time.Time `json:"startTime"`
	PID       int       `json:"pid,omitempty"`
	TempPath  string    `json:"tempPath,omitempty"`
}
