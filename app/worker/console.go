package worker

import (
	"sync"
	"time"
)

type ConsoleEntry struct {
	At        time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	Message   string    `json:"message"`
}

// ConsoleLog keeps the most recent worker output lines for the admin console.
type ConsoleLog struct {
	mu      sync.Mutex
	size    int
	entries []ConsoleEntry
}

func NewConsoleLog(size int) *ConsoleLog {
	if size <= 0 {
		size = 500
	}
	return &ConsoleLog{size: size}
}

func (c *ConsoleLog) Add(kind, sessionID, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, ConsoleEntry{
		At:        time.Now().UTC(),
		Type:      kind,
		SessionID: sessionID,
		Message:   message,
	})
	if over := len(c.entries) - c.size; over > 0 {
		c.entries = append(c.entries[:0:0], c.entries[over:]...)
	}
}

// Entries returns a copy, oldest first.
func (c *ConsoleLog) Entries() []ConsoleEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ConsoleEntry, len(c.entries))
	copy(out, c.entries)
	return out
}
