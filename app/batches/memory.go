package batches

import (
	"context"
	"sort"
	"sync"

	"github.com/draiimon/PanicSense-Final-sub000/app/models"
)

type rowKey struct {
	sessionID string
	batch     int
	index     int
}

// MemoryWriter keeps results in process, keyed the same way as the database table.
type MemoryWriter struct {
	mu   sync.Mutex
	rows map[rowKey]models.ProcessResult
}

func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{rows: make(map[rowKey]models.ProcessResult)}
}

func (w *MemoryWriter) WriteBatch(_ context.Context, sessionID string, batchNumber int, rows []models.ProcessResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, r := range rows {
		k := rowKey{sessionID: sessionID, batch: batchNumber, index: i}
		if _, exists := w.rows[k]; !exists {
			w.rows[k] = r
		}
	}
	return nil
}

// Results returns the stored rows of a session in batch then row order.
func (w *MemoryWriter) Results(sessionID string) []models.ProcessResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	var keys []rowKey
	for k := range w.rows {
		if k.sessionID == sessionID {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].batch != keys[j].batch {
			return keys[i].batch < keys[j].batch
		}
		return keys[i].index < keys[j].index
	})
	out := make([]models.ProcessResult, len(keys))
	for i, k := range keys {
		out[i] = w.rows[k]
	}
	return out
}

func (w *MemoryWriter) LoadResults(_ context.Context, sessionID string) ([]models.ProcessResult, error) {
	return w.Results(sessionID), nil
}
