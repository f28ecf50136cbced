// Package batches makes each worker batch durable as soon as it arrives.
package batches

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/draiimon/PanicSense-Final-sub000/app/logging"
	"github.com/draiimon/PanicSense-Final-sub000/app/models"
)

// ResultWriter stores the rows of one batch. Writing the same
// (session, batch, row index) twice must not create duplicates.
type ResultWriter interface {
	WriteBatch(ctx context.Context, sessionID string, batchNumber int, rows []models.ProcessResult) error
}

// ResultStore is a ResultWriter that can read a session's rows back in
// batch then row order.
type ResultStore interface {
	ResultWriter
	LoadResults(ctx context.Context, sessionID string) ([]models.ProcessResult, error)
}

// ProgressSink is where the pipeline reports how far the job has come.
type ProgressSink interface {
	Update(ctx context.Context, id string, status models.SessionStatus, p models.Progress) (bool, error)
}

// FinalBatch is the batch number used when the worker only produced a final payload.
const FinalBatch = 0

type Pipeline struct {
	sessionID string
	writer    ResultWriter
	sink      ProgressSink
	hook      func(models.Progress)
	logger    *slog.Logger

	mu           sync.Mutex
	applied      map[int]bool
	lost         map[int]models.BatchEvent
	totalBatches int
	rows         int
	totalRows    int
}

type Option func(*Pipeline)

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithTotalRows sets the row count reported as the progress total.
func WithTotalRows(n int) Option {
	return func(p *Pipeline) { p.totalRows = n }
}

// WithProgressHook is called with every progress payload the pipeline reports.
func WithProgressHook(fn func(models.Progress)) Option {
	return func(p *Pipeline) { p.hook = fn }
}

func NewPipeline(sessionID string, writer ResultWriter, sink ProgressSink, opts ...Option) *Pipeline {
	p := &Pipeline{
		sessionID: sessionID,
		writer:    writer,
		sink:      sink,
		logger:    logging.Discard(),
		applied:   make(map[int]bool),
		lost:      make(map[int]models.BatchEvent),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Apply persists a batch the first time its number is seen. A batch whose
// write failed is not marked applied, so the same batch can be retried whole.
func (p *Pipeline) Apply(ctx context.Context, ev models.BatchEvent) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.applyLocked(ctx, ev)
}

func (p *Pipeline) applyLocked(ctx context.Context, ev models.BatchEvent) (bool, error) {
	p.totalBatches = max(p.totalBatches, ev.TotalBatches)
	if p.applied[ev.BatchNumber] {
		p.logger.Debug("duplicate batch ignored", "session_id", p.sessionID, "batch", ev.BatchNumber)
		return false, nil
	}
	if err := p.writer.WriteBatch(ctx, p.sessionID, ev.BatchNumber, ev.Results); err != nil {
		return false, fmt.Errorf("persist batch %d of session %s: %w", ev.BatchNumber, p.sessionID, err)
	}
	p.applied[ev.BatchNumber] = true
	delete(p.lost, ev.BatchNumber)
	p.rows += len(ev.Results)

	p.report(ctx, models.Progress{
		Processed: p.rows,
		Total:     p.totalRows,
		Stage:     fmt.Sprintf("Completed batch %d of %d", ev.BatchNumber, ev.TotalBatches),
	})
	return true, nil
}

// Handle adapts Apply to a worker batch callback. A failed write is retried
// once; a batch that still fails is kept for Finish to try again.
func (p *Pipeline) Handle(ctx context.Context) func(models.BatchEvent) {
	return func(ev models.BatchEvent) {
		if _, err := p.Apply(ctx, ev); err != nil {
			p.logger.Warn("batch persist failed, retrying", "session_id", p.sessionID, "batch", ev.BatchNumber, "error", err)
			if _, err := p.Apply(ctx, ev); err != nil {
				p.logger.Error("batch not persisted", "session_id", p.sessionID, "batch", ev.BatchNumber, "error", err)
				p.mu.Lock()
				p.lost[ev.BatchNumber] = ev
				p.mu.Unlock()
			}
		}
	}
}

// Finish stores the final payload when no batch markers were applied during
// the run. Otherwise it retries the batches Handle could not persist and
// reports the batch numbers that are still missing.
func (p *Pipeline) Finish(ctx context.Context, results []models.ProcessResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.applied) == 0 && len(p.lost) == 0 {
		if len(results) == 0 {
			return nil
		}
		if err := p.writer.WriteBatch(ctx, p.sessionID, FinalBatch, results); err != nil {
			return fmt.Errorf("persist final results of session %s: %w", p.sessionID, err)
		}
		p.applied[FinalBatch] = true
		p.rows += len(results)
		return nil
	}

	var errs []error
	for _, n := range sortedKeys(p.lost) {
		if _, err := p.applyLocked(ctx, p.lost[n]); err != nil {
			errs = append(errs, err)
		}
	}

	missing := p.missingLocked()
	if len(missing) > 0 {
		p.logger.Error("stored results are missing batches",
			"session_id", p.sessionID, "missing", missing, "total_batches", p.totalBatches)
		errs = append(errs, fmt.Errorf("session %s is missing batches %v", p.sessionID, missing))
	}
	return errors.Join(errs...)
}

// missingLocked lists batch numbers up to the highest reported total that
// were never stored. Batches are numbered from 1.
func (p *Pipeline) missingLocked() []int {
	var missing []int
	for n := 1; n <= p.totalBatches; n++ {
		if !p.applied[n] {
			missing = append(missing, n)
		}
	}
	for n := range p.lost {
		if n > p.totalBatches || n < 1 {
			missing = append(missing, n)
		}
	}
	sort.Ints(missing)
	return missing
}

func sortedKeys(m map[int]models.BatchEvent) []int {
	out := make([]int, 0, len(m))
	for n := range m {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func (p *Pipeline) Applied() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, 0, len(p.applied))
	for n := range p.applied {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func (p *Pipeline) RowsWritten() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rows
}

// report must be called with mu held.
func (p *Pipeline) report(ctx context.Context, progress models.Progress) {
	if p.sink != nil {
		if _, err := p.sink.Update(ctx, p.sessionID, models.SessionProcessing, progress); err != nil {
			p.logger.Warn("session progress not saved", "session_id", p.sessionID, "error", err)
		}
	}
	if p.hook != nil {
		p.hook(progress)
	}
}
