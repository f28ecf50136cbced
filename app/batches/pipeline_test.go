package batches

import (
	"context"
	"errors"
	"testing"

	"github.com/draiimon/PanicSense-Final-sub000/app/models"
	"github.com/stretchr/testify/require"
)

type flakyWriter struct {
	*MemoryWriter
	failures int
	calls    int
}

func (w *flakyWriter) WriteBatch(ctx context.Context, sessionID string, batchNumber int, rows []models.ProcessResult) error {
	w.calls++
	if w.failures > 0 {
		w.failures--
		// half the rows land before the failure
		_ = w.MemoryWriter.WriteBatch(ctx, sessionID, batchNumber, rows[:len(rows)/2])
		return errors.New("connection reset")
	}
	return w.MemoryWriter.WriteBatch(ctx, sessionID, batchNumber, rows)
}

type progressLog struct {
	updates []models.Progress
}

func (l *progressLog) Update(_ context.Context, _ string, _ models.SessionStatus, p models.Progress) (bool, error) {
	l.updates = append(l.updates, p)
	return true, nil
}

func batch(n, total int, texts ...string) models.BatchEvent {
	ev := models.BatchEvent{BatchNumber: n, TotalBatches: total}
	for _, t := range texts {
		ev.Results = append(ev.Results, models.ProcessResult{Text: t, Sentiment: "Neutral"})
	}
	return ev
}

func TestApplyIgnoresRepeatedBatch(t *testing.T) {
	ctx := context.Background()
	w := NewMemoryWriter()
	sink := &progressLog{}
	p := NewPipeline("s1", w, sink, WithTotalRows(3))

	applied, err := p.Apply(ctx, batch(1, 2, "a", "b"))
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = p.Apply(ctx, batch(1, 2, "a", "b"))
	require.NoError(t, err)
	require.False(t, applied)

	_, err = p.Apply(ctx, batch(2, 2, "c"))
	require.NoError(t, err)

	require.Len(t, w.Results("s1"), 3)
	require.Equal(t, 3, p.RowsWritten())
	require.Equal(t, []int{1, 2}, p.Applied())
	require.Len(t, sink.updates, 2)
	require.Equal(t, 3, sink.updates[1].Processed)
	require.Equal(t, 3, sink.updates[1].Total)
}

func TestFailedBatchIsRetriedWhole(t *testing.T) {
	ctx := context.Background()
	w := &flakyWriter{MemoryWriter: NewMemoryWriter(), failures: 1}
	sink := &progressLog{}
	p := NewPipeline("s1", w, sink)

	_, err := p.Apply(ctx, batch(1, 1, "a", "b", "c", "d"))
	require.Error(t, err)
	require.Empty(t, p.Applied())
	require.Empty(t, sink.updates)

	applied, err := p.Apply(ctx, batch(1, 1, "a", "b", "c", "d"))
	require.NoError(t, err)
	require.True(t, applied)
	require.Len(t, w.Results("s1"), 4)
}

func TestHandleRetriesOnce(t *testing.T) {
	w := &flakyWriter{MemoryWriter: NewMemoryWriter(), failures: 1}
	p := NewPipeline("s1", w, nil)

	p.Handle(context.Background())(batch(3, 5, "x", "y"))
	require.Equal(t, 2, w.calls)
	require.Equal(t, []int{3}, p.Applied())
}

func TestFinishWritesPayloadOnlyWithoutBatches(t *testing.T) {
	ctx := context.Background()
	final := []models.ProcessResult{{Text: "a"}, {Text: "b"}}

	w := NewMemoryWriter()
	p := NewPipeline("no-markers", w, nil)
	require.NoError(t, p.Finish(ctx, final))
	require.Len(t, w.Results("no-markers"), 2)
	require.Equal(t, []int{FinalBatch}, p.Applied())

	p2 := NewPipeline("with-markers", w, nil)
	_, err := p2.Apply(ctx, batch(1, 1, "a"))
	require.NoError(t, err)
	require.NoError(t, p2.Finish(ctx, final))
	require.Len(t, w.Results("with-markers"), 1)
}

func TestProgressHookSeesEveryBatch(t *testing.T) {
	var seen []string
	p := NewPipeline("s1", NewMemoryWriter(), nil, WithProgressHook(func(pr models.Progress) {
		seen = append(seen, pr.Stage)
	}))
	_, _ = p.Apply(context.Background(), batch(1, 2, "a"))
	_, _ = p.Apply(context.Background(), batch(2, 2, "b"))
	require.Equal(t, []string{"Completed batch 1 of 2", "Completed batch 2 of 2"}, seen)
}

func TestFinishRetriesBatchLostByHandle(t *testing.T) {
	ctx := context.Background()
	w := &flakyWriter{MemoryWriter: NewMemoryWriter(), failures: 2}
	p := NewPipeline("s1", w, nil)

	handle := p.Handle(ctx)
	handle(batch(1, 2, "a", "b"))
	require.Empty(t, p.Applied())
	handle(batch(2, 2, "c"))
	require.Equal(t, []int{2}, p.Applied())

	require.NoError(t, p.Finish(ctx, []models.ProcessResult{{Text: "a"}, {Text: "b"}, {Text: "c"}}))
	require.Equal(t, []int{1, 2}, p.Applied())
	require.Len(t, w.Results("s1"), 3)
	require.Equal(t, 3, p.RowsWritten())
}

func TestFinishReportsMissingBatches(t *testing.T) {
	ctx := context.Background()
	w := NewMemoryWriter()
	p := NewPipeline("s1", w, nil)

	_, err := p.Apply(ctx, batch(1, 3, "a"))
	require.NoError(t, err)
	_, err = p.Apply(ctx, batch(3, 3, "c"))
	require.NoError(t, err)

	err = p.Finish(ctx, []models.ProcessResult{{Text: "a"}, {Text: "b"}, {Text: "c"}})
	require.ErrorContains(t, err, "missing batches [2]")
	require.Len(t, w.Results("s1"), 2)
}
