//spawns the analysis worker per job, reads its marker stream from stdout/stderr, and tracks live processes for cancellation.

package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/draiimon/PanicSense-Final-sub000/app/apperrors"
	"github.com/draiimon/PanicSense-Final-sub000/app/config"
	"github.com/draiimon/PanicSense-Final-sub000/app/logging"
	"github.com/draiimon/PanicSense-Final-sub000/app/models"
	"github.com/google/uuid"
)

// Quota is the part of the usage tracker the manager needs.
type Quota interface {
	ProcessableRowCount(requested int) int
	IncrementRowCount(n int)
}

// ExampleStore persists user corrections. FindExample returns nil, nil when
// nothing matches.
type ExampleStore interface {
	FindExample(ctx context.Context, text string) (*models.TrainingExample, error)
	SaveExample(ctx context.Context, ex models.TrainingExample) error
}

// BatchJob describes one file analysis. The callbacks run on a single
// goroutine in the order the worker emitted the markers.
type BatchJob struct {
	Data         []byte
	OriginalName string
	SessionID    string
	OnProgress   func(models.WorkerProgress)
	OnBatch      func(models.BatchEvent)
}

type BatchOutcome struct {
	Results     []models.ProcessResult
	Metrics     *models.Metrics
	StoredName  string
	TempPath    string
	RecordCount int
	Requested   int
	Source      PayloadSource
	ExitErr     error
}

// Truncated reports whether the daily quota cut rows from the upload.
func (o *BatchOutcome) Truncated() bool {
	return o.RecordCount < o.Requested
}

type activeProcess struct {
	cmd       *exec.Cmd
	tempPath  string
	startedAt time.Time
	canceled  bool
}

type Manager struct {
	cfg      config.WorkerConfig
	quota    Quota
	examples ExampleStore
	cache    ExampleCache
	console  *ConsoleLog
	logger   *slog.Logger
	rand     func() float64

	mu     sync.Mutex
	active map[string]*activeProcess
}

type Option func(*Manager)

func WithExampleStore(s ExampleStore) Option {
	return func(m *Manager) { m.examples = s }
}

func WithExampleCache(c ExampleCache) Option {
	return func(m *Manager) { m.cache = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func NewManager(cfg config.WorkerConfig, quota Quota, opts ...Option) *Manager {
	m := &Manager{
		cfg:     cfg,
		quota:   quota,
		console: NewConsoleLog(cfg.ConsoleLogSize),
		logger:  logging.Discard(),
		rand:    rand.Float64,
		active:  make(map[string]*activeProcess),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cache == nil {
		m.cache = NewMemoryCache(0)
	}
	return m
}

func (m *Manager) command(ctx context.Context, args ...string) *exec.Cmd {
	full := append(append([]string{}, m.cfg.Args...), args...)
	cmd := exec.CommandContext(ctx, m.cfg.Command, full...)
	cmd.Cancel = func() error { return terminate(cmd) }
	cmd.WaitDelay = 5 * time.Second
	return cmd
}

func (m *Manager) jobContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, m.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// StartBatchJob runs the worker over one uploaded file and blocks until it
// exits. A canceled job returns apperrors.ErrCanceled and no results.
func (m *Manager) StartBatchJob(ctx context.Context, job BatchJob) (*BatchOutcome, error) {
	if job.SessionID == "" {
		job.SessionID = uuid.NewString()
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: session %s stopped before the worker started", apperrors.ErrCanceled, job.SessionID)
	}
	header, rows, err := ParseRows(job.Data)
	if err != nil {
		return nil, err
	}

	requested := len(rows)
	allowed := m.quota.ProcessableRowCount(requested)
	if allowed <= 0 {
		return nil, fmt.Errorf("%w: %d rows requested", apperrors.ErrQuotaExhausted, requested)
	}
	if allowed < requested {
		rows = rows[:allowed]
		m.logger.Info("upload truncated to remaining daily quota",
			"session_id", job.SessionID, "requested", requested, "allowed", allowed)
		emit(job.OnProgress, models.WorkerProgress{
			Processed: 0,
			Stage:     fmt.Sprintf("Daily limit restriction: processing %d of %d rows", allowed, requested),
			Total:     &allowed,
		})
	}

	input, err := encodeRows(header, rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedInput, err)
	}
	tempPath, err := writeTemp(m.cfg.TempDir, input)
	if err != nil {
		return nil, fmt.Errorf("%w: temp file: %v", apperrors.ErrWorkerSpawnFailed, err)
	}

	runCtx, cancel := m.jobContext(ctx)
	defer cancel()

	cmd := m.command(runCtx, "--file", tempPath)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("%w: %v", apperrors.ErrWorkerSpawnFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("%w: %v", apperrors.ErrWorkerSpawnFailed, err)
	}

	ap, err := m.register(ctx, job.SessionID, cmd, tempPath)
	if err != nil {
		os.Remove(tempPath)
		return nil, err
	}
	m.logger.Info("worker started",
		"session_id", job.SessionID, "pid", cmd.Process.Pid, "rows", len(rows), "file", job.OriginalName)
	m.console.Add("system", job.SessionID, fmt.Sprintf("worker started for %s (%d rows)", job.OriginalName, len(rows)))

	stdoutText, streamed := m.consume(job, stdout, stderr)
	waitErr := cmd.Wait()

	canceled := m.release(job.SessionID, ap)
	if canceled || ctx.Err() != nil {
		os.Remove(tempPath)
		m.logger.Info("worker canceled", "session_id", job.SessionID)
		return nil, fmt.Errorf("%w: session %s", apperrors.ErrCanceled, job.SessionID)
	}

	payload, source := resolvePayload(stdoutText, waitErr, streamed)
	if source.Degraded() {
		m.logger.Warn("worker output recovered without a clean payload",
			"session_id", job.SessionID, "source", string(source), "results", len(payload.Results), "exit_error", waitErr)
		m.console.Add("error", job.SessionID, fmt.Sprintf("worker result recovered from %s", source))
	} else {
		m.logger.Info("worker finished", "session_id", job.SessionID, "results", len(payload.Results))
	}

	m.quota.IncrementRowCount(max(len(payload.Results), 1))

	return &BatchOutcome{
		Results:     payload.Results,
		Metrics:     payload.Metrics,
		StoredName:  storedName(job.OriginalName),
		TempPath:    tempPath,
		RecordCount: len(rows),
		Requested:   requested,
		Source:      source,
		ExitErr:     waitErr,
	}, nil
}

// register starts cmd unless ctx is already done, so a cancel that arrives
// before the process exists still prevents the spawn.
func (m *Manager) register(ctx context.Context, sessionID string, cmd *exec.Cmd, tempPath string) (*activeProcess, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: session %s stopped before the worker started", apperrors.ErrCanceled, sessionID)
	}
	if _, busy := m.active[sessionID]; busy {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrSessionActive, sessionID)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrWorkerSpawnFailed, err)
	}
	ap := &activeProcess{cmd: cmd, tempPath: tempPath, startedAt: time.Now().UTC()}
	m.active[sessionID] = ap
	return ap, nil
}

// release removes the registry entry unless a cancel already did, and
// reports whether the job was canceled.
func (m *Manager) release(sessionID string, ap *activeProcess) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[sessionID] == ap {
		delete(m.active, sessionID)
	}
	return ap.canceled
}

type streamLine struct {
	stderr bool
	text   string
}

// consume merges both pipes into one dispatch loop so callbacks never run concurrently.
func (m *Manager) consume(job BatchJob, stdout, stderr io.Reader) (string, []models.ProcessResult) {
	lines := make(chan streamLine, 64)
	var wg sync.WaitGroup
	wg.Add(2)
	go m.scan(stdout, false, lines, &wg)
	go m.scan(stderr, true, lines, &wg)
	go func() {
		wg.Wait()
		close(lines)
	}()

	var out strings.Builder
	var streamed []models.ProcessResult
	seen := make(map[int]bool)

	for ln := range lines {
		ev, err := DecodeLine(ln.text)
		if err != nil {
			m.logger.Warn("skipping malformed worker marker", "session_id", job.SessionID, "error", err)
			m.console.Add("error", job.SessionID, err.Error())
			continue
		}
		switch ev.Kind {
		case EventProgress:
			m.console.Add("progress", job.SessionID, ev.Progress.Stage)
			emit(job.OnProgress, *ev.Progress)
		case EventBatch:
			m.console.Add("output", job.SessionID,
				fmt.Sprintf("batch %d/%d complete (%d rows)", ev.Batch.BatchNumber, ev.Batch.TotalBatches, len(ev.Batch.Results)))
			if !seen[ev.Batch.BatchNumber] {
				seen[ev.Batch.BatchNumber] = true
				streamed = append(streamed, ev.Batch.Results...)
			}
			emit(job.OnBatch, *ev.Batch)
		default:
			if ln.stderr {
				m.logger.Debug("worker stderr", "session_id", job.SessionID, "line", ln.text)
				m.console.Add("error", job.SessionID, ln.text)
				continue
			}
			out.WriteString(ln.text)
			out.WriteByte('\n')
		}
	}
	return out.String(), streamed
}

func (m *Manager) scan(r io.Reader, isStderr bool, lines chan<- streamLine, wg *sync.WaitGroup) {
	defer wg.Done()
	limit := m.cfg.MaxLineBytes
	if limit <= 0 {
		limit = 16 << 20
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), limit)
	for sc.Scan() {
		lines <- streamLine{stderr: isStderr, text: sc.Text()}
	}
	if err := sc.Err(); err != nil {
		m.logger.Warn("worker output line dropped", "stderr", isStderr, "error", err)
		// keep draining so the worker never blocks on a full pipe
		_, _ = io.Copy(io.Discard, r)
	}
}

// Cancel signals the worker for sessionID and reports whether one was running.
func (m *Manager) Cancel(sessionID string) bool {
	m.mu.Lock()
	ap, ok := m.active[sessionID]
	if ok {
		ap.canceled = true
		delete(m.active, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	if err := terminate(ap.cmd); err != nil {
		m.logger.Warn("failed to signal worker", "session_id", sessionID, "error", err)
	}
	if err := os.Remove(ap.tempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.logger.Warn("failed to remove worker temp file", "session_id", sessionID, "path", ap.tempPath, "error", err)
	}
	m.console.Add("system", sessionID, "worker canceled")
	m.logger.Info("worker cancel requested", "session_id", sessionID)
	return true
}

// CancelAll cancels every live worker and returns how many were signaled.
func (m *Manager) CancelAll() int {
	n := 0
	for _, id := range m.ActiveSessions() {
		if m.Cancel(id) {
			n++
		}
	}
	return n
}

func (m *Manager) ActiveSessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) ActiveSessionDetails() []models.ActiveSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ActiveSession, 0, len(m.active))
	for id, ap := range m.active {
		info := models.ActiveSession{SessionID: id, StartedAt: ap.startedAt, TempPath: ap.tempPath}
		if ap.cmd.Process != nil {
			info.PID = ap.cmd.Process.Pid
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func (m *Manager) ConsoleLogs() []ConsoleEntry {
	return m.console.Entries()
}

func terminate(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	err := cmd.Process.Signal(syscall.SIGTERM)
	if err == nil || errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return cmd.Process.Kill()
}

func writeTemp(dir string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, "panicsense-upload-*.csv")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func storedName(original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	if ext == "" {
		ext = ".csv"
	}
	return uuid.NewString() + ext
}

func emit[T any](fn func(T), v T) {
	if fn != nil {
		fn(v)
	}
}
