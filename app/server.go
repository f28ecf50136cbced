// Package app wires the upload pipeline behind the HTTP API shared by the
// local server and the Lambda entry point.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/draiimon/PanicSense-Final-sub000/app/batches"
	"github.com/draiimon/PanicSense-Final-sub000/app/config"
	"github.com/draiimon/PanicSense-Final-sub000/app/logging"
	"github.com/draiimon/PanicSense-Final-sub000/app/progress"
	"github.com/draiimon/PanicSense-Final-sub000/app/ratelimit"
	"github.com/draiimon/PanicSense-Final-sub000/app/sessions"
	"github.com/draiimon/PanicSense-Final-sub000/app/usage"
	"github.com/draiimon/PanicSense-Final-sub000/app/worker"
)

// Archiver keeps a copy of an accepted upload under its stored name.
type Archiver interface {
	Store(ctx context.Context, name string, data []byte) error
}

type Deps struct {
	Config   *config.Config
	Manager  *worker.Manager
	Sessions *sessions.Store
	Usage    *usage.Tracker
	Limiter  *ratelimit.Limiter
	Broker   *progress.Broker
	Results  batches.ResultStore
	Archive  Archiver
	Logger   *slog.Logger
}

type Server struct {
	cfg      *config.Config
	manager  *worker.Manager
	sessions *sessions.Store
	usage    *usage.Tracker
	limiter  *ratelimit.Limiter
	broker   *progress.Broker
	results  batches.ResultStore
	archive  Archiver
	logger   *slog.Logger

	// jobs outlive the request that started them and stop with the server.
	jobCtx  context.Context
	stopJob context.CancelFunc
	jobs    sync.WaitGroup

	jobMu   sync.Mutex
	closing bool
	pending map[string]context.CancelFunc
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Broker == nil {
		d.Broker = progress.NewBroker()
	}
	if d.Results == nil {
		d.Results = batches.NewMemoryWriter()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      d.Config,
		manager:  d.Manager,
		sessions: d.Sessions,
		usage:    d.Usage,
		limiter:  d.Limiter,
		broker:   d.Broker,
		results:  d.Results,
		archive:  d.Archive,
		logger:   d.Logger,
		jobCtx:   ctx,
		stopJob:  cancel,
		pending:  make(map[string]context.CancelFunc),
	}
}

// Build connects the configured backends and assembles a Server around them.
// The returned Backends must be closed after the server shuts down.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, *Backends, error) {
	b, err := OpenBackends(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	trackerOpts := []usage.Option{usage.WithLogger(logger)}
	if b.Usage != nil {
		trackerOpts = append(trackerOpts, usage.WithStore(b.Usage))
	}
	tracker := usage.NewTracker(cfg.Quota.DailyLimit, trackerOpts...)
	if err := tracker.Load(ctx); err != nil {
		logger.Warn("could not restore usage stats, starting a fresh day", "error", err)
	}

	managerOpts := []worker.Option{
		worker.WithLogger(logger),
		worker.WithExampleCache(b.Cache),
	}
	if b.Examples != nil {
		managerOpts = append(managerOpts, worker.WithExampleStore(b.Examples))
	}

	deps := Deps{
		Config:  cfg,
		Manager: worker.NewManager(cfg.Worker, tracker, managerOpts...),
		Sessions: sessions.NewStore(b.Sessions,
			sessions.WithLogger(logger),
			sessions.WithPublisher(b.Events)),
		Usage:   tracker,
		Limiter: ratelimit.NewLimiter(cfg.RateLimits, logger),
		Broker:  progress.NewBroker(),
		Results: b.Results,
		Logger:  logger,
	}
	if b.Archive != nil {
		deps.Archive = b.Archive
	}
	return NewServer(deps), b, nil
}

// Start recovers sessions orphaned by a previous server process and launches
// the periodic maintenance loops. They stop when ctx is done.
func (s *Server) Start(ctx context.Context) error {
	if active, err := s.sessions.FindActive(ctx); err != nil {
		s.logger.Warn("could not look up in-flight uploads", "error", err)
	} else if active != nil && s.sessions.IsOrphaned(*active) {
		s.logger.Warn("found upload left processing by a previous server", "session_id", active.SessionID)
	}
	if _, err := s.sessions.RecoverOrphans(ctx); err != nil {
		return fmt.Errorf("recover orphaned sessions: %w", err)
	}

	go s.sessions.RunCleanup(ctx, s.cfg.Server.CleanupInterval)
	go s.limiter.Run(ctx, s.cfg.Server.SweepInterval)
	return nil
}

// Shutdown refuses new uploads, cancels every running worker and waits for the upload goroutines
// to record their final state, or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.jobMu.Lock()
	s.closing = true
	s.jobMu.Unlock()

	if n := s.manager.CancelAll(); n > 0 {
		s.logger.Info("canceled running workers for shutdown", "count", n)
	}
	s.stopJob()

	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
