package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"distill/internal/apply"
	"distill/internal/config"
	"distill/internal/logging"
	"distill/internal/notifications"
	"distill/internal/queue"
	"distill/internal/reaper"
	"distill/internal/services/llmtool"
	"distill/internal/storage"
	"distill/internal/worker"
)

// Daemon coordinates the background services and enforces single-instance
// execution through a lock file in the data directory.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *storage.DB
	store    *queue.Store
	worker   *worker.Worker
	reaper   *reaper.Reaper
	notifier notifications.Service
	executor worker.Executor

	lockPath string
	lock     *flock.Flock

	running    atomic.Bool
	cancel     context.CancelFunc
	workerDone chan struct{}
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Queue        queue.Stats
	Reaper       reaper.Status
	DatabasePath string
	LockFilePath string
}

// Option configures the daemon.
type Option func(*Daemon)

// WithExecutor replaces the external tool client (primarily for tests).
func WithExecutor(executor worker.Executor) Option {
	return func(d *Daemon) {
		if executor != nil {
			d.executor = executor
		}
	}
}

// New opens the shared database and wires the worker and reaper. The returned
// daemon holds no lock until Start.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	db, err := storage.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logger.With(slog.String(logging.FieldComponent, "daemon")),
		db:       db,
		store:    queue.NewStore(db),
		notifier: notifications.NewService(cfg),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.executor == nil {
		client, err := llmtool.New(cfg, logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("build tool client: %w", err)
		}
		d.executor = client
	}
	d.worker = worker.New(cfg, db, d.executor, logger)
	d.reaper = reaper.New(cfg, d.store, apply.NewApplier(db, logger), logger)
	return d, nil
}

// Start acquires the daemon lock, runs the reaper's startup recovery pass, and
// launches the worker poll loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another distill daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	if err := d.reaper.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start reaper: %w", err)
	}

	d.workerDone = make(chan struct{})
	go func() {
		defer close(d.workerDone)
		d.worker.Run(runCtx)
	}()

	d.running.Store(true)
	d.logger.Info("distill daemon started", slog.String("lock", d.lockPath))
	return nil
}

// Stop halts background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.reaper.Stop()
	if d.workerDone != nil {
		<-d.workerDone
		d.workerDone = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("distill daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	stats, err := d.store.Stats(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:      d.running.Load(),
		Queue:        stats,
		Reaper:       d.reaper.Status(),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
	}, nil
}
