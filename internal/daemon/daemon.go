package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"proctor/internal/arbiter"
	"proctor/internal/config"
	"proctor/internal/logging"
	"proctor/internal/notifications"
	"proctor/internal/remediation"
	"proctor/internal/signal"
	"proctor/internal/sources"
	"proctor/internal/violationlog"
)

var (
	// ErrNotHostOwned is returned when the host reports a signal that a native
	// source measures itself.
	ErrNotHostOwned = errors.New("signal is not reported by the host")
	// ErrNotRunning is returned by operations that need a started daemon.
	ErrNotRunning = errors.New("daemon not running")
)

const (
	sourceStopTimeout  = 5 * time.Second
	notifyTimeoutGrace = 5 * time.Second
)

// Daemon coordinates the monitor, its signal sources, and remediation, and
// enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *violationlog.Store
	notifier notifications.Service

	journal    *violationlog.Journal
	monitor    *arbiter.Monitor
	dispatcher *remediation.Dispatcher
	requests   *sources.RequestQueue

	hosts   map[signal.ID]*sources.HostSource
	screen  *sources.ScreenCaptureSource
	noise   *sources.NoiseSource
	display *sources.DisplaySource
	sources []sources.Source

	lockPath string
	lock     *flock.Flock

	// lifecycle serializes Start, Stop, and Reload.
	lifecycle sync.Mutex
	running   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	sessionMu sync.RWMutex
	sessionID string
}

// New constructs a daemon with initialized dependencies. A nil store keeps the
// audit log in memory only; a nil notifier disables notifications.
func New(cfg *config.Config, store *violationlog.Store, logger *slog.Logger, notifier notifications.Service) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}

	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     store,
		notifier:  notifier,
		requests:  sources.NewRequestQueue(),
		lockPath:  cfg.LockPath(),
		lock:      flock.New(cfg.LockPath()),
		sessionID: uuid.NewString(),
	}

	journalOpts := []violationlog.JournalOption{
		violationlog.WithSinkErrorHandler(d.onSinkError),
	}
	if store != nil {
		journalOpts = append(journalOpts, violationlog.WithSink(store))
	}
	d.journal = violationlog.NewJournal(journalOpts...)
	d.monitor = arbiter.NewMonitor(d.journal,
		arbiter.WithLogger(logging.NewComponentLogger(logger, "monitor")),
		arbiter.WithQueueSize(cfg.Monitor.QueueSize),
		arbiter.WithSessionID(d.sessionID),
	)
	d.dispatcher = remediation.NewDispatcher(logger)

	d.buildSources(logger)
	d.registerHandlers()
	return d, nil
}

func (d *Daemon) onSinkError(entry violationlog.Entry, err error) {
	logging.WarnWithContext(d.logger, "violation not persisted", "violation_persist_failed",
		logging.Int64("seq", entry.Seq),
		logging.String(logging.FieldViolationKind, entry.Kind.String()),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check free space and permissions on the state directory"),
		logging.String(logging.FieldImpact, "entry is kept in memory but missing from history"),
	)
}

// Start acquires the daemon lock, starts the monitor loop, and starts every
// signal source under a fresh session.
func (d *Daemon) Start(ctx context.Context) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("ensure lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another proctor daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	runCtx := d.ctx

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		if err := d.monitor.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("monitor loop exited", logging.Error(err))
		}
	}()
	go func() {
		defer d.wg.Done()
		d.forwardNotifications(runCtx)
	}()

	if err := d.startSources(runCtx); err != nil {
		d.cancel()
		d.wg.Wait()
		_ = d.lock.Unlock()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start sources: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("proctor daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldSessionID, d.SessionID()),
		logging.Int("sources", len(d.sources)),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop stops every source, ends the monitor loop, and releases the daemon lock.
func (d *Daemon) Stop() {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	if !d.running.Load() {
		return
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), sourceStopTimeout)
	d.stopSources(stopCtx)
	cancel()

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"),
		)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("proctor daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start has succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// SessionID returns the identifier stamped on new log entries.
func (d *Daemon) SessionID() string {
	d.sessionMu.RLock()
	defer d.sessionMu.RUnlock()
	return d.sessionID
}

// Monitor exposes the arbitration monitor.
func (d *Daemon) Monitor() *arbiter.Monitor {
	return d.monitor
}

// Violations returns every entry appended since the daemon was created, in
// insertion order. The log survives reloads.
func (d *Daemon) Violations(_ context.Context) []violationlog.Entry {
	return d.journal.ReadAll()
}

// History reads persisted entries. An empty session returns every session.
func (d *Daemon) History(ctx context.Context, sessionID string) ([]violationlog.Entry, error) {
	if d.store == nil {
		return nil, errors.New("violation store unavailable")
	}
	if strings.TrimSpace(sessionID) == "" {
		return d.store.ReadAll(ctx)
	}
	return d.store.ReadSession(ctx, strings.TrimSpace(sessionID))
}

// Sessions summarizes the persisted sessions.
func (d *Daemon) Sessions(ctx context.Context) ([]violationlog.SessionSummary, error) {
	if d.store == nil {
		return nil, errors.New("violation store unavailable")
	}
	return d.store.Sessions(ctx)
}

// PendingRequests lists host requests, removing them when drain is set.
func (d *Daemon) PendingRequests(_ context.Context, drain bool) []sources.Request {
	if drain {
		return d.requests.Drain()
	}
	return d.requests.Pending()
}

// Requests exposes the host request queue.
func (d *Daemon) Requests() *sources.RequestQueue {
	return d.requests
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg == nil {
		return false, "configuration unavailable", errors.New("configuration unavailable")
	}
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

func (d *Daemon) forwardNotifications(ctx context.Context) {
	logged := d.monitor.Logged()
	timeout := time.Duration(d.cfg.Notifications.RequestTimeout)*time.Second + notifyTimeoutGrace
	for {
		select {
		case <-ctx.Done():
			return
		case entry := <-logged:
			notifyCtx, cancel := context.WithTimeout(ctx, timeout)
			err := d.notifier.NotifyViolation(notifyCtx, entry)
			cancel()
			if err != nil && ctx.Err() == nil {
				logging.WarnWithContext(d.logger, "violation notification failed", "notification_failed",
					logging.String(logging.FieldViolationKind, entry.Kind.String()),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "run proctor test-notify to check the ntfy topic"),
					logging.String(logging.FieldImpact, "supervisor was not alerted"),
				)
			}
		}
	}
}

func (d *Daemon) ensureRunning() error {
	if !d.running.Load() {
		return ErrNotRunning
	}
	return nil
}

