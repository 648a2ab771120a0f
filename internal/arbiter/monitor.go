package arbiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"proctor/internal/logging"
	"proctor/internal/signal"
	"proctor/internal/violation"
	"proctor/internal/violationlog"
)

// ErrWriterReleased is returned when a released Writer is used.
var ErrWriterReleased = errors.New("signal writer released")

const (
	defaultQueueSize  = 64
	loggedChannelSize = 64
)

// State is the published result of the most recent evaluation. Values handed
// out by the Monitor are copies and may be retained by the caller.
type State struct {
	SessionID string
	Active    *violation.Active
	Snapshot  signal.Snapshot
	Noise     bool
	// Evaluations counts completed evaluations since the monitor started.
	Evaluations uint64
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithLogger sets the monitor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source used for log entries and Active.Since.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// WithQueueSize bounds the number of queued commands before writers block.
func WithQueueSize(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.queueSize = n
		}
	}
}

// WithSessionID sets the session stamped on log entries until SetSession changes it.
func WithSessionID(id string) Option {
	return func(m *Monitor) {
		m.sessionID = id
	}
}

type commandKind int

const (
	cmdUpdate commandKind = iota
	cmdEvaluate
	cmdDismiss
	cmdSession
	cmdSync
)

type command struct {
	kind    commandKind
	update  signal.Update
	target  violation.Kind
	session string
	done    chan bool
}

// Monitor serializes every signal change through one FIFO queue and one
// evaluation loop. The loop alone owns the snapshot and the active violation;
// readers observe published copies.
type Monitor struct {
	engine    *Engine
	journal   *violationlog.Journal
	logger    *slog.Logger
	now       func() time.Time
	queueSize int
	queue     chan command

	claimMu sync.Mutex
	claimed [signal.Count]bool

	// Owned by Run.
	snap      signal.Snapshot
	active    *violation.Active
	noise     bool
	sessionID string
	evals     uint64

	stateMu sync.RWMutex
	state   State

	subsMu sync.Mutex
	subs   map[int]chan State
	nextID int

	logged chan violationlog.Entry
}

// NewMonitor constructs a monitor that appends to journal.
func NewMonitor(journal *violationlog.Journal, opts ...Option) *Monitor {
	if journal == nil {
		journal = violationlog.NewJournal()
	}
	m := &Monitor{
		engine:    NewEngine(),
		journal:   journal,
		logger:    logging.NewNop(),
		now:       time.Now,
		queueSize: defaultQueueSize,
		subs:      make(map[int]chan State),
		logged:    make(chan violationlog.Entry, loggedChannelSize),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.queue = make(chan command, m.queueSize)
	m.state = State{SessionID: m.sessionID}
	return m
}

// Journal returns the log the monitor appends to.
func (m *Monitor) Journal() *violationlog.Journal {
	return m.journal
}

// Claim hands out the single writer for a signal slot. A second claim of the
// same slot fails with signal.ErrSlotClaimed until the first writer is released.
func (m *Monitor) Claim(id signal.ID) (*Writer, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("claim %v: %w", id, signal.ErrUnknownSignal)
	}
	m.claimMu.Lock()
	defer m.claimMu.Unlock()
	if m.claimed[id] {
		return nil, fmt.Errorf("claim %s: %w", id, signal.ErrSlotClaimed)
	}
	m.claimed[id] = true
	return &Writer{monitor: m, id: id}, nil
}

func (m *Monitor) release(id signal.ID) {
	m.claimMu.Lock()
	m.claimed[id] = false
	m.claimMu.Unlock()
}

// Writer is the exclusive handle for one signal slot.
type Writer struct {
	monitor   *Monitor
	id        signal.ID
	releaseMu sync.Mutex
	released  atomic.Bool
}

// Signal returns the slot this writer owns.
func (w *Writer) Signal() signal.ID {
	return w.id
}

// Set enqueues a new value for the slot. It blocks only while the queue is full.
func (w *Writer) Set(ctx context.Context, value signal.TriState) error {
	if w.released.Load() {
		return fmt.Errorf("set %s: %w", w.id, ErrWriterReleased)
	}
	return w.monitor.enqueue(ctx, command{kind: cmdUpdate, update: signal.Update{Signal: w.id, Value: value}})
}

// Release writes Unset to the slot and gives up the claim. If the Unset
// cannot be queued before ctx ends, the writer keeps the claim and stays
// usable so the caller can retry.
func (w *Writer) Release(ctx context.Context) error {
	w.releaseMu.Lock()
	defer w.releaseMu.Unlock()
	if w.released.Load() {
		return nil
	}
	if err := w.monitor.enqueue(ctx, command{kind: cmdUpdate, update: signal.Update{Signal: w.id, Value: signal.Unset}}); err != nil {
		return fmt.Errorf("release %s: %w", w.id, err)
	}
	w.released.Store(true)
	w.monitor.release(w.id)
	return nil
}

func (m *Monitor) enqueue(ctx context.Context, cmd command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case m.queue <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) roundTrip(ctx context.Context, cmd command) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.done = make(chan bool, 1)
	if err := m.enqueue(ctx, cmd); err != nil {
		return false, err
	}
	select {
	case result := <-cmd.done:
		return result, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Evaluate forces a re-evaluation of the current snapshot and waits for it.
// Because it travels the same queue as updates, it also acts as a barrier:
// every update enqueued before the call has been applied when it returns.
func (m *Monitor) Evaluate(ctx context.Context) error {
	_, err := m.roundTrip(ctx, command{kind: cmdEvaluate})
	return err
}

// Sync waits until every command enqueued before the call has been applied,
// without forcing an evaluation.
func (m *Monitor) Sync(ctx context.Context) error {
	_, err := m.roundTrip(ctx, command{kind: cmdSync})
	return err
}

// Dismiss closes the prompt of kind if it is still the active violation. It
// reports whether a prompt was closed.
func (m *Monitor) Dismiss(ctx context.Context, kind violation.Kind) (bool, error) {
	return m.roundTrip(ctx, command{kind: cmdDismiss, target: kind})
}

// SetSession changes the session identifier stamped on later log entries.
func (m *Monitor) SetSession(ctx context.Context, id string) error {
	_, err := m.roundTrip(ctx, command{kind: cmdSession, session: id})
	return err
}

// State returns the most recently published state.
func (m *Monitor) State() State {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return copyState(m.state)
}

// Subscribe returns a channel that receives every published state. Slow
// subscribers miss intermediate states but always see the latest one. The
// returned function unsubscribes.
func (m *Monitor) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	m.subsMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subsMu.Lock()
			delete(m.subs, id)
			m.subsMu.Unlock()
		})
	}
}

// Logged returns the channel of appended log entries. Entries are dropped when
// nobody drains it.
func (m *Monitor) Logged() <-chan violationlog.Entry {
	return m.logged
}

// Run is the evaluation loop. It returns when ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-m.queue:
			m.handle(ctx, cmd)
		}
	}
}

func (m *Monitor) handle(ctx context.Context, cmd command) {
	result := true
	switch cmd.kind {
	case cmdUpdate:
		if m.snap.Get(cmd.update.Signal) == cmd.update.Value {
			break
		}
		m.snap = m.snap.With(cmd.update.Signal, cmd.update.Value)
		m.logger.Debug("signal updated",
			logging.String(logging.FieldSignal, cmd.update.Signal.String()),
			logging.String("value", cmd.update.Value.String()),
		)
		m.evaluate(ctx)
	case cmdEvaluate:
		m.evaluate(ctx)
	case cmdDismiss:
		result = false
		if m.active != nil && m.active.Kind == cmd.target && m.active.PromptOpen {
			m.active.PromptOpen = false
			result = true
			m.publish()
		}
	case cmdSession:
		m.sessionID = cmd.session
		m.publish()
	case cmdSync:
	}
	if cmd.done != nil {
		cmd.done <- result
	}
}

func (m *Monitor) evaluate(ctx context.Context) {
	decision := m.engine.Evaluate(m.snap)
	now := m.now()
	m.evals++

	var pending []violation.Kind
	prev := violation.KindOf(m.active)
	if decision.Kind != prev {
		if decision.Kind == violation.None {
			m.logger.Info("violation cleared",
				logging.String(logging.FieldViolationKind, prev.String()),
				logging.String(logging.FieldEventType, "violation_cleared"),
			)
			m.active = nil
		} else {
			m.active = &violation.Active{Kind: decision.Kind, Since: now, PromptOpen: true}
			pending = append(pending, decision.Kind)
		}
	}
	if decision.Noise && !m.noise {
		pending = append(pending, violation.NoiseDetected)
	}
	m.noise = decision.Noise

	sort.Slice(pending, func(i, j int) bool { return pending[i].Rank() < pending[j].Rank() })
	for _, kind := range pending {
		entry := m.journal.Append(ctx, violationlog.Entry{
			Timestamp: now,
			Kind:      kind,
			Message:   kind.Message(),
			SessionID: m.sessionID,
		})
		if m.active != nil && kind == m.active.Kind {
			m.active.Seq = entry.Seq
		}
		m.logger.Info("violation detected",
			logging.String(logging.FieldViolationKind, kind.String()),
			logging.Int64("seq", entry.Seq),
			logging.Bool("blocking", kind.Blocking()),
			logging.String(logging.FieldEventType, "violation_detected"),
		)
		select {
		case m.logged <- entry:
		default:
			m.logger.Debug("logged channel full; entry not forwarded", logging.Int64("seq", entry.Seq))
		}
	}

	m.publish()
}

func (m *Monitor) publish() {
	st := State{
		SessionID:   m.sessionID,
		Snapshot:    m.snap,
		Noise:       m.noise,
		Evaluations: m.evals,
	}
	if m.active != nil {
		active := *m.active
		st.Active = &active
	}

	m.stateMu.Lock()
	m.state = st
	m.stateMu.Unlock()

	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- copyState(st):
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- copyState(st):
		default:
		}
	}
}

func copyState(st State) State {
	if st.Active != nil {
		active := *st.Active
		st.Active = &active
	}
	return st
}
