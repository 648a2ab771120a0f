package arbiter_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"proctor/internal/arbiter"
	"proctor/internal/signal"
	"proctor/internal/violation"
	"proctor/internal/violationlog"
)

type fixture struct {
	t       *testing.T
	monitor *arbiter.Monitor
	journal *violationlog.Journal
	writers map[signal.ID]*arbiter.Writer
	ctx     context.Context
}

func newFixture(t *testing.T, opts ...arbiter.Option) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	journal := violationlog.NewJournal()
	monitor := arbiter.NewMonitor(journal, opts...)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = monitor.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	f := &fixture{t: t, monitor: monitor, journal: journal, writers: map[signal.ID]*arbiter.Writer{}, ctx: ctx}
	for _, id := range signal.All() {
		w, err := monitor.Claim(id)
		if err != nil {
			t.Fatalf("Claim(%s): %v", id, err)
		}
		f.writers[id] = w
	}
	return f
}

// set applies an update and waits until it has been evaluated.
func (f *fixture) set(id signal.ID, value signal.TriState) {
	f.t.Helper()
	if err := f.writers[id].Set(f.ctx, value); err != nil {
		f.t.Fatalf("Set(%s, %s): %v", id, value, err)
	}
	if err := f.monitor.Evaluate(f.ctx); err != nil {
		f.t.Fatalf("Evaluate: %v", err)
	}
}

func (f *fixture) allOK() {
	for _, id := range signal.All() {
		f.set(id, signal.Ok)
	}
}

func (f *fixture) activeKind() violation.Kind {
	return violation.KindOf(f.monitor.State().Active)
}

func TestClaimIsExclusive(t *testing.T) {
	monitor := arbiter.NewMonitor(nil)
	if _, err := monitor.Claim(signal.TabFocus); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	_, err := monitor.Claim(signal.TabFocus)
	if !errors.Is(err, signal.ErrSlotClaimed) {
		t.Fatalf("expected ErrSlotClaimed, got %v", err)
	}
	if _, err := monitor.Claim(signal.ID(99)); !errors.Is(err, signal.ErrUnknownSignal) {
		t.Fatalf("expected ErrUnknownSignal, got %v", err)
	}
}

func TestReleaseWritesUnsetAndFreesSlot(t *testing.T) {
	f := newFixture(t)
	f.set(signal.Fullscreen, signal.Violated)
	if f.activeKind() != violation.FullScreenExited {
		t.Fatalf("expected fullscreen violation, got %s", f.activeKind())
	}

	w := f.writers[signal.Fullscreen]
	if err := w.Release(f.ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := f.monitor.Evaluate(f.ctx); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	st := f.monitor.State()
	if st.Active != nil || st.Snapshot.Get(signal.Fullscreen) != signal.Unset {
		t.Fatalf("expected unset slot and no violation, got %+v", st)
	}
	if err := w.Set(f.ctx, signal.Violated); !errors.Is(err, arbiter.ErrWriterReleased) {
		t.Fatalf("expected ErrWriterReleased, got %v", err)
	}
	if _, err := f.monitor.Claim(signal.Fullscreen); err != nil {
		t.Fatalf("expected slot reclaimable after release: %v", err)
	}
	if f.journal.Len() != 1 {
		t.Fatalf("clearing must not log, journal has %d entries", f.journal.Len())
	}
}

func TestUnsetToOkDoesNotLog(t *testing.T) {
	f := newFixture(t)
	f.allOK()
	if f.journal.Len() != 0 {
		t.Fatalf("expected empty journal, got %+v", f.journal.ReadAll())
	}
	if f.monitor.State().Active != nil {
		t.Fatal("expected no active violation")
	}
}

func TestReevaluationIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.allOK()
	f.set(signal.TabFocus, signal.Violated)
	for i := 0; i < 3; i++ {
		if err := f.monitor.Evaluate(f.ctx); err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
	}
	f.set(signal.TabFocus, signal.Violated)
	if f.journal.Len() != 1 {
		t.Fatalf("expected a single entry, got %+v", f.journal.ReadAll())
	}
}

func TestActiveSinceSurvivesSameKind(t *testing.T) {
	var mu sync.Mutex
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	f := newFixture(t, arbiter.WithClock(now))
	f.allOK()
	f.set(signal.MultiDisplay, signal.Violated)
	since := f.monitor.State().Active.Since

	// A lower-precedence change leaves the active kind and its onset untouched.
	f.set(signal.Fullscreen, signal.Violated)
	st := f.monitor.State()
	if st.Active.Kind != violation.MultipleDisplaysDetected || !st.Active.Since.Equal(since) {
		t.Fatalf("expected unchanged active violation, got %+v", st.Active)
	}
	if f.journal.Len() != 1 {
		t.Fatalf("expected one entry, got %d", f.journal.Len())
	}
}

func TestLogIsMonotonic(t *testing.T) {
	f := newFixture(t)
	f.allOK()
	steps := []struct {
		id    signal.ID
		value signal.TriState
	}{
		{signal.Fullscreen, signal.Violated},
		{signal.CameraPermission, signal.Violated},
		{signal.CameraPermission, signal.Ok},
		{signal.Fullscreen, signal.Ok},
		{signal.TabFocus, signal.Violated},
		{signal.TabFocus, signal.Ok},
		{signal.ScreenShared, signal.Violated},
	}
	lengths := []int{}
	for _, step := range steps {
		f.set(step.id, step.value)
		lengths = append(lengths, f.journal.Len())
	}
	for i := 1; i < len(lengths); i++ {
		if lengths[i] < lengths[i-1] {
			t.Fatalf("journal shrank: %v", lengths)
		}
	}
	entries := f.journal.ReadAll()
	for i := 1; i < len(entries); i++ {
		if entries[i].Seq <= entries[i-1].Seq {
			t.Fatalf("sequence not increasing: %+v", entries)
		}
		if entries[i].Timestamp.Before(entries[i-1].Timestamp) {
			t.Fatalf("timestamps out of order: %+v", entries)
		}
	}
	want := []violation.Kind{
		violation.FullScreenExited,
		violation.CameraPermissionMissing,
		violation.FullScreenExited,
		violation.TabNotActive,
		violation.ScreenNotShared,
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %+v", len(want), entries)
	}
	for i, kind := range want {
		if entries[i].Kind != kind {
			t.Fatalf("entry %d = %s, want %s", i, entries[i].Kind, kind)
		}
	}
}

func TestNoiseIsAdvisory(t *testing.T) {
	f := newFixture(t)
	f.allOK()
	f.set(signal.AmbientNoise, signal.Violated)

	st := f.monitor.State()
	if st.Active != nil {
		t.Fatalf("noise must never open a prompt, got %+v", st.Active)
	}
	if !st.Noise {
		t.Fatal("expected noise flag in state")
	}
	entries := f.journal.ReadAll()
	if len(entries) != 1 || entries[0].Kind != violation.NoiseDetected || entries[0].Message != "Noise Detected" {
		t.Fatalf("expected one noise entry, got %+v", entries)
	}

	// Sustained noise logs once; a fresh onset logs again.
	f.set(signal.TabFocus, signal.Violated)
	f.set(signal.TabFocus, signal.Ok)
	f.set(signal.AmbientNoise, signal.Ok)
	f.set(signal.AmbientNoise, signal.Violated)

	var noiseEntries int
	for _, e := range f.journal.ReadAll() {
		if e.Kind == violation.NoiseDetected {
			noiseEntries++
		}
	}
	if noiseEntries != 2 {
		t.Fatalf("expected 2 noise onsets, got %d", noiseEntries)
	}
}

func TestNoiseDoesNotClearActiveViolation(t *testing.T) {
	f := newFixture(t)
	f.allOK()
	f.set(signal.Fullscreen, signal.Violated)
	f.set(signal.AmbientNoise, signal.Violated)
	f.set(signal.AmbientNoise, signal.Ok)

	if f.activeKind() != violation.FullScreenExited {
		t.Fatalf("expected fullscreen violation to persist, got %s", f.activeKind())
	}
	entries := f.journal.ReadAll()
	if len(entries) != 2 || entries[1].Kind != violation.NoiseDetected {
		t.Fatalf("expected noise logged while blocked, got %+v", entries)
	}
}

func TestFullscreenExitThenRestore(t *testing.T) {
	f := newFixture(t)
	f.allOK()
	f.set(signal.Fullscreen, signal.Violated)

	if f.activeKind() != violation.FullScreenExited {
		t.Fatalf("expected full_screen_exited, got %s", f.activeKind())
	}
	if !f.monitor.State().Active.PromptOpen {
		t.Fatal("expected prompt open on entry")
	}

	f.set(signal.Fullscreen, signal.Ok)
	if f.monitor.State().Active != nil {
		t.Fatalf("expected no violation after restore, got %+v", f.monitor.State().Active)
	}
	if f.journal.Len() != 1 {
		t.Fatalf("expected one entry, got %d", f.journal.Len())
	}
}

func TestCameraBeatsFullscreenThenHandsOver(t *testing.T) {
	f := newFixture(t)
	f.allOK()
	f.set(signal.CameraPermission, signal.Violated)
	f.set(signal.Fullscreen, signal.Violated)

	if f.activeKind() != violation.CameraPermissionMissing {
		t.Fatalf("expected camera_permission_missing, got %s", f.activeKind())
	}
	before := f.journal.Len()

	f.set(signal.CameraPermission, signal.Ok)
	if f.activeKind() != violation.FullScreenExited {
		t.Fatalf("expected full_screen_exited after camera resolves, got %s", f.activeKind())
	}
	entries := f.journal.ReadAll()
	if len(entries) != before+1 || entries[len(entries)-1].Kind != violation.FullScreenExited {
		t.Fatalf("expected exactly one new fullscreen entry, got %+v", entries)
	}
}

func TestMultiDisplayTransitions(t *testing.T) {
	f := newFixture(t)
	f.allOK()
	f.set(signal.MultiDisplay, signal.Unset)
	f.set(signal.MultiDisplay, signal.Ok)
	if f.journal.Len() != 0 {
		t.Fatalf("unset to ok must not log, got %+v", f.journal.ReadAll())
	}
	f.set(signal.MultiDisplay, signal.Violated)
	entries := f.journal.ReadAll()
	if len(entries) != 1 || entries[0].Message != "Multiple Devices Detected" {
		t.Fatalf("expected one multi-display entry, got %+v", entries)
	}
}

func TestDismissClosesPromptOnlyForActiveKind(t *testing.T) {
	f := newFixture(t)
	f.allOK()
	f.set(signal.TabFocus, signal.Violated)

	closed, err := f.monitor.Dismiss(f.ctx, violation.FullScreenExited)
	if err != nil || closed {
		t.Fatalf("dismiss of inactive kind: closed=%v err=%v", closed, err)
	}
	closed, err = f.monitor.Dismiss(f.ctx, violation.TabNotActive)
	if err != nil || !closed {
		t.Fatalf("dismiss of active kind: closed=%v err=%v", closed, err)
	}
	st := f.monitor.State()
	if st.Active == nil || st.Active.Kind != violation.TabNotActive || st.Active.PromptOpen {
		t.Fatalf("expected tab violation with closed prompt, got %+v", st.Active)
	}

	// A kind change reopens the prompt. Camera is rank 2, so tab focus has to
	// recover before it surfaces.
	f.set(signal.CameraPermission, signal.Violated)
	if st := f.monitor.State(); st.Active.Kind != violation.TabNotActive || st.Active.PromptOpen {
		t.Fatalf("a lower-ranked violation must not reopen the prompt, got %+v", st.Active)
	}
	f.set(signal.TabFocus, signal.Ok)
	st = f.monitor.State()
	if st.Active == nil || st.Active.Kind != violation.CameraPermissionMissing || !st.Active.PromptOpen {
		t.Fatalf("expected prompt reopened for camera_permission_missing, got %+v", st.Active)
	}
}

func TestSessionStampedOnEntries(t *testing.T) {
	f := newFixture(t, arbiter.WithSessionID("first"))
	f.allOK()
	f.set(signal.TabFocus, signal.Violated)
	if err := f.monitor.SetSession(f.ctx, "second"); err != nil {
		t.Fatalf("SetSession: %v", err)
	}
	f.set(signal.TabFocus, signal.Ok)
	f.set(signal.TabFocus, signal.Violated)

	entries := f.journal.ReadAll()
	if len(entries) != 2 || entries[0].SessionID != "first" || entries[1].SessionID != "second" {
		t.Fatalf("unexpected sessions on entries: %+v", entries)
	}
	if f.monitor.State().SessionID != "second" {
		t.Fatalf("expected state to carry new session, got %q", f.monitor.State().SessionID)
	}
}

func TestSubscribeAndLoggedChannels(t *testing.T) {
	f := newFixture(t)
	states, cancel := f.monitor.Subscribe()
	defer cancel()

	f.allOK()
	f.set(signal.ScreenShareCorrect, signal.Violated)

	var last arbiter.State
	deadline := time.After(2 * time.Second)
	for violation.KindOf(last.Active) != violation.ScreenWronglyShared {
		select {
		case last = <-states:
		case <-deadline:
			t.Fatal("timed out waiting for published state")
		}
	}

	select {
	case entry := <-f.monitor.Logged():
		if entry.Kind != violation.ScreenWronglyShared {
			t.Fatalf("unexpected logged entry %+v", entry)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for logged entry")
	}
}

func TestStateReturnsCopies(t *testing.T) {
	f := newFixture(t)
	f.allOK()
	f.set(signal.TabFocus, signal.Violated)

	st := f.monitor.State()
	st.Active.PromptOpen = false
	if !f.monitor.State().Active.PromptOpen {
		t.Fatal("mutating a returned state leaked into the monitor")
	}
}

func TestWriterSetRespectsContext(t *testing.T) {
	monitor := arbiter.NewMonitor(nil, arbiter.WithQueueSize(1))
	w, err := monitor.Claim(signal.TabFocus)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Run is not started, so the second update cannot be queued.
	if err := w.Set(ctx, signal.Ok); err != nil {
		t.Fatalf("first Set: %v", err)
	}
	if err := w.Set(ctx, signal.Violated); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSyncAppliesQueuedUpdatesWithoutExtraEvaluation(t *testing.T) {
	f := newFixture(t)
	f.allOK()
	before := f.monitor.State().Evaluations

	if err := f.writers[signal.Fullscreen].Set(f.ctx, signal.Violated); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := f.monitor.Sync(f.ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	st := f.monitor.State()
	if violation.KindOf(st.Active) != violation.FullScreenExited {
		t.Fatalf("expected fullscreen violation after sync, got %v", violation.KindOf(st.Active))
	}
	if st.Evaluations != before+1 {
		t.Fatalf("expected one evaluation for the update, got %d", st.Evaluations-before)
	}
}

func TestFailedReleaseKeepsClaim(t *testing.T) {
	monitor := arbiter.NewMonitor(nil, arbiter.WithQueueSize(1))
	w, err := monitor.Claim(signal.Fullscreen)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	// Nothing drains the queue yet, so this fills it.
	if err := w.Set(context.Background(), signal.Violated); err != nil {
		t.Fatalf("Set: %v", err)
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Release(cancelled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected release to fail with the context error, got %v", err)
	}
	if _, err := monitor.Claim(signal.Fullscreen); !errors.Is(err, signal.ErrSlotClaimed) {
		t.Fatalf("expected slot still claimed after failed release, got %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = monitor.Run(ctx)
	}()
	t.Cleanup(func() {
		stop()
		<-done
	})

	if err := w.Release(ctx); err != nil {
		t.Fatalf("retry Release: %v", err)
	}
	if err := monitor.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if got := monitor.State().Snapshot.Get(signal.Fullscreen); got != signal.Unset {
		t.Fatalf("expected slot unset after release, got %s", got)
	}
	if _, err := monitor.Claim(signal.Fullscreen); err != nil {
		t.Fatalf("expected slot free after release: %v", err)
	}
}

func TestActiveCarriesOnsetSeq(t *testing.T) {
	f := newFixture(t)
	f.allOK()
	f.set(signal.Fullscreen, signal.Violated)
	first := f.monitor.State().Active
	if first == nil || first.Seq != 1 {
		t.Fatalf("expected active prompt with seq 1, got %+v", first)
	}

	f.set(signal.AmbientNoise, signal.Violated)
	if st := f.monitor.State(); st.Active.Seq != first.Seq {
		t.Fatalf("noise must not replace the prompt, got %+v", st.Active)
	}

	f.set(signal.Fullscreen, signal.Ok)
	f.set(signal.Fullscreen, signal.Violated)
	again := f.monitor.State().Active
	if again == nil || again.Kind != violation.FullScreenExited || again.Seq != 3 {
		t.Fatalf("expected a new prompt instance with seq 3, got %+v", again)
	}
}
