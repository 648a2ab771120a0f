package remediation_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"proctor/internal/remediation"
	"proctor/internal/violation"
)

type recorder struct {
	mu      sync.Mutex
	actions []violation.Action
}

func (r *recorder) handler() remediation.Handler {
	return remediation.HandlerFunc(func(_ context.Context, req remediation.Request) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.actions = append(r.actions, req.Action)
		return nil
	})
}

func (r *recorder) calls() []violation.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]violation.Action(nil), r.actions...)
}

func newDispatcher(rec *recorder) *remediation.Dispatcher {
	d := remediation.NewDispatcher(nil)
	for _, action := range []violation.Action{
		violation.ActionDismiss,
		violation.ActionRequestCameraPermission,
		violation.ActionRequestMicrophonePermission,
		violation.ActionRequestFullscreen,
		violation.ActionStartScreenCapture,
		violation.ActionHardReload,
	} {
		d.Register(action, rec.handler())
	}
	return d
}

func TestRemediateActionTable(t *testing.T) {
	tests := []struct {
		kind violation.Kind
		want violation.Action
	}{
		{violation.TabNotActive, violation.ActionDismiss},
		{violation.CameraPermissionMissing, violation.ActionRequestCameraPermission},
		{violation.MicrophonePermissionMissing, violation.ActionRequestMicrophonePermission},
		{violation.MultipleDisplaysDetected, violation.ActionHardReload},
		{violation.FullScreenExited, violation.ActionRequestFullscreen},
		{violation.ScreenNotShared, violation.ActionStartScreenCapture},
		{violation.ScreenWronglyShared, violation.ActionHardReload},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			rec := &recorder{}
			d := newDispatcher(rec)
			outcome, err := d.Remediate(context.Background(), tt.kind)
			if err != nil {
				t.Fatalf("Remediate: %v", err)
			}
			if outcome.Action != tt.want || outcome.Deduplicated {
				t.Fatalf("unexpected outcome %+v", outcome)
			}
			if calls := rec.calls(); len(calls) != 1 || calls[0] != tt.want {
				t.Fatalf("expected one %s call, got %v", tt.want, calls)
			}
		})
	}
}

func TestRemediateWithoutAction(t *testing.T) {
	rec := &recorder{}
	d := newDispatcher(rec)
	for _, kind := range []violation.Kind{violation.NoiseDetected, violation.None} {
		if _, err := d.Remediate(context.Background(), kind); !errors.Is(err, remediation.ErrNoRemediation) {
			t.Fatalf("%s: expected ErrNoRemediation, got %v", kind, err)
		}
	}
	if len(rec.calls()) != 0 {
		t.Fatalf("no handler should run, got %v", rec.calls())
	}
}

func TestRemediateMissingHandler(t *testing.T) {
	d := remediation.NewDispatcher(nil)
	_, err := d.Remediate(context.Background(), violation.FullScreenExited)
	if !errors.Is(err, remediation.ErrNoHandler) {
		t.Fatalf("expected ErrNoHandler, got %v", err)
	}
}

func TestHardReloadLatchesUntilRearm(t *testing.T) {
	rec := &recorder{}
	d := newDispatcher(rec)
	ctx := context.Background()

	first, err := d.Remediate(ctx, violation.MultipleDisplaysDetected)
	if err != nil || first.Deduplicated {
		t.Fatalf("first reload: %+v %v", first, err)
	}
	second, err := d.Remediate(ctx, violation.ScreenWronglyShared)
	if err != nil || !second.Deduplicated {
		t.Fatalf("second reload should be absorbed: %+v %v", second, err)
	}
	if len(rec.calls()) != 1 {
		t.Fatalf("expected one reload, got %v", rec.calls())
	}
	if !d.Latched() {
		t.Fatal("expected latch set")
	}

	d.Rearm()
	if _, err := d.Remediate(ctx, violation.MultipleDisplaysDetected); err != nil {
		t.Fatalf("reload after rearm: %v", err)
	}
	if len(rec.calls()) != 2 {
		t.Fatalf("expected reload to run again after rearm, got %v", rec.calls())
	}
}

func TestConcurrentReloadRunsOnce(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	d := remediation.NewDispatcher(nil)
	d.Register(violation.ActionHardReload, remediation.HandlerFunc(func(context.Context, remediation.Request) error {
		calls.Add(1)
		<-release
		return nil
	}))

	const clicks = 8
	var wg sync.WaitGroup
	var deduped atomic.Int32
	for i := 0; i < clicks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := d.Remediate(context.Background(), violation.MultipleDisplaysDetected)
			if err != nil {
				t.Errorf("Remediate: %v", err)
				return
			}
			if outcome.Deduplicated {
				deduped.Add(1)
			}
		}()
	}
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected exactly one reload, got %d", calls.Load())
	}
	if deduped.Load() != clicks-1 {
		t.Fatalf("expected %d deduplicated clicks, got %d", clicks-1, deduped.Load())
	}
}

func TestFailedReloadClearsLatch(t *testing.T) {
	var calls int
	d := remediation.NewDispatcher(nil)
	d.Register(violation.ActionHardReload, remediation.HandlerFunc(func(context.Context, remediation.Request) error {
		calls++
		if calls == 1 {
			return errors.New("kiosk unreachable")
		}
		return nil
	}))

	if _, err := d.Remediate(context.Background(), violation.MultipleDisplaysDetected); err == nil {
		t.Fatal("expected first reload to fail")
	}
	if d.Latched() {
		t.Fatal("failed reload must not leave the latch set")
	}
	if _, err := d.Remediate(context.Background(), violation.MultipleDisplaysDetected); err != nil {
		t.Fatalf("retry reload: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected retry to run handler, got %d calls", calls)
	}
}

func TestNonReloadActionsRunEachTime(t *testing.T) {
	rec := &recorder{}
	d := newDispatcher(rec)
	for i := 0; i < 3; i++ {
		if _, err := d.Remediate(context.Background(), violation.FullScreenExited); err != nil {
			t.Fatalf("Remediate: %v", err)
		}
	}
	if len(rec.calls()) != 3 {
		t.Fatalf("expected three fullscreen requests, got %v", rec.calls())
	}
}

func TestReloadForReplacedPromptIsStale(t *testing.T) {
	current := int64(3)
	var reloads int
	d := remediation.NewDispatcher(nil)
	d.Register(violation.ActionHardReload, remediation.HandlerFunc(func(_ context.Context, req remediation.Request) error {
		if req.Seq != current {
			return remediation.ErrPromptClosed
		}
		reloads++
		current = 4
		d.Rearm()
		return nil
	}))

	first, err := d.RemediatePrompt(context.Background(), violation.MultipleDisplaysDetected, 3)
	if err != nil || first.Stale || first.Deduplicated {
		t.Fatalf("first click: outcome=%+v err=%v", first, err)
	}
	second, err := d.RemediatePrompt(context.Background(), violation.MultipleDisplaysDetected, 3)
	if err != nil {
		t.Fatalf("second click: %v", err)
	}
	if !second.Stale {
		t.Fatalf("expected click on replaced prompt to be stale, got %+v", second)
	}
	if reloads != 1 {
		t.Fatalf("expected one reload, got %d", reloads)
	}
	if d.Latched() {
		t.Fatal("a stale reload must not leave the latch set")
	}
	if _, err := d.RemediatePrompt(context.Background(), violation.MultipleDisplaysDetected, 4); err != nil || reloads != 2 {
		t.Fatalf("expected the new prompt to reload: reloads=%d err=%v", reloads, err)
	}
}
