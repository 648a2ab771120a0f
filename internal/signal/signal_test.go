package signal_test

import (
	"errors"
	"testing"

	"proctor/internal/signal"
)

func TestParseRoundTripsNames(t *testing.T) {
	for _, id := range signal.All() {
		parsed, err := signal.Parse(id.String())
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", id.String(), err)
		}
		if parsed != id {
			t.Fatalf("Parse(%q) = %v, want %v", id.String(), parsed, id)
		}
	}
}

func TestParseAcceptsDashesAndCase(t *testing.T) {
	id, err := signal.Parse("  Screen-Share-Correct ")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if id != signal.ScreenShareCorrect {
		t.Fatalf("expected screen_share_correct, got %v", id)
	}
}

func TestParseUnknownSignal(t *testing.T) {
	if _, err := signal.Parse("face_presence"); !errors.Is(err, signal.ErrUnknownSignal) {
		t.Fatalf("expected ErrUnknownSignal, got %v", err)
	}
}

func TestParseTriState(t *testing.T) {
	cases := map[string]signal.TriState{
		"ok":       signal.Ok,
		"OK":       signal.Ok,
		"violated": signal.Violated,
		"fail":     signal.Violated,
		"unset":    signal.Unset,
		"unknown":  signal.Unset,
		"":         signal.Unset,
	}
	for input, want := range cases {
		got, err := signal.ParseTriState(input)
		if err != nil {
			t.Fatalf("ParseTriState(%q) returned error: %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseTriState(%q) = %v, want %v", input, got, want)
		}
	}
	if _, err := signal.ParseTriState("maybe"); !errors.Is(err, signal.ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
}

func TestZeroSnapshotIsUnset(t *testing.T) {
	var snap signal.Snapshot
	for _, id := range signal.All() {
		if snap.Get(id) != signal.Unset {
			t.Fatalf("expected %v to be unset, got %v", id, snap.Get(id))
		}
		if snap.Violated(id) {
			t.Fatalf("unset %v must not read as violated", id)
		}
	}
}

func TestSnapshotWithDoesNotMutateReceiver(t *testing.T) {
	base := signal.SnapshotOf(map[signal.ID]signal.TriState{signal.Fullscreen: signal.Ok})
	next := base.With(signal.Fullscreen, signal.Violated)

	if base.Get(signal.Fullscreen) != signal.Ok {
		t.Fatalf("base snapshot changed: %v", base.Get(signal.Fullscreen))
	}
	if next.Get(signal.Fullscreen) != signal.Violated {
		t.Fatalf("expected copy to carry update, got %v", next.Get(signal.Fullscreen))
	}
}

func TestSnapshotIgnoresInvalidIDs(t *testing.T) {
	snap := signal.Snapshot{}.With(signal.ID(42), signal.Violated)
	if snap.Get(signal.ID(42)) != signal.Unset {
		t.Fatal("expected invalid id to read unset")
	}
	if snap != (signal.Snapshot{}) {
		t.Fatal("expected invalid id write to be dropped")
	}
}

func TestFromOptional(t *testing.T) {
	yes, no := true, false
	if signal.FromOptional(nil) != signal.Unset {
		t.Fatal("nil reading must be unset")
	}
	if signal.FromOptional(&yes) != signal.Ok {
		t.Fatal("healthy reading must be ok")
	}
	if signal.FromOptional(&no) != signal.Violated {
		t.Fatal("unhealthy reading must be violated")
	}
}
