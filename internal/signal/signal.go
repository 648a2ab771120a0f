package signal

import (
	"errors"
	"fmt"
	"strings"
)

// ID identifies one monitored environmental condition.
type ID int

const (
	TabFocus ID = iota
	CameraPermission
	MicrophonePermission
	AmbientNoise
	ScreenShared
	ScreenShareCorrect
	MultiDisplay
	Fullscreen

	// Count is the number of signal slots in a Snapshot.
	Count = int(Fullscreen) + 1
)

// ErrUnknownSignal is returned when parsing a signal name that is not part of
// the closed signal set.
var ErrUnknownSignal = errors.New("unknown signal")

var signalNames = [Count]string{
	TabFocus:             "tab_focus",
	CameraPermission:     "camera_permission",
	MicrophonePermission: "microphone_permission",
	AmbientNoise:         "ambient_noise",
	ScreenShared:         "screen_shared",
	ScreenShareCorrect:   "screen_share_correct",
	MultiDisplay:         "multi_display",
	Fullscreen:           "fullscreen",
}

// All returns every signal in slot order.
func All() []ID {
	ids := make([]ID, Count)
	for i := range ids {
		ids[i] = ID(i)
	}
	return ids
}

// Valid reports whether id names a slot.
func (id ID) Valid() bool {
	return id >= 0 && int(id) < Count
}

func (id ID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("signal(%d)", int(id))
	}
	return signalNames[id]
}

// MarshalText renders the signal using its snake_case name.
func (id ID) MarshalText() ([]byte, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSignal, int(id))
	}
	return []byte(signalNames[id]), nil
}

// UnmarshalText parses a snake_case (or dashed) signal name.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Parse resolves a signal name. Dashes and case are ignored.
func Parse(name string) (ID, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	for i, candidate := range signalNames {
		if candidate == normalized {
			return ID(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSignal, name)
}

// TriState is the value of a signal. The zero value is Unset: a source that
// has not produced a reading yet.
type TriState uint8

const (
	Unset TriState = iota
	Ok
	Violated
)

// ErrInvalidValue is returned when parsing an unrecognized tri-state value.
var ErrInvalidValue = errors.New("invalid signal value")

func (v TriState) String() string {
	switch v {
	case Ok:
		return "ok"
	case Violated:
		return "violated"
	default:
		return "unset"
	}
}

// Determinate reports whether the value is Ok or Violated.
func (v TriState) Determinate() bool {
	return v == Ok || v == Violated
}

// MarshalText renders the value as unset, ok, or violated.
func (v TriState) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText parses unset, ok, or violated.
func (v *TriState) UnmarshalText(text []byte) error {
	parsed, err := ParseTriState(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseTriState parses the canonical value names plus a few aliases
// (unknown/null for Unset, pass/fail).
func ParseTriState(value string) (TriState, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "unset", "unknown", "null", "":
		return Unset, nil
	case "ok", "pass":
		return Ok, nil
	case "violated", "fail":
		return Violated, nil
	default:
		return Unset, fmt.Errorf("%w: %q", ErrInvalidValue, value)
	}
}

// FromCondition maps a boolean reading onto the tri-state value. healthy is
// the polarity of the underlying check: a granted permission is healthy, a
// detected extra display is not.
func FromCondition(healthy bool) TriState {
	if healthy {
		return Ok
	}
	return Violated
}

// FromOptional maps a nullable boolean reading. A nil reading is Unset.
func FromOptional(healthy *bool) TriState {
	if healthy == nil {
		return Unset
	}
	return FromCondition(*healthy)
}
