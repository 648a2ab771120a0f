package violation

import (
	"errors"
	"fmt"
	"strings"

	"proctor/internal/signal"
)

// Kind enumerates the integrity violations the arbiter can surface.
// None is the zero value and means no violation is active.
type Kind int

const (
	None Kind = iota
	TabNotActive
	CameraPermissionMissing
	MicrophonePermissionMissing
	NoiseDetected
	ScreenNotShared
	ScreenWronglyShared
	MultipleDisplaysDetected
	FullScreenExited
)

// ErrUnknownKind is returned when parsing an unrecognized kind name.
var ErrUnknownKind = errors.New("unknown violation kind")

// Action names the remediation a user acknowledgement triggers.
type Action string

const (
	ActionNone                        Action = ""
	ActionDismiss                     Action = "dismiss"
	ActionRequestCameraPermission     Action = "request-camera-permission"
	ActionRequestMicrophonePermission Action = "request-microphone-permission"
	ActionRequestFullscreen           Action = "request-fullscreen"
	ActionStartScreenCapture          Action = "start-screen-capture"
	ActionHardReload                  Action = "hard-reload"
)

// Definition is the fixed description of a violation kind.
type Definition struct {
	Kind   Kind
	Rank   int
	Signal signal.ID
	Name   string
	// Message is the audit log text.
	Message string
	// Prompt and ButtonLabel are handed to the presentation layer.
	Prompt      string
	ButtonLabel string
	Action      Action
	// Blocking kinds open a prompt; advisory kinds are only logged.
	Blocking bool
}

// definitions is ordered by rank; evaluation walks it front to back.
var definitions = []Definition{
	{
		Kind:        TabNotActive,
		Rank:        1,
		Signal:      signal.TabFocus,
		Name:        "tab_not_active",
		Message:     "You should not leave the assessment Tab",
		Prompt:      "You should not move out of the assessment tab",
		ButtonLabel: "Okay",
		Action:      ActionDismiss,
		Blocking:    true,
	},
	{
		Kind:        CameraPermissionMissing,
		Rank:        2,
		Signal:      signal.CameraPermission,
		Name:        "camera_permission_missing",
		Message:     "Camera Permission not given",
		Prompt:      "You should give Camera Permissions to start the assessment",
		ButtonLabel: "Request Camera Permissions",
		Action:      ActionRequestCameraPermission,
		Blocking:    true,
	},
	{
		Kind:        MicrophonePermissionMissing,
		Rank:        3,
		Signal:      signal.MicrophonePermission,
		Name:        "microphone_permission_missing",
		Message:     "Microphone permission not given",
		Prompt:      "You should give Microphone Permissions to start the assessment",
		ButtonLabel: "Request Microphone Permissions",
		Action:      ActionRequestMicrophonePermission,
		Blocking:    true,
	},
	{
		Kind:     NoiseDetected,
		Rank:     4,
		Signal:   signal.AmbientNoise,
		Name:     "noise_detected",
		Message:  "Noise Detected",
		Action:   ActionNone,
		Blocking: false,
	},
	{
		Kind:        ScreenNotShared,
		Rank:        5,
		Signal:      signal.ScreenShared,
		Name:        "screen_not_shared",
		Message:     "Screen not shared",
		Prompt:      "You should share the entire screen to start the assessment",
		ButtonLabel: "Please share your entire screen",
		Action:      ActionStartScreenCapture,
		Blocking:    true,
	},
	{
		Kind:        ScreenWronglyShared,
		Rank:        6,
		Signal:      signal.ScreenShareCorrect,
		Name:        "screen_wrongly_shared",
		Message:     "Entire Screen not shared",
		Prompt:      "Looks like you haven't shared the entire screen. Please reload and share the Entire screen",
		ButtonLabel: "Reload",
		Action:      ActionHardReload,
		Blocking:    true,
	},
	{
		Kind:        MultipleDisplaysDetected,
		Rank:        7,
		Signal:      signal.MultiDisplay,
		Name:        "multiple_displays_detected",
		Message:     "Multiple Devices Detected",
		Prompt:      "Disconnect additional display and reload",
		ButtonLabel: "Reload",
		Action:      ActionHardReload,
		Blocking:    true,
	},
	{
		Kind:        FullScreenExited,
		Rank:        8,
		Signal:      signal.Fullscreen,
		Name:        "full_screen_exited",
		Message:     "Full screen exited",
		Prompt:      "You should attempt the assessment only in Fullscreen",
		ButtonLabel: "Go Fullscreen",
		Action:      ActionRequestFullscreen,
		Blocking:    true,
	},
}

// Table returns the precedence table in rank order. The slice is a copy.
func Table() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// Lookup returns the definition of k.
func Lookup(k Kind) (Definition, bool) {
	if k <= None || int(k) > len(definitions) {
		return Definition{}, false
	}
	return definitions[k-1], true
}

// ForSignal returns the kind raised when id is violated.
func ForSignal(id signal.ID) Kind {
	for _, def := range definitions {
		if def.Signal == id {
			return def.Kind
		}
	}
	return None
}

// Rank returns the precedence rank of k; lower ranks win. None ranks last.
func (k Kind) Rank() int {
	if def, ok := Lookup(k); ok {
		return def.Rank
	}
	return len(definitions) + 1
}

// Message returns the audit log text for k.
func (k Kind) Message() string {
	def, _ := Lookup(k)
	return def.Message
}

// Action returns the remediation bound to k.
func (k Kind) Action() Action {
	def, _ := Lookup(k)
	return def.Action
}

// Blocking reports whether k opens a prompt.
func (k Kind) Blocking() bool {
	def, _ := Lookup(k)
	return def.Blocking
}

func (k Kind) String() string {
	if k == None {
		return "none"
	}
	if def, ok := Lookup(k); ok {
		return def.Name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText renders the kind using its snake_case name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind resolves a kind name; "none" and "" parse to None.
func ParseKind(name string) (Kind, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	if normalized == "" || normalized == "none" {
		return None, nil
	}
	for _, def := range definitions {
		if def.Name == normalized {
			return def.Kind, nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}
