package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"proctor/internal/signal"
	"proctor/internal/violation"
)

// ErrInvalidScript is returned when a script fails validation.
var ErrInvalidScript = errors.New("invalid scenario script")

// Script is a named sequence of replay steps.
type Script struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step is one replay instruction. Exactly one of Signal, Ack, or Expect is set.
type Step struct {
	Signal string `yaml:"signal,omitempty"`
	Value  string `yaml:"value,omitempty"`

	Ack bool `yaml:"ack,omitempty"`
	// Kind names the prompt being acknowledged; empty means the active one.
	Kind string `yaml:"kind,omitempty"`
	// Clicks sends that many concurrent acknowledgements.
	Clicks int `yaml:"clicks,omitempty"`
	// Seq pins the acknowledgement to one prompt, as a late click on a prompt
	// that has since been replaced. Zero answers whichever prompt is open.
	Seq int64 `yaml:"seq,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect lists assertions against the published state. Nil fields are not checked.
type Expect struct {
	Active      *string `yaml:"active,omitempty"`
	PromptOpen  *bool   `yaml:"prompt_open,omitempty"`
	Noise       *bool   `yaml:"noise,omitempty"`
	LogLen      *int    `yaml:"log_len,omitempty"`
	LastMessage *string `yaml:"last_message,omitempty"`
	// Actions counts the handler invocations recorded so far.
	Actions *int `yaml:"actions,omitempty"`
}

// Parse decodes and validates a YAML script. Unknown keys are rejected.
func Parse(data []byte) (*Script, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var script Script
	if err := dec.Decode(&script); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := script.Validate(); err != nil {
		return nil, err
	}
	return &script, nil
}

// Load reads and parses the script at path.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	script, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return script, nil
}

// Validate checks that every step is well formed.
func (s *Script) Validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidScript)
	}
	for i, step := range s.Steps {
		if err := step.validate(); err != nil {
			return fmt.Errorf("%w: step %d: %v", ErrInvalidScript, i+1, err)
		}
	}
	return nil
}

func (st Step) validate() error {
	set := 0
	if strings.TrimSpace(st.Signal) != "" {
		set++
	}
	if st.Ack {
		set++
	}
	if st.Expect != nil {
		set++
	}
	if set != 1 {
		return errors.New("exactly one of signal, ack, expect is required")
	}
	switch {
	case st.Signal != "":
		if _, err := signal.Parse(st.Signal); err != nil {
			return err
		}
		if _, err := signal.ParseTriState(st.Value); err != nil {
			return err
		}
	case st.Ack:
		if _, err := violation.ParseKind(st.Kind); err != nil {
			return err
		}
		if st.Clicks < 0 {
			return errors.New("clicks must not be negative")
		}
		if st.Seq < 0 {
			return errors.New("seq must not be negative")
		}
	case st.Expect != nil:
		if st.Expect.Active != nil {
			if _, err := violation.ParseKind(*st.Expect.Active); err != nil {
				return err
			}
		}
	}
	return nil
}
