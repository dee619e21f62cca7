// Package tape records the sequence of API calls driving a simulation and
// replays it later, for capturing field repro cases without the scenario
// code that produced them.
package tape

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/gekko3d/rangesim/core"
)

// Call is one recorded API invocation. Args hold plain YAML-friendly
// values; handles and slices are flattened by the caller.
type Call struct {
	Name string `yaml:"name"`
	Args []any  `yaml:"args,omitempty"`
}

type document struct {
	Session  string    `yaml:"session"`
	Recorded time.Time `yaml:"recorded"`
	Calls    []Call    `yaml:"calls"`
}

// Recorder accumulates calls between Begin and End. The zero value is an
// inactive recorder; Record on an inactive recorder is a no-op, so call
// sites can record unconditionally.
type Recorder struct {
	active bool
	doc    document
}

// Begin starts a fresh session, discarding anything recorded before.
func (r *Recorder) Begin() {
	r.doc = document{
		Session:  uuid.NewString(),
		Recorded: time.Now().UTC(),
	}
	r.active = true
}

func (r *Recorder) Active() bool { return r.active }

// Record appends one call. No-op while inactive.
func (r *Recorder) Record(name string, args ...any) {
	if !r.active {
		return
	}
	r.doc.Calls = append(r.doc.Calls, Call{Name: name, Args: args})
}

// End stops recording and writes the session to path as YAML.
func (r *Recorder) End(path string) error {
	if !r.active {
		return core.InvalidPipelinef("tape: End without Begin")
	}
	r.active = false
	data, err := yaml.Marshal(&r.doc)
	if err != nil {
		return fmt.Errorf("tape: marshal session: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("tape: write %s: %w", path, err)
	}
	return nil
}

// Registry maps call names to replay handlers.
type Registry map[string]func(args []any) error

// Load parses a recorded session without replaying it.
func Load(path string) ([]Call, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tape: read %s: %w", path, err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("tape: parse %s: %w", path, err)
	}
	return doc.Calls, nil
}

// Play replays a recorded session against the registry, stopping at the
// first failing call. Calls without a registered handler fail the replay;
// a tape is only useful when every call it names is still understood.
func Play(path string, reg Registry) error {
	calls, err := Load(path)
	if err != nil {
		return err
	}
	for i, c := range calls {
		fn, ok := reg[c.Name]
		if !ok {
			return core.InvalidPipelinef("tape: call %d: no handler for %q", i, c.Name)
		}
		if err := fn(c.Args); err != nil {
			return fmt.Errorf("tape: call %d (%s): %w", i, c.Name, err)
		}
	}
	return nil
}

// Float64 coerces one recorded argument to float64. YAML unmarshals
// numbers as int or float64 depending on their spelling.
func Float64(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	}
	return 0, core.InvalidPipelinef("tape: argument %v is not a number", v)
}

// Float64s coerces a recorded argument list to float64 values.
func Float64s(args []any) ([]float64, error) {
	out := make([]float64, len(args))
	for i, v := range args {
		f, err := Float64(v)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}
