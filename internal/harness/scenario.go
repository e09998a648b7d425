package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/4rchr4y/moss/internal/fault"
	"github.com/4rchr4y/moss/internal/trace"
)

// Scenario defines a runtime test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. Also the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Session is an optional fixed session id. Defaults to
	// testutil.DefaultSession.
	Session string `yaml:"session,omitempty"`

	// MaxFlushSteps overrides the runtime flush quota when positive.
	MaxFlushSteps int `yaml:"max_flush_steps,omitempty"`

	// Steps run in order against one runtime.Context.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one scenario operation. Which fields apply depends on Op.
type Step struct {
	Op string `yaml:"op"`

	// Name is the name a created object is registered under.
	Name string `yaml:"name,omitempty"`

	// Target names the object the step acts on.
	Target string `yaml:"target,omitempty"`

	// Count is the initial count (create) or expected count (expect).
	Count *int `yaml:"count,omitempty"`

	// Value is the atom value (atom, write_atom) or expected atom value
	// (expect).
	Value *int `yaml:"value,omitempty"`

	// Delta is added to the counter by update.
	Delta int `yaml:"delta,omitempty"`

	// Notify requests an explicit notification (update, write_atom).
	Notify bool `yaml:"notify,omitempty"`

	// Emit is the event kind emitted by update, or listened for by
	// subscribe (via Kind).
	Emit string `yaml:"emit,omitempty"`
	Kind string `yaml:"kind,omitempty"`

	// Reenter reads the counter while update holds it.
	Reenter bool `yaml:"reenter,omitempty"`

	// Format is the selector's fmt template over its atom, e.g. "Hello, %d!".
	Format string `yaml:"format,omitempty"`

	// Want is the expected selector output (read_selector).
	Want *string `yaml:"want,omitempty"`

	// Calls and Seen check how often each named callback ran and the last
	// value it saw (expect).
	Calls map[string]int `yaml:"calls,omitempty"`
	Seen  map[string]int `yaml:"seen,omitempty"`

	// Entities and Nodes check live totals (expect).
	Entities *int `yaml:"entities,omitempty"`
	Nodes    *int `yaml:"nodes,omitempty"`

	// Then runs inside the callback registered by observe, subscribe or
	// on_release.
	Then []Step `yaml:"then,omitempty"`

	// Steps are the children of nested_update.
	Steps []Step `yaml:"steps,omitempty"`

	// Error names the contract violation this step must raise.
	Error string `yaml:"error,omitempty"`
}

// Step operations.
const (
	OpCreate       = "create"
	OpObserve      = "observe"
	OpSubscribe    = "subscribe"
	OpOnRelease    = "on_release"
	OpClose        = "close"
	OpUpdate       = "update"
	OpDrop         = "drop"
	OpFlush        = "flush"
	OpAtom         = "atom"
	OpWriteAtom    = "write_atom"
	OpSelector     = "selector"
	OpReadSelector = "read_selector"
	OpNestedUpdate = "nested_update"
	OpExpect       = "expect"
)

// Assertion validates the final trace.
type Assertion struct {
	// Type is one of trace_contains, trace_count, trace_order.
	Type string `yaml:"type"`

	// Kind is the trace event kind (trace_contains, trace_count).
	Kind string `yaml:"kind,omitempty"`

	// Subject optionally restricts matches to the named object's id.
	Subject string `yaml:"subject,omitempty"`

	// Detail optionally restricts matches to events with this detail
	// (trace_contains).
	Detail string `yaml:"detail,omitempty"`

	// Count is the expected number of matches (trace_count).
	Count int `yaml:"count,omitempty"`

	// Kinds is the expected order (trace_order).
	Kinds []string `yaml:"kinds,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// FindScenarios returns the .yaml and .yml files directly under dir whose
// base name matches filter, sorted. An empty filter matches everything.
func FindScenarios(dir, filter string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if filter != "" {
			ok, err := filepath.Match(filter, name)
			if err != nil {
				return nil, fmt.Errorf("invalid filter %q: %w", filter, err)
			}
			if !ok {
				continue
			}
		}
		paths = append(paths, filepath.Join(dir, name))
	}

	sort.Strings(paths)
	return paths, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.MaxFlushSteps < 0 {
		return fmt.Errorf("max_flush_steps must be non-negative")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if err := validateSteps("steps", s.Steps); err != nil {
		return err
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateSteps(path string, steps []Step) error {
	for i := range steps {
		if err := validateStep(fmt.Sprintf("%s[%d]", path, i), &steps[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateStep checks the fields each op requires.
func validateStep(path string, s *Step) error {
	need := func(field, value string) error {
		if value == "" {
			return fmt.Errorf("%s: %s is required for %s", path, field, s.Op)
		}
		return nil
	}

	var err error
	switch s.Op {
	case OpCreate:
		err = need("name", s.Name)
	case OpObserve, OpOnRelease:
		if err = need("name", s.Name); err == nil {
			err = need("target", s.Target)
		}
	case OpSubscribe:
		if err = need("name", s.Name); err == nil {
			if err = need("target", s.Target); err == nil {
				err = need("kind", s.Kind)
			}
		}
	case OpClose:
		err = need("name", s.Name)
	case OpUpdate, OpDrop, OpWriteAtom:
		err = need("target", s.Target)
		if err == nil && s.Op == OpWriteAtom && s.Value == nil {
			err = fmt.Errorf("%s: value is required for %s", path, s.Op)
		}
	case OpAtom:
		if err = need("name", s.Name); err == nil && s.Value == nil {
			err = fmt.Errorf("%s: value is required for %s", path, s.Op)
		}
	case OpSelector:
		if err = need("name", s.Name); err == nil {
			if err = need("target", s.Target); err == nil {
				err = need("format", s.Format)
			}
		}
	case OpReadSelector:
		err = need("target", s.Target)
	case OpNestedUpdate:
		if len(s.Steps) == 0 {
			err = fmt.Errorf("%s: steps is required for %s", path, s.Op)
		}
	case OpFlush, OpExpect:
	case "":
		return fmt.Errorf("%s: op is required", path)
	default:
		return fmt.Errorf("%s: unknown op %q", path, s.Op)
	}
	if err != nil {
		return err
	}

	if s.Error != "" && !knownFault(s.Error) {
		return fmt.Errorf("%s: unknown error code %q", path, s.Error)
	}

	if len(s.Then) > 0 {
		switch s.Op {
		case OpObserve, OpSubscribe, OpOnRelease:
		default:
			return fmt.Errorf("%s: then is only allowed on observe, subscribe and on_release", path)
		}
		if err := validateSteps(path+".then", s.Then); err != nil {
			return err
		}
	}

	return validateSteps(path+".steps", s.Steps)
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Kind != "" && !knownKind(a.Kind) {
		return fmt.Errorf("assertions[%d]: unknown trace kind %q", index, a.Kind)
	}
	for _, kind := range a.Kinds {
		if !knownKind(kind) {
			return fmt.Errorf("assertions[%d]: unknown trace kind %q", index, kind)
		}
	}

	return nil
}

func knownFault(code string) bool {
	switch fault.Code(code) {
	case fault.CodeReentrantAccess, fault.CodeInvalidRemoval, fault.CodeUnpopulatedSlot,
		fault.CodePopulatedSlot, fault.CodeReleasedHandle, fault.CodeFlushQuotaExceeded:
		return true
	}
	return false
}

// knownKind reports whether kind is a runtime trace kind.
func knownKind(kind string) bool {
	switch trace.Kind(kind) {
	case trace.KindEntityCreate, trace.KindEntityFinalize, trace.KindEntityRelease,
		trace.KindNodeCreate, trace.KindNodeFinalize, trace.KindAtomWrite,
		trace.KindSelectorCompute, trace.KindEffectEnqueue, trace.KindEffectCoalesce,
		trace.KindFlushBegin, trace.KindFlushEnd, trace.KindNotify, trace.KindEmit,
		trace.KindDefer:
		return true
	}
	return false
}
