package harness

import (
	"github.com/4rchr4y/moss/internal/runtime"
	"github.com/4rchr4y/moss/internal/trace"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect step and assertion matched.
	Pass bool `json:"pass"`

	// Session is the id stamped on every trace event.
	Session string `json:"session"`

	// Trace holds every runtime event in order.
	Trace []trace.Event `json:"trace"`

	// Errors holds failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State holds the final count of every counter still alive and the
	// final value of every atom still alive, keyed by name.
	State map[string]int `json:"state,omitempty"`

	// Stats is the runtime snapshot taken after the last step.
	Stats runtime.Stats `json:"-"`
}

// NewResult creates a passing result.
func NewResult(session string) *Result {
	return &Result{
		Pass:    true,
		Session: session,
		Trace:   []trace.Event{},
		Errors:  []string{},
		State:   make(map[string]int),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// counter is the entity type scenarios operate on.
type counter struct {
	Count int
}

// scenarioEvent is the payload emitted by update steps. Its kind comes from
// the scenario, so listeners register with runtime.SubscribeKind.
type scenarioEvent struct {
	kind  runtime.EventKind
	Delta int
}

func (e scenarioEvent) EventKind() runtime.EventKind {
	return e.kind
}
