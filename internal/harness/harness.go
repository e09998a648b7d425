package harness

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/4rchr4y/moss/internal/fault"
	"github.com/4rchr4y/moss/internal/runtime"
	"github.com/4rchr4y/moss/internal/testutil"
	"github.com/4rchr4y/moss/internal/trace"
)

// Options configures a scenario run.
type Options struct {
	// Session overrides the scenario's session id.
	Session string

	// Logger receives runtime logs. Defaults to a discarding logger.
	Logger *slog.Logger

	// RuntimeOptions are applied after the harness's own options, so they
	// can replace the flush quota.
	RuntimeOptions []runtime.Option
}

// Harness executes one scenario against one runtime.Context.
type Harness struct {
	cx     *runtime.Context
	rec    *trace.Recorder
	logger *slog.Logger
	result *Result

	counters  map[string]*runtime.Model[counter]
	atoms     map[string]*runtime.Atom[int]
	selectors map[string]*runtime.Selector[string]
	subs      map[string]*runtime.Subscription

	// ids maps every name ever registered to its entity id or node key, so
	// assertions can name objects that were dropped.
	ids map[string]uint64

	calls map[string]int
	seen  map[string]int

	// callbackErr is the first setup error raised inside a runtime
	// callback, where it cannot be returned.
	callbackErr error
}

// Run executes a scenario with default options.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithOptions(scenario, Options{})
}

// RunWithOptions executes a scenario and returns the result.
//
// Execution flow:
// 1. Create a fresh runtime.Context with a deterministic recorder
// 2. Execute steps in order; expect mismatches are recorded, not fatal
// 3. Stop at the first contract violation no step asked for
// 4. Capture the trace, final state and stats
// 5. Evaluate assertions
//
// The returned error is reserved for scenarios that cannot run at all, such
// as a step naming an object that does not exist.
func RunWithOptions(scenario *Scenario, opts Options) (*Result, error) {
	session := opts.Session
	if session == "" {
		session = scenario.Session
	}
	rec := trace.NewRecorder(testutil.NewFixedSessionGenerator(session).Generate(), testutil.NewDeterministicClock())

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	rtOpts := []runtime.Option{runtime.WithLogger(logger), runtime.WithTracer(rec)}
	if scenario.MaxFlushSteps > 0 {
		rtOpts = append(rtOpts, runtime.WithMaxFlushSteps(scenario.MaxFlushSteps))
	}
	rtOpts = append(rtOpts, opts.RuntimeOptions...)

	h := &Harness{
		cx:        runtime.New(rtOpts...),
		rec:       rec,
		logger:    logger,
		result:    NewResult(rec.Session()),
		counters:  make(map[string]*runtime.Model[counter]),
		atoms:     make(map[string]*runtime.Atom[int]),
		selectors: make(map[string]*runtime.Selector[string]),
		subs:      make(map[string]*runtime.Subscription),
		ids:       make(map[string]uint64),
		calls:     make(map[string]int),
		seen:      make(map[string]int),
	}

	for i, step := range scenario.Steps {
		path := fmt.Sprintf("steps[%d]", i)

		var err error
		violation := fault.Catch(func() { err = h.runStep(path, step) })
		if err == nil {
			err = h.callbackErr
		}
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", scenario.Name, err)
		}
		if violation != nil {
			h.logger.Error("unexpected contract violation", "step", path, "op", step.Op, "error", violation)
			h.result.AddError(fmt.Sprintf("%s (%s): unexpected contract violation: %v", path, step.Op, violation))
			break
		}
	}

	h.capture()

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, h.ids) {
		h.result.AddError(msg)
	}

	h.logger.Info("scenario complete",
		"scenario", scenario.Name,
		"pass", h.result.Pass,
		"events", len(h.result.Trace),
	)
	return h.result, nil
}

// runStep executes s. A step that names an expected violation catches it
// here; any other violation propagates to the top-level step.
func (h *Harness) runStep(path string, s Step) error {
	if s.Error == "" {
		return h.exec(path, s)
	}

	var err error
	violation := fault.Catch(func() { err = h.exec(path, s) })
	if err != nil {
		return err
	}
	switch {
	case violation == nil:
		h.fail("%s (%s): expected %s, no violation raised", path, s.Op, s.Error)
	case !fault.Is(violation, fault.Code(s.Error)):
		h.fail("%s (%s): expected %s, got %v", path, s.Op, s.Error, violation)
	}
	return nil
}

func (h *Harness) runSteps(path string, steps []Step) error {
	for i, child := range steps {
		if err := h.runStep(fmt.Sprintf("%s[%d]", path, i), child); err != nil {
			return err
		}
	}
	return nil
}

// runThen runs a callback's child steps. Setup errors are kept for the
// top-level loop since a callback has no error return.
func (h *Harness) runThen(path string, steps []Step) {
	if err := h.runSteps(path+".then", steps); err != nil && h.callbackErr == nil {
		h.callbackErr = err
	}
}

func (h *Harness) exec(path string, s Step) error {
	h.logger.Debug("scenario step", "step", path, "op", s.Op)

	switch s.Op {
	case OpCreate:
		return h.create(path, s)
	case OpObserve:
		return h.observe(path, s)
	case OpSubscribe:
		return h.subscribe(path, s)
	case OpOnRelease:
		return h.onRelease(path, s)
	case OpClose:
		sub, ok := h.subs[s.Name]
		if !ok {
			return fmt.Errorf("%s: unknown subscription %q", path, s.Name)
		}
		sub.Close()
		return nil
	case OpUpdate:
		return h.update(path, s)
	case OpDrop:
		return h.drop(path, s.Target)
	case OpFlush:
		h.cx.Update(func(*runtime.Context) {})
		return nil
	case OpAtom:
		if err := h.claim(path, s.Name); err != nil {
			return err
		}
		a := runtime.NewAtom(h.cx, *s.Value)
		h.atoms[s.Name] = a
		h.ids[s.Name] = uint64(a.Key())
		return nil
	case OpWriteAtom:
		a, ok := h.atoms[s.Target]
		if !ok {
			return fmt.Errorf("%s: unknown atom %q", path, s.Target)
		}
		runtime.WriteAtom(h.cx, a, *s.Value, s.Notify)
		return nil
	case OpSelector:
		return h.selector(path, s)
	case OpReadSelector:
		sel, ok := h.selectors[s.Target]
		if !ok {
			return fmt.Errorf("%s: unknown selector %q", path, s.Target)
		}
		got := runtime.ReadSelector(h.cx, sel)
		if s.Want != nil && got != *s.Want {
			h.fail("%s (read_selector): %s = %q, want %q", path, s.Target, got, *s.Want)
		}
		return nil
	case OpNestedUpdate:
		var err error
		h.cx.Update(func(*runtime.Context) {
			err = h.runSteps(path+".steps", s.Steps)
		})
		return err
	case OpExpect:
		return h.expect(path, s)
	default:
		return fmt.Errorf("%s: unknown op %q", path, s.Op)
	}
}

func (h *Harness) claim(path, name string) error {
	if _, ok := h.ids[name]; ok {
		return fmt.Errorf("%s: name %q already in use", path, name)
	}
	if _, ok := h.subs[name]; ok {
		return fmt.Errorf("%s: name %q already in use", path, name)
	}
	return nil
}

func (h *Harness) create(path string, s Step) error {
	if err := h.claim(path, s.Name); err != nil {
		return err
	}
	initial := 0
	if s.Count != nil {
		initial = *s.Count
	}

	m := runtime.NewModel(h.cx, func(*runtime.ModelContext[counter]) counter {
		return counter{Count: initial}
	})
	h.counters[s.Name] = m
	h.ids[s.Name] = uint64(m.ID())
	return nil
}

func (h *Harness) observe(path string, s Step) error {
	if err := h.claim(path, s.Name); err != nil {
		return err
	}
	name := s.Name

	if m, ok := h.counters[s.Target]; ok {
		h.subs[name] = runtime.Observe(h.cx, m, func(target *runtime.Model[counter], cx *runtime.Context) {
			h.calls[name]++
			h.seen[name] = target.Read(cx).Count
			h.runThen(path, s.Then)
		})
		return nil
	}

	if a, ok := h.atoms[s.Target]; ok {
		key := a.Key()
		h.subs[name] = runtime.ObserveAtom(h.cx, a, func(cx *runtime.Context) {
			h.calls[name]++
			if current, ok := h.atoms[s.Target]; ok && current.Key() == key {
				h.seen[name] = runtime.ReadAtom(cx, current)
			}
			h.runThen(path, s.Then)
		})
		return nil
	}

	return fmt.Errorf("%s: unknown counter or atom %q", path, s.Target)
}

func (h *Harness) subscribe(path string, s Step) error {
	if err := h.claim(path, s.Name); err != nil {
		return err
	}
	m, ok := h.counters[s.Target]
	if !ok {
		return fmt.Errorf("%s: unknown counter %q", path, s.Target)
	}
	name := s.Name

	h.subs[name] = runtime.SubscribeKind(h.cx, m, runtime.EventKind(s.Kind),
		func(_ *runtime.Model[counter], ev runtime.Event, _ *runtime.Context) {
			h.calls[name]++
			if se, ok := ev.(scenarioEvent); ok {
				h.seen[name] = se.Delta
			}
			h.runThen(path, s.Then)
		})
	return nil
}

func (h *Harness) onRelease(path string, s Step) error {
	if err := h.claim(path, s.Name); err != nil {
		return err
	}
	m, ok := h.counters[s.Target]
	if !ok {
		return fmt.Errorf("%s: unknown counter %q", path, s.Target)
	}
	name := s.Name

	h.subs[name] = runtime.OnRelease(h.cx, m, func(v *counter, _ *runtime.Context) {
		h.calls[name]++
		h.seen[name] = v.Count
		h.runThen(path, s.Then)
	})
	return nil
}

func (h *Harness) update(path string, s Step) error {
	m, ok := h.counters[s.Target]
	if !ok {
		return fmt.Errorf("%s: unknown counter %q", path, s.Target)
	}

	m.Update(h.cx, func(v *counter, mc *runtime.ModelContext[counter]) {
		if s.Reenter {
			m.Read(mc.Context)
		}
		v.Count += s.Delta
		if s.Notify {
			mc.Notify()
		}
		if s.Emit != "" {
			mc.Emit(scenarioEvent{kind: runtime.EventKind(s.Emit), Delta: s.Delta})
		}
	})
	return nil
}

// drop releases the harness's strong handle. The object is finalized at the
// next flush unless something else still holds it.
func (h *Harness) drop(path, name string) error {
	if m, ok := h.counters[name]; ok {
		delete(h.counters, name)
		m.Release()
		return nil
	}
	if a, ok := h.atoms[name]; ok {
		delete(h.atoms, name)
		a.Release()
		return nil
	}
	if sel, ok := h.selectors[name]; ok {
		delete(h.selectors, name)
		sel.Release()
		return nil
	}
	return fmt.Errorf("%s: unknown object %q", path, name)
}

// selector formats the value of an atom or another selector. The selector
// holds its own strong handle to its input.
func (h *Harness) selector(path string, s Step) error {
	if err := h.claim(path, s.Name); err != nil {
		return err
	}
	format := s.Format

	var sel *runtime.Selector[string]
	switch {
	case h.atoms[s.Target] != nil:
		dep := h.atoms[s.Target].Clone()
		sel = runtime.NewSelector(h.cx, func(sc *runtime.SelectorContext) string {
			return fmt.Sprintf(format, runtime.Get(sc, dep))
		}, dep)
	case h.selectors[s.Target] != nil:
		dep := h.selectors[s.Target].Clone()
		sel = runtime.NewSelector(h.cx, func(sc *runtime.SelectorContext) string {
			return fmt.Sprintf(format, runtime.GetSelector(sc, dep))
		}, dep)
	case s.Target == s.Name:
		// Reads itself; every read raises REENTRANT_ACCESS.
		var self *runtime.Selector[string]
		sel = runtime.NewSelector(h.cx, func(sc *runtime.SelectorContext) string {
			return fmt.Sprintf(format, runtime.GetSelector(sc, self))
		})
		self = sel
	default:
		return fmt.Errorf("%s: unknown atom or selector %q", path, s.Target)
	}

	h.selectors[s.Name] = sel
	h.ids[s.Name] = uint64(sel.Key())
	return nil
}

func (h *Harness) expect(path string, s Step) error {
	if s.Target != "" {
		switch {
		case h.counters[s.Target] != nil:
			if s.Count != nil {
				if got := h.counters[s.Target].Read(h.cx).Count; got != *s.Count {
					h.fail("%s (expect): %s count = %d, want %d", path, s.Target, got, *s.Count)
				}
			}
		case h.atoms[s.Target] != nil:
			if s.Value != nil {
				if got := runtime.ReadAtom(h.cx, h.atoms[s.Target]); got != *s.Value {
					h.fail("%s (expect): %s value = %d, want %d", path, s.Target, got, *s.Value)
				}
			}
		default:
			return fmt.Errorf("%s: unknown counter or atom %q", path, s.Target)
		}
	}

	for _, name := range sortedKeys(s.Calls) {
		if got := h.calls[name]; got != s.Calls[name] {
			h.fail("%s (expect): %s called %d times, want %d", path, name, got, s.Calls[name])
		}
	}
	for _, name := range sortedKeys(s.Seen) {
		got, ok := h.seen[name]
		if !ok {
			h.fail("%s (expect): %s never ran", path, name)
			continue
		}
		if got != s.Seen[name] {
			h.fail("%s (expect): %s saw %d, want %d", path, name, got, s.Seen[name])
		}
	}

	stats := h.cx.Stats()
	if s.Entities != nil && stats.Entities != *s.Entities {
		h.fail("%s (expect): %d live entities, want %d", path, stats.Entities, *s.Entities)
	}
	if s.Nodes != nil && stats.Nodes != *s.Nodes {
		h.fail("%s (expect): %d live nodes, want %d", path, stats.Nodes, *s.Nodes)
	}
	return nil
}

func (h *Harness) fail(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	h.logger.Warn("scenario expectation failed", "error", msg)
	h.result.AddError(msg)
}

// capture copies the trace, final state and stats into the result. Objects
// that are leased after a violation are skipped.
func (h *Harness) capture() {
	h.result.Trace = h.rec.Events()
	h.result.Stats = h.cx.Stats()

	for name, m := range h.counters {
		_ = fault.Catch(func() { h.result.State[name] = m.Read(h.cx).Count })
	}
	for name, a := range h.atoms {
		_ = fault.Catch(func() { h.result.State[name] = runtime.ReadAtom(h.cx, a) })
	}
}

func sortedKeys(m map[string]int) []string {
	return slices.Sorted(maps.Keys(m))
}
