package registry

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// State is the gate's view of the registry.
type State int

const (
	// Unloaded means kinds are still being discovered.
	Unloaded State = iota
	// Loaded means the registry has been observed complete at least once.
	Loaded
)

func (s State) String() string {
	if s == Loaded {
		return "Loaded"
	}
	return "Unloaded"
}

// NoModelError reports that a kind has no registered model.
type NoModelError struct {
	Kind string
}

func (e *NoModelError) Error() string {
	return fmt.Sprintf("no model registered for kind %q", e.Kind)
}

// IsNoModel reports whether err is or wraps a *NoModelError.
func IsNoModel(err error) bool {
	var nm *NoModelError
	return errors.As(err, &nm)
}

// Resolution is the gate's answer for one kind. While the gate is unloaded
// all fields are zero. Once loaded, either Model is set, or Loaded is true and
// LoadError holds a *NoModelError.
type Resolution struct {
	Model     *Model
	Loaded    bool
	LoadError error
}

// Gate blocks identity resolution until the source has loaded. The
// Unloaded→Loaded transition happens once and is never undone, even if the
// source later reports in-flight or empty again. Kinds found missing after
// the transition stay missing.
type Gate struct {
	source Source
	loaded atomic.Bool

	mu      sync.Mutex
	missing map[string]*NoModelError
}

// NewGate returns a gate over source.
func NewGate(source Source) *Gate {
	return &Gate{source: source, missing: map[string]*NoModelError{}}
}

// State returns the current state, opening the gate if the source has loaded.
func (g *Gate) State() State {
	if g.loaded.Load() {
		return Loaded
	}
	if g.source.Loaded() && !g.source.InFlight() {
		g.loaded.Store(true)
		return Loaded
	}
	return Unloaded
}

// Resolve resolves kind through the gate.
func (g *Gate) Resolve(kind string) Resolution {
	if g.State() == Unloaded {
		return Resolution{}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err, ok := g.missing[kind]; ok {
		return Resolution{Loaded: true, LoadError: err}
	}
	if m, ok := g.source.Resolve(kind); ok {
		return Resolution{Model: m}
	}
	err := &NoModelError{Kind: kind}
	g.missing[kind] = err
	return Resolution{Loaded: true, LoadError: err}
}

// Notify calls fn once when the gate opens. If the gate is already open, or
// the source cannot announce changes, fn is not called and the caller has to
// poll State. The returned function unregisters fn.
func (g *Gate) Notify(fn func()) (cancel func()) {
	n, ok := g.source.(Notifier)
	if !ok || g.State() == Loaded {
		return func() {}
	}
	var once sync.Once
	return n.Notify(func() {
		if g.State() == Loaded {
			once.Do(fn)
		}
	})
}
