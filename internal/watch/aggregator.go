package watch

import (
	"maps"
	"slices"
	"sync"

	"github.com/go-logr/logr"
	crlog "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/sttts/kcwatch/internal/descriptor"
	"github.com/sttts/kcwatch/internal/materialize"
	"github.com/sttts/kcwatch/internal/registry"
)

// Aggregator binds a map of caller-chosen keys to descriptors. Keys whose
// descriptors normalize to the same identity share one backend signal and
// one cached view. On every Bind the set of active identities is recomputed
// and diffed against the previous one: new identities are started first,
// identities no key uses anymore are stopped afterwards.
type Aggregator struct {
	backend Backend
	gate    *registry.Gate
	mat     *materialize.Materializer
	log     logr.Logger
	release func()

	mu      sync.Mutex
	descs   map[string]*descriptor.Descriptor
	targets map[string]target
	active  map[descriptor.Identity]*view
	last    map[string]Snapshot
	closed  bool
}

// NewAggregator returns an aggregator without entries. mat may be nil.
func NewAggregator(backend Backend, gate *registry.Gate, mat *materialize.Materializer) *Aggregator {
	if mat == nil {
		mat = materialize.New()
	}
	return &Aggregator{
		backend: backend,
		gate:    gate,
		mat:     mat,
		log:     crlog.Log.WithName("watch"),
		targets: map[string]target{},
		active:  map[descriptor.Identity]*view{},
	}
}

// Bind replaces the set of descriptors. Nil descriptors are kept as inactive
// entries. Bind after Unbind does nothing.
func (a *Aggregator) Bind(descs map[string]*descriptor.Descriptor) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if a.unchanged(descs) {
		return
	}
	a.descs = maps.Clone(descs)
	a.sync()
}

// Refresh re-resolves all entries.
func (a *Aggregator) Refresh() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.sync()
	}
}

// Snapshots returns one snapshot per key. As long as no entry changed, the
// very same map is returned again. The map must not be modified.
func (a *Aggregator) Snapshots() map[string]Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed && a.anyPending() {
		a.sync()
	}

	changed := a.last == nil || len(a.last) != len(a.targets)
	out := make(map[string]Snapshot, len(a.targets))
	for key, t := range a.targets {
		s := t.fixed
		if t.id != "" {
			s = a.active[t.id].read(a.mat, a.backend.Read(t.id), t.isList)
		}
		if prev, ok := a.last[key]; !ok || !prev.Same(s) {
			changed = true
		}
		out[key] = s
	}
	if !changed {
		return a.last
	}
	a.last = out
	return out
}

// Identities returns the active identities in sorted order.
func (a *Aggregator) Identities() []descriptor.Identity {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Sorted(maps.Keys(a.active))
}

// Unbind stops all active identities. It is idempotent.
func (a *Aggregator) Unbind() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	for _, id := range slices.Sorted(maps.Keys(a.active)) {
		a.backend.Stop(id)
	}
	a.descs, a.targets, a.active, a.last = nil, map[string]target{}, map[descriptor.Identity]*view{}, nil
	release := a.release
	a.mu.Unlock()

	if release != nil {
		release()
	}
}

func (a *Aggregator) watching(id descriptor.Identity) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.active[id]
	return ok
}

func (a *Aggregator) unchanged(descs map[string]*descriptor.Descriptor) bool {
	if a.descs == nil || len(descs) != len(a.descs) || a.anyPending() {
		return false
	}
	for key, d := range descs {
		prev, ok := a.descs[key]
		if !ok || !descriptor.Equal(prev, d) {
			return false
		}
	}
	return true
}

func (a *Aggregator) anyPending() bool {
	for _, t := range a.targets {
		if t.pending {
			return true
		}
	}
	return false
}

func (a *Aggregator) sync() {
	targets := make(map[string]target, len(a.descs))
	next := map[descriptor.Identity]target{}
	for key, d := range a.descs {
		t := resolve(a.gate, d)
		targets[key] = t
		if t.id != "" {
			next[t.id] = t
		}
	}

	active := make(map[descriptor.Identity]*view, len(next))
	for _, id := range slices.Sorted(maps.Keys(next)) {
		if v, ok := a.active[id]; ok {
			active[id] = v
			continue
		}
		t := next[id]
		a.backend.Start(id, t.query, t.model)
		a.log.V(2).Info("bound", "identity", string(id))
		active[id] = &view{}
	}
	for _, id := range slices.Sorted(maps.Keys(a.active)) {
		if _, ok := active[id]; !ok {
			a.backend.Stop(id)
			a.log.V(2).Info("unbound", "identity", string(id))
		}
	}
	a.targets, a.active = targets, active
}
