package watch

import (
	"sync"

	"github.com/go-logr/logr"
	crlog "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/sttts/kcwatch/internal/descriptor"
	"github.com/sttts/kcwatch/internal/materialize"
	"github.com/sttts/kcwatch/internal/registry"
)

// Binder keeps one descriptor bound to the backend. Rebinding to a
// descriptor with a new identity starts the new identity before stopping the
// old one, rebinding to the same identity signals nothing.
//
// While the gate is unloaded the binder holds no identity. The identity is
// computed by the first Bind, Refresh or Snapshot after the gate opened.
type Binder struct {
	backend Backend
	gate    *registry.Gate
	mat     *materialize.Materializer
	log     logr.Logger
	release func()

	mu     sync.Mutex
	desc   *descriptor.Descriptor
	cur    target
	view   view
	closed bool
}

// NewBinder returns an unbound binder. mat may be nil, then the binder uses
// a private materializer.
func NewBinder(backend Backend, gate *registry.Gate, mat *materialize.Materializer) *Binder {
	if mat == nil {
		mat = materialize.New()
	}
	return &Binder{backend: backend, gate: gate, mat: mat, log: crlog.Log.WithName("watch")}
}

// Bind binds d, a nil d unbinds the current identity but keeps the binder
// usable. Bind after Unbind does nothing.
func (b *Binder) Bind(d *descriptor.Descriptor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if descriptor.Equal(b.desc, d) && !b.cur.pending {
		return
	}
	b.desc = d
	b.sync()
}

// Refresh re-resolves the bound descriptor, e.g. after the gate opened.
func (b *Binder) Refresh() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.sync()
}

// Snapshot returns the current state of the bound descriptor. The returned
// Data stays the same value until the cached state changes.
func (b *Binder) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cur.pending && !b.closed {
		b.sync()
	}
	if b.cur.id == "" {
		return b.cur.fixed
	}
	return b.view.read(b.mat, b.backend.Read(b.cur.id), b.cur.isList)
}

// Identity returns the bound identity, empty if none.
func (b *Binder) Identity() descriptor.Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cur.id
}

// Unbind stops the bound identity, whether or not it ever produced data.
// Unbind is idempotent.
func (b *Binder) Unbind() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	if b.cur.id != "" {
		b.backend.Stop(b.cur.id)
		b.log.V(2).Info("unbound", "identity", string(b.cur.id))
	}
	b.desc, b.cur, b.view = nil, target{}, view{}
	release := b.release
	b.mu.Unlock()

	if release != nil {
		release()
	}
}

func (b *Binder) watching(id descriptor.Identity) bool {
	return b.Identity() == id
}

func (b *Binder) sync() {
	next := resolve(b.gate, b.desc)
	prev := b.cur
	b.cur = next
	if next.id == prev.id {
		return
	}
	if next.id != "" {
		b.backend.Start(next.id, next.query, next.model)
		b.log.V(2).Info("bound", "identity", string(next.id))
	}
	if prev.id != "" {
		b.backend.Stop(prev.id)
	}
	b.view = view{}
}
