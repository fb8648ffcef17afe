package registry

import "sync"

// Source is the registry of resource kinds the gate consults. It loads
// asynchronously; Loaded and InFlight describe its progress.
type Source interface {
	Resolve(kind string) (*Model, bool)
	Loaded() bool
	InFlight() bool
}

// Notifier is implemented by sources that can announce state changes.
type Notifier interface {
	// Notify registers fn to be called after every change of the source. The
	// returned function unregisters it.
	Notify(fn func()) (cancel func())
}

type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func()
}

func (l *listeners) Notify(fn func()) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = map[int]func(){}
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.fns, id)
		l.mu.Unlock()
	}
}

func (l *listeners) fire() {
	l.mu.Lock()
	fns := make([]func(), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Static is a Source over a fixed set of models, published explicitly.
type Static struct {
	listeners

	mu       sync.RWMutex
	models   []Model
	loaded   bool
	inFlight bool
}

// NewStatic returns an unloaded Static source.
func NewStatic() *Static {
	return &Static{}
}

// Publish replaces the models and marks the source loaded.
func (s *Static) Publish(models ...Model) {
	s.mu.Lock()
	s.models = append([]Model(nil), models...)
	s.loaded = true
	s.inFlight = false
	s.mu.Unlock()
	s.fire()
}

// SetInFlight marks a (re)load as running or finished.
func (s *Static) SetInFlight(inFlight bool) {
	s.mu.Lock()
	s.inFlight = inFlight
	s.mu.Unlock()
	s.fire()
}

// Clear drops all models without marking the source unloaded.
func (s *Static) Clear() {
	s.mu.Lock()
	s.models = nil
	s.mu.Unlock()
	s.fire()
}

// Resolve implements Source.
func (s *Static) Resolve(kind string) (*Model, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookup(s.models, kind)
}

// Loaded implements Source.
func (s *Static) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded && len(s.models) > 0
}

// InFlight implements Source.
func (s *Static) InFlight() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inFlight
}
