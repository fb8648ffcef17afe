package watch

import (
	"reflect"
	"sync"

	"github.com/go-logr/logr"
	crlog "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/sttts/kcwatch/internal/descriptor"
	"github.com/sttts/kcwatch/internal/materialize"
	"github.com/sttts/kcwatch/internal/registry"
)

type subscriber interface {
	watching(id descriptor.Identity) bool
	Refresh()
}

type subscription struct {
	sub      subscriber
	onChange func()
}

// Service hands out binders that share one materializer and get notified
// when their own identity changes in the backend or when the gate opens.
// Notifications run on the backend's goroutines.
type Service struct {
	backend Backend
	gate    *registry.Gate
	mat     *materialize.Materializer
	log     logr.Logger
	stops   []func()

	mu   sync.Mutex
	next int
	subs map[int]subscription
}

// NewService returns a service on backend. Store change notifications are
// routed if backend implements ChangeNotifier.
func NewService(backend Backend, gate *registry.Gate) *Service {
	s := &Service{
		backend: backend,
		gate:    gate,
		mat:     materialize.New(),
		log:     crlog.Log.WithName("watch"),
		subs:    map[int]subscription{},
	}
	if n, ok := backend.(ChangeNotifier); ok {
		s.stops = append(s.stops, n.Subscribe(s.changed))
	}
	s.stops = append(s.stops, gate.Notify(s.opened))
	return s
}

// Watch returns a binder bound to d. onChange, if not nil, is called
// whenever the binder's snapshot may have changed. Unbind releases the
// binder from the service.
func (s *Service) Watch(d *descriptor.Descriptor, onChange func()) *Binder {
	b := NewBinder(s.backend, s.gate, s.mat)
	b.release = s.register(b, onChange)
	b.Bind(d)
	return b
}

// WatchMany returns an aggregator bound to descs, see Watch.
func (s *Service) WatchMany(descs map[string]*descriptor.Descriptor, onChange func()) *Aggregator {
	a := NewAggregator(s.backend, s.gate, s.mat)
	a.release = s.register(a, onChange)
	a.Bind(descs)
	return a
}

// Subscribe calls onChange with the current snapshot of d, and again every
// time it changes, until unsubscribe is called.
func (s *Service) Subscribe(d *descriptor.Descriptor, onChange func(Snapshot)) (unsubscribe func()) {
	var (
		mu   sync.Mutex
		last *Snapshot
		b    *Binder
	)
	emit := func() {
		mu.Lock()
		defer mu.Unlock()
		if b == nil {
			return
		}
		snap := b.Snapshot()
		if last != nil && last.Same(snap) {
			return
		}
		last = &snap
		onChange(snap)
	}
	mu.Lock()
	b = s.Watch(d, emit)
	mu.Unlock()
	emit()
	return b.Unbind
}

// SubscribeMany is Subscribe for a set of descriptors.
func (s *Service) SubscribeMany(descs map[string]*descriptor.Descriptor, onChange func(map[string]Snapshot)) (unsubscribe func()) {
	var (
		mu   sync.Mutex
		last map[string]Snapshot
		a    *Aggregator
	)
	emit := func() {
		mu.Lock()
		defer mu.Unlock()
		if a == nil {
			return
		}
		snaps := a.Snapshots()
		if sameMap(last, snaps) {
			return
		}
		last = snaps
		onChange(snaps)
	}
	mu.Lock()
	a = s.WatchMany(descs, emit)
	mu.Unlock()
	emit()
	return a.Unbind
}

// Close detaches the service from the backend and the gate. Binders handed
// out before keep working but are no longer notified.
func (s *Service) Close() {
	for _, stop := range s.stops {
		stop()
	}
	s.mu.Lock()
	s.subs = map[int]subscription{}
	s.mu.Unlock()
}

func (s *Service) register(sub subscriber, onChange func()) (release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.subs[id] = subscription{sub: sub, onChange: onChange}
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Service) snapshot() []subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := make([]subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	return subs
}

func (s *Service) changed(id descriptor.Identity) {
	for _, sub := range s.snapshot() {
		if sub.onChange != nil && sub.sub.watching(id) {
			sub.onChange()
		}
	}
}

func (s *Service) opened() {
	subs := s.snapshot()
	s.log.V(1).Info("registry loaded", "subscribers", len(subs))
	for _, sub := range subs {
		sub.sub.Refresh()
	}
	for _, sub := range subs {
		if sub.onChange != nil {
			sub.onChange()
		}
	}
}

func sameMap(a, b map[string]Snapshot) bool {
	if a == nil || b == nil {
		return false
	}
	return reflect.ValueOf(a).UnsafePointer() == reflect.ValueOf(b).UnsafePointer()
}
