package store

import (
	"context"
	"sync"

	"github.com/go-logr/logr"
	crlog "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/sttts/kcwatch/internal/cachenode"
	"github.com/sttts/kcwatch/internal/descriptor"
	"github.com/sttts/kcwatch/internal/registry"
)

// Store reference-counts identities. The backend watch for an identity starts
// when its count goes from 0 to 1 and stops when it drops back to 0; the cache
// node of a stopped identity is discarded, a later start lists again.
//
// Store is safe for concurrent use. Start and Stop never block on the backend.
type Store struct {
	source Source
	log    logr.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	entries map[descriptor.Identity]*entry
	nodes   map[descriptor.Identity]*cachenode.Node

	lmu       sync.Mutex
	nextID    int
	listeners map[int]func(descriptor.Identity)
}

type entry struct {
	refs   int
	isList bool
	limit  int64
	cancel context.CancelFunc
}

// New returns a store running watches through source.
func New(source Source) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		source:    source,
		log:       crlog.Log.WithName("store"),
		ctx:       ctx,
		cancel:    cancel,
		entries:   map[descriptor.Identity]*entry{},
		nodes:     map[descriptor.Identity]*cachenode.Node{},
		listeners: map[int]func(descriptor.Identity){},
	}
}

// Start takes a reference on id, starting the backend watch on the first one.
func (s *Store) Start(id descriptor.Identity, query descriptor.Query, model *registry.Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.refs++
		return
	}
	if s.ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	e := &entry{refs: 1, isList: id.IsList(), limit: query.Limit, cancel: cancel}
	s.entries[id] = e
	activeWatches.Inc()
	watchStarts.Inc()
	s.log.V(1).Info("starting watch", "identity", string(id))

	go func() {
		err := s.source.Watch(ctx, model, query, func(evt Event) { s.apply(id, e, evt) })
		if err != nil && ctx.Err() == nil {
			s.log.V(1).Info("watch failed", "identity", string(id), "error", err.Error())
			watchErrors.Inc()
			s.apply(id, e, Event{Type: Failed, Err: err})
		}
	}()
}

// Stop drops a reference on id, stopping the backend watch with the last one.
// Stopping an identity that is not started is a no-op.
func (s *Store) Stop(id descriptor.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return
	}
	e.refs--
	if e.refs > 0 {
		return
	}
	delete(s.entries, id)
	delete(s.nodes, id)
	e.cancel()
	activeWatches.Dec()
	s.log.V(1).Info("stopped watch", "identity", string(id))
}

// Read returns the current cache node of id, or nil if none exists yet.
func (s *Store) Read(id descriptor.Identity) *cachenode.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes[id]
}

// Refs returns the number of references held on id.
func (s *Store) Refs(id descriptor.Identity) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.entries[id]; ok {
		return e.refs
	}
	return 0
}

// Subscribe registers fn to be called with the identity of every changed
// cache node. fn runs on the backend's goroutine and must not block.
func (s *Store) Subscribe(fn func(descriptor.Identity)) (unsubscribe func()) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.lmu.Lock()
		delete(s.listeners, id)
		s.lmu.Unlock()
	}
}

// Close stops all watches.
func (s *Store) Close() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		e.cancel()
		delete(s.entries, id)
		delete(s.nodes, id)
		activeWatches.Dec()
	}
}

func (s *Store) apply(id descriptor.Identity, e *entry, evt Event) {
	s.mu.Lock()
	if s.entries[id] != e {
		// late event of a watch that was stopped
		s.mu.Unlock()
		return
	}
	prev := s.nodes[id]
	next := reduce(prev, e.isList, e.limit, evt)
	if next == prev {
		s.mu.Unlock()
		return
	}
	s.nodes[id] = next
	s.mu.Unlock()
	appliedEvents.WithLabelValues(string(evt.Type)).Inc()

	s.lmu.Lock()
	fns := make([]func(descriptor.Identity), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.lmu.Unlock()
	for _, fn := range fns {
		fn(id)
	}
}
