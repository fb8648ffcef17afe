package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/sttts/kcwatch/internal/descriptor"
	"github.com/sttts/kcwatch/internal/registry"
	kctesting "github.com/sttts/kcwatch/internal/testing"
)

var podModel = &registry.Model{
	GroupVersionKind: schema.GroupVersionKind{Version: "v1", Kind: "Pod"},
	Resource:         "pods",
	Namespaced:       true,
}

// fakeSource hands out the sink of every running watch.
type fakeSource struct {
	mu      sync.Mutex
	starts  map[string]int
	running map[string]func(Event)
	err     error
}

func newFakeSource() *fakeSource {
	return &fakeSource{starts: map[string]int{}, running: map[string]func(Event){}}
}

func (f *fakeSource) Watch(ctx context.Context, _ *registry.Model, q descriptor.Query, sink func(Event)) error {
	f.mu.Lock()
	f.starts[q.Namespace]++
	if f.err != nil {
		f.mu.Unlock()
		return f.err
	}
	f.running[q.Namespace] = sink
	f.mu.Unlock()

	<-ctx.Done()

	f.mu.Lock()
	delete(f.running, q.Namespace)
	f.mu.Unlock()
	return nil
}

func (f *fakeSource) sink(ns string) func(Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[ns]
}

func (f *fakeSource) startCount(ns string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts[ns]
}

func normalize(t *testing.T, ns string) (descriptor.Query, descriptor.Identity) {
	t.Helper()
	q, id, ok := descriptor.Normalize(podModel, &descriptor.Descriptor{Kind: "Pod", Namespace: ns, IsList: true})
	if !ok {
		t.Fatalf("normalize failed")
	}
	return q, id
}

func TestStoreRefCounting(t *testing.T) {
	src := newFakeSource()
	s := New(src)
	defer s.Close()
	q, id := normalize(t, "default")

	s.Start(id, q, podModel)
	s.Start(id, q, podModel)
	kctesting.Eventually(t, time.Second, 5*time.Millisecond, func() bool { return src.sink("default") != nil })
	if s.Refs(id) != 2 {
		t.Fatalf("expected 2 refs, got %d", s.Refs(id))
	}

	src.sink("default")(Event{Type: Added, Object: newPod("a", "Running")})
	src.sink("default")(Event{Type: Synced})
	if n := s.Read(id); n == nil || !n.Loaded {
		t.Fatalf("expected loaded node, got %+v", n)
	}

	s.Stop(id)
	if s.Read(id) == nil {
		t.Fatalf("expected node to survive while referenced")
	}
	s.Stop(id)
	if s.Read(id) != nil || s.Refs(id) != 0 {
		t.Fatalf("expected node to be discarded after the last stop")
	}
	kctesting.Eventually(t, time.Second, 5*time.Millisecond, func() bool { return src.sink("default") == nil }, "backend watch not stopped")
	if got := src.startCount("default"); got != 1 {
		t.Fatalf("expected exactly one backend watch, got %d", got)
	}

	// stopping again is harmless
	s.Stop(id)
}

func TestStoreDropsLateEvents(t *testing.T) {
	src := newFakeSource()
	s := New(src)
	defer s.Close()
	q, id := normalize(t, "default")

	s.Start(id, q, podModel)
	kctesting.Eventually(t, time.Second, 5*time.Millisecond, func() bool { return src.sink("default") != nil })
	stale := src.sink("default")
	s.Stop(id)

	s.Start(id, q, podModel)
	stale(Event{Type: Added, Object: newPod("ghost", "Running")})
	if n := s.Read(id); n != nil {
		t.Fatalf("expected late event of the stopped watch to be dropped, got %+v", n)
	}
}

func TestStoreNotifiesSubscribers(t *testing.T) {
	src := newFakeSource()
	s := New(src)
	defer s.Close()
	q, id := normalize(t, "default")

	var mu sync.Mutex
	var got []descriptor.Identity
	unsubscribe := s.Subscribe(func(changed descriptor.Identity) {
		mu.Lock()
		got = append(got, changed)
		mu.Unlock()
	})

	s.Start(id, q, podModel)
	kctesting.Eventually(t, time.Second, 5*time.Millisecond, func() bool { return src.sink("default") != nil })
	sink := src.sink("default")
	sink(Event{Type: Synced})
	sink(Event{Type: Synced})

	mu.Lock()
	if len(got) != 1 || got[0] != id {
		t.Fatalf("expected one notification for %q, got %v", id, got)
	}
	mu.Unlock()

	unsubscribe()
	sink(Event{Type: Added, Object: newPod("a", "Running")})
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected no notification after unsubscribe")
	}
}

func TestStoreSourceError(t *testing.T) {
	src := newFakeSource()
	src.err = errors.New("forbidden")
	s := New(src)
	defer s.Close()
	q, id := normalize(t, "default")

	s.Start(id, q, podModel)
	kctesting.Eventually(t, time.Second, 5*time.Millisecond, func() bool {
		n := s.Read(id)
		return n != nil && n.LoadError == src.err
	}, "expected backend error as load error")
}

func TestStoreClose(t *testing.T) {
	src := newFakeSource()
	s := New(src)
	q, id := normalize(t, "default")
	s.Start(id, q, podModel)
	s.Close()
	if s.Refs(id) != 0 {
		t.Fatalf("expected no refs after close")
	}
	s.Start(id, q, podModel)
	if s.Refs(id) != 0 {
		t.Fatalf("expected closed store to ignore starts")
	}
}
