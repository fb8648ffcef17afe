package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"

	kctesting "github.com/sttts/kcwatch/internal/testing"
)

type fakeLister struct {
	mu          sync.Mutex
	lists       []*metav1.APIResourceList
	err         error
	calls       int
	invalidated int
	block       chan struct{}
}

func (f *fakeLister) ServerPreferredResources() ([]*metav1.APIResourceList, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.lists, f.err
}

func (f *fakeLister) Invalidate() {
	f.mu.Lock()
	f.invalidated++
	f.mu.Unlock()
}

func testLists() []*metav1.APIResourceList {
	return []*metav1.APIResourceList{
		{
			GroupVersion: "events.k8s.io/v1",
			APIResources: []metav1.APIResource{{Name: "events", Kind: "Event", Namespaced: true, Verbs: []string{"list", "watch"}}},
		},
		{
			GroupVersion: "v1",
			APIResources: []metav1.APIResource{
				{Name: "pods", Kind: "Pod", Namespaced: true, Verbs: []string{"get", "list", "watch"}},
				{Name: "pods/log", Kind: "Pod", Namespaced: true},
				{Name: "events", Kind: "Event", Namespaced: true, Verbs: []string{"list", "watch"}},
				{Name: "namespaces", Kind: "Namespace", Verbs: []string{"list", "watch"}},
				{Name: "bindings", Kind: "Binding", Namespaced: true, Verbs: []string{"create"}},
			},
		},
	}
}

func TestDiscoveryLoad(t *testing.T) {
	lister := &fakeLister{lists: testLists()}
	d := NewDiscovery(lister)
	if d.Loaded() {
		t.Fatalf("expected unloaded before Load")
	}
	if err := d.Load(t.Context()); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !d.Loaded() || d.InFlight() {
		t.Fatalf("expected loaded and idle, got loaded=%v inFlight=%v", d.Loaded(), d.InFlight())
	}

	if n := len(d.Models()); n != 5 {
		t.Fatalf("expected 5 models without subresources, got %d", n)
	}
	m, ok := d.Resolve("Event")
	if !ok || m.Group != "" {
		t.Fatalf("expected core Event to be preferred, got %+v", m)
	}
	m, ok = d.Resolve("Event.events.k8s.io")
	if !ok || m.Group != "events.k8s.io" {
		t.Fatalf("expected events.k8s.io Event, got %+v", m)
	}
	m, ok = d.Resolve("Namespace")
	if !ok || m.Namespaced {
		t.Fatalf("expected cluster-scoped Namespace, got %+v", m)
	}
	m, _ = d.Resolve("Binding")
	if m.Watchable() {
		t.Fatalf("expected Binding not to be watchable")
	}
}

func TestDiscoveryPartialFailure(t *testing.T) {
	lister := &fakeLister{
		lists: testLists(),
		err: &discovery.ErrGroupDiscoveryFailed{Groups: map[schema.GroupVersion]error{
			{Group: "metrics.k8s.io", Version: "v1beta1"}: errors.New("unavailable"),
		}},
	}
	d := NewDiscovery(lister)
	if err := d.Load(t.Context()); err != nil {
		t.Fatalf("expected partial failure to be tolerated, got %v", err)
	}
	if _, ok := d.Resolve("Pod"); !ok {
		t.Fatalf("expected Pod to resolve")
	}
}

func TestDiscoveryLoadError(t *testing.T) {
	d := NewDiscovery(&fakeLister{err: errors.New("connection refused")})
	if err := d.Load(t.Context()); err == nil {
		t.Fatalf("expected error")
	}
	gate := NewGate(d)
	if gate.State() != Unloaded {
		t.Fatalf("expected gate to stay closed after a failed load")
	}
}

func TestDiscoveryOpensGate(t *testing.T) {
	lister := &fakeLister{lists: testLists(), block: make(chan struct{})}
	d := NewDiscovery(lister)
	gate := NewGate(d)

	opened := make(chan struct{})
	cancel := gate.Notify(func() { close(opened) })
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Load(t.Context()) }()
	select {
	case <-opened:
		t.Fatalf("gate opened before discovery finished")
	case <-time.After(20 * time.Millisecond):
	}
	close(lister.block)

	if err := <-done; err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	select {
	case <-opened:
	case <-time.After(time.Second):
		t.Fatalf("gate did not open")
	}
	if res := gate.Resolve("Deployment"); !IsNoModel(res.LoadError) {
		t.Fatalf("expected NoModelError for Deployment, got %+v", res)
	}
}

func TestDiscoveryRunRefreshes(t *testing.T) {
	lister := &fakeLister{lists: testLists()}
	d := NewDiscovery(lister)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		d.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	kctesting.Eventually(t, 2*time.Second, 5*time.Millisecond, func() bool {
		lister.mu.Lock()
		defer lister.mu.Unlock()
		return lister.invalidated > 0 && lister.calls > 1
	}, "expected discovery cache to be invalidated and reloaded")
	cancel()
	<-done
	if !d.Loaded() {
		t.Fatalf("expected registry to stay loaded")
	}
}

func TestDiscoveryLoadTimeout(t *testing.T) {
	lister := &fakeLister{lists: testLists(), block: make(chan struct{})}
	d := NewDiscovery(lister)
	d.SetLoadTimeout(20 * time.Millisecond)

	if err := d.Load(t.Context()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if d.Loaded() || !d.InFlight() {
		t.Fatalf("expected the load to continue in the background")
	}

	close(lister.block)
	kctesting.Eventually(t, time.Second, 5*time.Millisecond, func() bool { return d.Loaded() && !d.InFlight() }, "background load never finished")
}
