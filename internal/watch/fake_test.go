package watch

import (
	"sync"
	"testing"

	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/sttts/kcwatch/internal/cachenode"
	"github.com/sttts/kcwatch/internal/descriptor"
	"github.com/sttts/kcwatch/internal/registry"
)

var (
	podModel = registry.Model{
		GroupVersionKind: schema.GroupVersionKind{Version: "v1", Kind: "Pod"},
		Resource:         "pods",
		Namespaced:       true,
	}
	nodeModel = registry.Model{
		GroupVersionKind: schema.GroupVersionKind{Version: "v1", Kind: "Node"},
		Resource:         "nodes",
	}
)

// fakeBackend records signals and serves nodes set by the test.
type fakeBackend struct {
	mu        sync.Mutex
	signals   []string
	nodes     map[descriptor.Identity]*cachenode.Node
	listeners map[int]func(descriptor.Identity)
	next      int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{nodes: map[descriptor.Identity]*cachenode.Node{}, listeners: map[int]func(descriptor.Identity){}}
}

func (f *fakeBackend) Start(id descriptor.Identity, _ descriptor.Query, _ *registry.Model) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, "start "+string(id))
}

func (f *fakeBackend) Stop(id descriptor.Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, "stop "+string(id))
}

func (f *fakeBackend) Read(id descriptor.Identity) *cachenode.Node {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nodes[id]
}

func (f *fakeBackend) Subscribe(fn func(descriptor.Identity)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *fakeBackend) set(id descriptor.Identity, node *cachenode.Node) {
	f.mu.Lock()
	f.nodes[id] = node
	fns := make([]func(descriptor.Identity), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(id)
	}
}

func (f *fakeBackend) taken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.signals
	f.signals = nil
	return out
}

func loadedStatic(models ...registry.Model) *registry.Static {
	s := registry.NewStatic()
	s.Publish(models...)
	return s
}

func podList(ns string) *descriptor.Descriptor {
	return &descriptor.Descriptor{Kind: "Pod", Namespace: ns, IsList: true}
}

func identity(t *testing.T, m registry.Model, d *descriptor.Descriptor) descriptor.Identity {
	t.Helper()
	_, id, ok := descriptor.Normalize(&m, d)
	if !ok {
		t.Fatalf("normalize failed")
	}
	return id
}

func pod(name, phase string) map[string]any {
	return map[string]any{
		"metadata": map[string]any{"name": name, "namespace": "default"},
		"status":   map[string]any{"phase": phase},
	}
}

// listNode builds list data from objects, reusing the subtrees of prev.
func listNode(prev *cachenode.Node, objs ...map[string]any) *cachenode.Node {
	var data *cachenode.Map
	if prev != nil {
		data, _ = prev.Data.(*cachenode.Map)
	}
	if data == nil {
		data = cachenode.NewMap()
	}
	for _, obj := range objs {
		name := obj["metadata"].(map[string]any)["name"].(string)
		key := cachenode.ObjectKey("default", name)
		old, _ := data.Get(key)
		data = data.Set(key, cachenode.FromValue(old, obj))
	}
	return &cachenode.Node{Data: data, Loaded: true}
}
