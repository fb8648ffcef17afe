// Package materialize turns persistent cache nodes into plain Go values that
// UI code can hold on to. Conversions are memoized by node identity: a node
// that was converted before yields the very same plain value again, so
// consumers can detect "nothing changed" with a pointer comparison, and
// unchanged children of a changed node keep their previous plain values.
//
// Plain values are shared between callers and must be treated as read-only.
package materialize

import (
	"runtime"
	"sync"
	"weak"

	"github.com/sttts/kcwatch/internal/cachenode"
)

// Materializer converts cachenode values with a memo keyed by weak node
// pointers. Entries disappear once the store drops the node they were
// computed from. It is safe for concurrent use.
type Materializer struct {
	mu    sync.Mutex
	maps  map[weak.Pointer[cachenode.Map]]map[string]any
	vecs  map[weak.Pointer[cachenode.Vec]][]any
	lists map[weak.Pointer[cachenode.Map]][]map[string]any
}

// New returns an empty Materializer.
func New() *Materializer {
	return &Materializer{
		maps:  map[weak.Pointer[cachenode.Map]]map[string]any{},
		vecs:  map[weak.Pointer[cachenode.Vec]][]any{},
		lists: map[weak.Pointer[cachenode.Map]][]map[string]any{},
	}
}

// Value converts any persistent value.
func (m *Materializer) Value(v cachenode.Value) any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value(v)
}

// Object converts a singleton's data. Anything that is not a *cachenode.Map
// yields nil.
func (m *Materializer) Object(v cachenode.Value) map[string]any {
	node, ok := v.(*cachenode.Map)
	if !ok || node == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.object(node)
}

// List converts list data, a map from object key to object, into the objects
// in the order of the underlying map. Anything that is not a *cachenode.Map
// yields nil.
func (m *Materializer) List(v cachenode.Value) []map[string]any {
	node, ok := v.(*cachenode.Map)
	if !ok || node == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := weak.Make(node)
	if out, ok := m.lists[key]; ok {
		return out
	}
	out := make([]map[string]any, 0, node.Len())
	node.Range(func(_ string, item cachenode.Value) bool {
		if obj, ok := item.(*cachenode.Map); ok {
			out = append(out, m.object(obj))
		}
		return true
	})
	m.lists[key] = out
	runtime.AddCleanup(node, m.dropList, key)
	return out
}

// Size returns the number of memoized nodes.
func (m *Materializer) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.maps) + len(m.vecs) + len(m.lists)
}

func (m *Materializer) value(v cachenode.Value) any {
	switch t := v.(type) {
	case *cachenode.Map:
		if t == nil {
			return nil
		}
		return m.object(t)
	case *cachenode.Vec:
		if t == nil {
			return nil
		}
		return m.vec(t)
	default:
		return t
	}
}

func (m *Materializer) object(node *cachenode.Map) map[string]any {
	key := weak.Make(node)
	if out, ok := m.maps[key]; ok {
		return out
	}
	out := make(map[string]any, node.Len())
	node.Range(func(k string, child cachenode.Value) bool {
		out[k] = m.value(child)
		return true
	})
	m.maps[key] = out
	runtime.AddCleanup(node, m.dropMap, key)
	return out
}

func (m *Materializer) vec(node *cachenode.Vec) []any {
	key := weak.Make(node)
	if out, ok := m.vecs[key]; ok {
		return out
	}
	out := make([]any, node.Len())
	node.Range(func(i int, child cachenode.Value) bool {
		out[i] = m.value(child)
		return true
	})
	m.vecs[key] = out
	runtime.AddCleanup(node, m.dropVec, key)
	return out
}

func (m *Materializer) dropMap(key weak.Pointer[cachenode.Map]) {
	m.mu.Lock()
	delete(m.maps, key)
	m.mu.Unlock()
}

func (m *Materializer) dropVec(key weak.Pointer[cachenode.Vec]) {
	m.mu.Lock()
	delete(m.vecs, key)
	m.mu.Unlock()
}

func (m *Materializer) dropList(key weak.Pointer[cachenode.Map]) {
	m.mu.Lock()
	delete(m.lists, key)
	m.mu.Unlock()
}
