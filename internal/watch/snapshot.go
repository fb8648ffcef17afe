// Package watch binds watch descriptors to the reference-counted store and
// hands out plain snapshots of the cached state.
//
// A Binder follows one descriptor, an Aggregator a named set of them. Both
// translate descriptor changes into start and stop signals on a Backend and
// never toggle a signal for an identity that did not change. The Service
// wires binders to store change notifications and to the registry gate.
package watch

import (
	"reflect"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/sttts/kcwatch/internal/cachenode"
	"github.com/sttts/kcwatch/internal/descriptor"
	"github.com/sttts/kcwatch/internal/registry"
)

// Backend is the reference-counted subscription system behind the binders.
// Start and Stop are signals: the backend counts them per identity and only
// acts on the first Start and the last Stop.
type Backend interface {
	Start(id descriptor.Identity, query descriptor.Query, model *registry.Model)
	Stop(id descriptor.Identity)
	Read(id descriptor.Identity) *cachenode.Node
}

// ChangeNotifier is implemented by backends that announce cache node changes.
type ChangeNotifier interface {
	Subscribe(fn func(descriptor.Identity)) (unsubscribe func())
}

// Snapshot is the plain view of one watch. Data is []map[string]any for list
// watches and map[string]any for singletons. A singleton that is not watched
// yet has an empty object; nil means the watch settled without a match. Data
// is shared with other snapshots and must not be modified.
type Snapshot struct {
	Data      any
	Loaded    bool
	LoadError error
}

// Items returns the objects of a list snapshot.
func (s Snapshot) Items() []map[string]any {
	items, _ := s.Data.([]map[string]any)
	return items
}

// Object returns the object of a singleton snapshot, nil if there is none.
func (s Snapshot) Object() map[string]any {
	obj, _ := s.Data.(map[string]any)
	return obj
}

// Unstructured wraps the singleton object without copying it. It returns nil
// when there is no object yet.
func (s Snapshot) Unstructured() *unstructured.Unstructured {
	obj := s.Object()
	if len(obj) == 0 {
		return nil
	}
	return &unstructured.Unstructured{Object: obj}
}

// UnstructuredItems wraps the list objects without copying them.
func (s Snapshot) UnstructuredItems() []*unstructured.Unstructured {
	items := s.Items()
	out := make([]*unstructured.Unstructured, 0, len(items))
	for _, item := range items {
		out = append(out, &unstructured.Unstructured{Object: item})
	}
	return out
}

// Same reports whether two snapshots carry the same state: identical data by
// reference, the same load flag and the same error value.
func (s Snapshot) Same(o Snapshot) bool {
	return s.Loaded == o.Loaded && sameError(s.LoadError, o.LoadError) && sameData(s.Data, o.Data)
}

func sameData(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case []map[string]any:
		y, ok := b.([]map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		return len(x) == 0 || &x[0] == &y[0]
	case map[string]any:
		y, ok := b.(map[string]any)
		return ok && reflect.ValueOf(x).UnsafePointer() == reflect.ValueOf(y).UnsafePointer()
	}
	return false
}

// emptyObject is the data of every singleton without a cache node.
var emptyObject = map[string]any{}

func emptyData(isList bool) any {
	if isList {
		return []map[string]any{}
	}
	return emptyObject
}

func sameError(a, b error) bool {
	if a == nil || b == nil {
		return a == b
	}
	t := reflect.TypeOf(a)
	return t == reflect.TypeOf(b) && t.Comparable() && a == b
}
