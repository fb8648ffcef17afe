package store

import (
	"reflect"

	"github.com/sttts/kcwatch/internal/cachenode"
)

// reduce applies evt to node and returns the resulting node. It returns node
// itself when the event changes nothing, so unchanged state keeps its
// identity. node may be nil for a watch that has not produced anything yet.
func reduce(node *cachenode.Node, isList bool, limit int64, evt Event) *cachenode.Node {
	if node == nil {
		node = &cachenode.Node{}
		if isList {
			node.Data = cachenode.NewMap()
		}
	}

	next := *node
	switch evt.Type {
	case Added, Modified:
		if evt.Object == nil {
			return node
		}
		next.Data = upsert(node.Data, isList, limit, evt)
		next.LoadError = nil
	case Deleted:
		if evt.Object == nil {
			return node
		}
		key := cachenode.ObjectKey(evt.Object.GetNamespace(), evt.Object.GetName())
		if isList {
			data, _ := node.Data.(*cachenode.Map)
			next.Data = data.Delete(key)
		} else {
			if cur, ok := cachenode.KeyOf(node.Data); ok && cur != key {
				// another object matching the singleton query went away
				return node
			}
			next.Data = nil
		}
		next.LoadError = nil
	case Synced:
		next.Loaded = true
		next.LoadError = nil
	case Failed:
		if evt.Err == nil || sameError(evt.Err, node.LoadError) {
			return node
		}
		next.LoadError = evt.Err
	default:
		return node
	}

	if cachenode.Same(next.Data, node.Data) && next.Loaded == node.Loaded && sameError(next.LoadError, node.LoadError) {
		return node
	}
	return &next
}

func upsert(data cachenode.Value, isList bool, limit int64, evt Event) cachenode.Value {
	if !isList {
		return cachenode.FromValue(data, evt.Object.Object)
	}
	list, _ := data.(*cachenode.Map)
	key := cachenode.ObjectKey(evt.Object.GetNamespace(), evt.Object.GetName())
	old, exists := list.Get(key)
	if !exists && limit > 0 && int64(list.Len()) >= limit {
		return list
	}
	return list.Set(key, cachenode.FromValue(old, evt.Object.Object))
}

// sameError compares errors by identity without panicking on error types that
// are not comparable.
func sameError(a, b error) bool {
	if a == nil || b == nil {
		return a == b
	}
	t := reflect.TypeOf(a)
	if t != reflect.TypeOf(b) || !t.Comparable() {
		return false
	}
	return a == b
}
