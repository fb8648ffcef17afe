package cachenode

// Node is the cached state of one watch identity. For list watches Data is a
// *Map from object key (namespace/name) to the object's *Map, in the order the
// objects were first seen. For singleton watches Data is the object's *Map, or
// nil while the object does not exist.
//
// Nodes are replaced, never modified: a change in any field yields a new *Node.
type Node struct {
	Data      Value
	Loaded    bool
	LoadError error
}

// ObjectKey returns the key used for an object inside list data.
func ObjectKey(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "/" + name
}

// KeyOf returns the ObjectKey of an object value, false if v is not an object
// with a name.
func KeyOf(v Value) (string, bool) {
	obj, ok := v.(*Map)
	if !ok {
		return "", false
	}
	meta, _ := obj.Get("metadata")
	m, ok := meta.(*Map)
	if !ok {
		return "", false
	}
	name, _ := m.Get("name")
	n, ok := name.(string)
	if !ok || n == "" {
		return "", false
	}
	ns, _ := m.Get("namespace")
	s, _ := ns.(string)
	return ObjectKey(s, n), true
}
