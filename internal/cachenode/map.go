// Package cachenode holds the persistent, copy-on-write values the store keeps
// per watch identity. Values are never mutated after construction: every
// update returns a new node that shares unchanged children with its
// predecessor, so pointer identity doubles as change detection.
package cachenode

// Value is one of nil, bool, int64, float64, string, *Map or *Vec.
type Value = any

// Map is an insertion-ordered persistent map.
type Map struct {
	keys []string
	vals map[string]Value
}

// NewMap returns an empty map.
func NewMap() *Map {
	return &Map{vals: map[string]Value{}}
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Get returns the value stored under k.
func (m *Map) Get(k string) (Value, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.vals[k]
	return v, ok
}

// Keys returns a copy of the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Range calls fn for every entry in insertion order until fn returns false.
func (m *Map) Range(fn func(k string, v Value) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.vals[k]) {
			return
		}
	}
}

// Set returns a map with k bound to v. Existing keys keep their position.
// If k already holds the identical value, m itself is returned.
func (m *Map) Set(k string, v Value) *Map {
	if m == nil {
		m = NewMap()
	}
	if old, ok := m.vals[k]; ok && Same(old, v) {
		return m
	}
	out := m.clone()
	if _, ok := out.vals[k]; !ok {
		out.keys = append(out.keys, k)
	}
	out.vals[k] = v
	return out
}

// Delete returns a map without k, or m itself when k is absent.
func (m *Map) Delete(k string) *Map {
	if m == nil {
		return NewMap()
	}
	if _, ok := m.vals[k]; !ok {
		return m
	}
	out := &Map{keys: make([]string, 0, len(m.keys)-1), vals: make(map[string]Value, len(m.vals)-1)}
	for _, key := range m.keys {
		if key == k {
			continue
		}
		out.keys = append(out.keys, key)
		out.vals[key] = m.vals[key]
	}
	return out
}

func (m *Map) clone() *Map {
	out := &Map{keys: make([]string, len(m.keys), len(m.keys)+1), vals: make(map[string]Value, len(m.vals)+1)}
	copy(out.keys, m.keys)
	for k, v := range m.vals {
		out.vals[k] = v
	}
	return out
}

// Vec is an immutable ordered sequence.
type Vec struct {
	items []Value
}

// NewVec returns a vector holding items. The slice is copied.
func NewVec(items ...Value) *Vec {
	return &Vec{items: append([]Value(nil), items...)}
}

// Len returns the number of items.
func (v *Vec) Len() int {
	if v == nil {
		return 0
	}
	return len(v.items)
}

// At returns the item at index i.
func (v *Vec) At(i int) Value { return v.items[i] }

// Range calls fn for every item in order until fn returns false.
func (v *Vec) Range(fn func(i int, item Value) bool) {
	if v == nil {
		return
	}
	for i, item := range v.items {
		if !fn(i, item) {
			return
		}
	}
}

// Same reports whether a and b are the same node: pointer identity for
// containers, equality for scalars.
func Same(a, b Value) bool {
	switch av := a.(type) {
	case *Map:
		bv, ok := b.(*Map)
		return ok && av == bv
	case *Vec:
		bv, ok := b.(*Vec)
		return ok && av == bv
	}
	switch b.(type) {
	case *Map, *Vec:
		return false
	}
	return a == b
}
