package cachenode

import (
	"encoding/json"
	"fmt"
	"sort"
)

// FromValue converts an unstructured JSON value (as produced by
// k8s.io/apimachinery's unstructured decoding) into persistent nodes. Subtrees
// of old that are equal to the corresponding part of raw are reused as-is, so
// an unchanged object converts to old itself.
func FromValue(old Value, raw any) Value {
	switch t := raw.(type) {
	case map[string]any:
		return mapFromValue(old, t)
	case []any:
		return vecFromValue(old, t)
	case int:
		return scalar(old, int64(t))
	case int32:
		return scalar(old, int64(t))
	case float32:
		return scalar(old, float64(t))
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return scalar(old, i)
		}
		f, _ := t.Float64()
		return scalar(old, f)
	case nil, bool, int64, float64, string:
		return scalar(old, t)
	default:
		return scalar(old, fmt.Sprint(t))
	}
}

func scalar(old Value, v Value) Value {
	switch old.(type) {
	case *Map, *Vec:
		return v
	}
	if old == v {
		return old
	}
	return v
}

func mapFromValue(old Value, raw map[string]any) Value {
	prev, _ := old.(*Map)

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := &Map{keys: keys, vals: make(map[string]Value, len(raw))}
	unchanged := prev != nil && prev.Len() == len(raw)
	for _, k := range keys {
		var prevChild Value
		if prev != nil {
			prevChild = prev.vals[k]
		}
		child := FromValue(prevChild, raw[k])
		if unchanged {
			if _, ok := prev.vals[k]; !ok || !Same(prevChild, child) {
				unchanged = false
			}
		}
		out.vals[k] = child
	}
	if unchanged {
		return prev
	}
	return out
}

func vecFromValue(old Value, raw []any) Value {
	prev, _ := old.(*Vec)

	out := &Vec{items: make([]Value, len(raw))}
	unchanged := prev != nil && prev.Len() == len(raw)
	for i := range raw {
		var prevChild Value
		if prev != nil && i < prev.Len() {
			prevChild = prev.items[i]
		}
		out.items[i] = FromValue(prevChild, raw[i])
		if unchanged && !Same(prevChild, out.items[i]) {
			unchanged = false
		}
	}
	if unchanged {
		return prev
	}
	return out
}

// ToValue deep-copies a persistent value back into unstructured JSON form.
// It does no memoization; UI consumers should go through the materializer.
func ToValue(v Value) any {
	switch t := v.(type) {
	case *Map:
		out := make(map[string]any, t.Len())
		t.Range(func(k string, child Value) bool {
			out[k] = ToValue(child)
			return true
		})
		return out
	case *Vec:
		out := make([]any, t.Len())
		t.Range(func(i int, child Value) bool {
			out[i] = ToValue(child)
			return true
		})
		return out
	default:
		return t
	}
}
