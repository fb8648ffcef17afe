// Package registry resolves resource kinds to type models and gates identity
// computation until the cluster's kinds have been discovered.
package registry

import (
	"slices"
	"strings"

	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Model describes a resource kind served by the cluster.
type Model struct {
	schema.GroupVersionKind

	// Resource is the plural resource name, e.g. "pods".
	Resource   string
	Namespaced bool
	Verbs      []string
}

// Reference returns the model's reference string, group~version~Kind, with
// the core group spelled "core".
func (m *Model) Reference() string {
	group := m.Group
	if group == "" {
		group = "core"
	}
	return group + "~" + m.Version + "~" + m.Kind
}

// GroupVersionResource returns the resource the model is served under.
func (m *Model) GroupVersionResource() schema.GroupVersionResource {
	return m.GroupVersion().WithResource(m.Resource)
}

// Watchable reports whether the server supports watching the resource. Models
// without verb information are assumed watchable.
func (m *Model) Watchable() bool {
	return len(m.Verbs) == 0 || slices.Contains(m.Verbs, "watch")
}

// ParseReference splits a group~version~Kind reference.
func ParseReference(ref string) (schema.GroupVersionKind, bool) {
	parts := strings.Split(ref, "~")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return schema.GroupVersionKind{}, false
	}
	group := parts[0]
	if group == "core" {
		group = ""
	}
	return schema.GroupVersionKind{Group: group, Version: parts[1], Kind: parts[2]}, true
}

// lookup finds kind in models. kind may be a reference (apps~v1~Deployment),
// a Kind.group shorthand (Deployment.apps) or a plain Kind, in which case the
// first model with that Kind wins.
func lookup(models []Model, kind string) (*Model, bool) {
	if kind == "" {
		return nil, false
	}
	if gvk, ok := ParseReference(kind); ok {
		for i := range models {
			if models[i].GroupVersionKind == gvk {
				return &models[i], true
			}
		}
		return nil, false
	}
	if k, group, ok := strings.Cut(kind, "."); ok {
		for i := range models {
			if models[i].Kind == k && models[i].Group == group {
				return &models[i], true
			}
		}
		return nil, false
	}
	for i := range models {
		if models[i].Kind == kind {
			return &models[i], true
		}
	}
	return nil, false
}
