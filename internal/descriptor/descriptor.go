// Package descriptor normalizes watch requests into canonical queries and
// deterministic identities.
package descriptor

import (
	"sort"
	"strings"

	"k8s.io/apimachinery/pkg/api/equality"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/selection"
	utiljson "k8s.io/apimachinery/pkg/util/json"

	"github.com/sttts/kcwatch/internal/registry"
)

// Descriptor describes what a consumer wants to watch. A nil *Descriptor
// means "no request".
type Descriptor struct {
	// Kind is a plain Kind, a Kind.group shorthand or a group~version~Kind
	// reference.
	Kind          string
	Namespace     string
	Name          string
	Selector      *metav1.LabelSelector
	FieldSelector string
	Limit         int64
	IsList        bool
}

// Equal compares descriptors by value. Two nil descriptors are equal.
func Equal(a, b *Descriptor) bool {
	if a == nil || b == nil {
		return a == b
	}
	return equality.Semantic.DeepEqual(*a, *b)
}

// Identity is the deduplication key of a watch.
type Identity string

// IsList reports whether the identity belongs to a list watch.
func (id Identity) IsList() bool {
	// group~version~Kind---scope---query; Kind never contains a dash.
	s := string(id)
	for i := 0; i < 2; i++ {
		idx := strings.IndexByte(s, '~')
		if idx < 0 {
			return false
		}
		s = s[idx+1:]
	}
	_, rest, ok := strings.Cut(s, separator)
	return ok && strings.HasPrefix(rest, "list"+separator)
}

// Query is the canonical form of a descriptor's filters. Only non-empty
// fields are serialized, always in this field order.
type Query struct {
	Namespace     string `json:"ns,omitempty"`
	Selector      string `json:"selector,omitempty"`
	FieldSelector string `json:"fieldSelector,omitempty"`
	Name          string `json:"name,omitempty"`
	Limit         int64  `json:"limit,omitempty"`
}

const separator = "---"

// Normalize computes the canonical query and identity for d under model. It
// returns false for an absent descriptor or model. Normalize does not check
// that the request makes sense, e.g. a singleton without a name is accepted.
func Normalize(model *registry.Model, d *Descriptor) (Query, Identity, bool) {
	if d == nil || model == nil {
		return Query{}, "", false
	}

	q := Query{
		Namespace:     d.Namespace,
		Selector:      canonicalLabelSelector(d.Selector),
		FieldSelector: canonicalFieldSelector(d.FieldSelector),
		Name:          d.Name,
	}
	if d.Limit > 0 {
		q.Limit = d.Limit
	}

	scope := "object"
	if d.IsList {
		scope = "list"
	}
	serialized, err := utiljson.Marshal(q)
	if err != nil {
		// Query only holds strings and an integer.
		panic(err)
	}
	return q, Identity(model.Reference() + separator + scope + separator + string(serialized)), true
}

// ListOptions returns the list options a backend uses to serve q. The name of
// a singleton is expressed as a metadata.name field selector.
func (q Query) ListOptions() metav1.ListOptions {
	fieldSelector := q.FieldSelector
	if q.Name != "" {
		byName := fields.OneTermEqualSelector("metadata.name", q.Name).String()
		if fieldSelector == "" {
			fieldSelector = byName
		} else {
			fieldSelector = byName + "," + fieldSelector
		}
	}
	return metav1.ListOptions{
		LabelSelector: q.Selector,
		FieldSelector: fieldSelector,
	}
}

func canonicalLabelSelector(sel *metav1.LabelSelector) string {
	if sel == nil {
		return ""
	}
	s, err := metav1.LabelSelectorAsSelector(sel)
	if err != nil {
		// Keep invalid selectors distinguishable; the backend reports the error.
		raw, _ := utiljson.Marshal(sel)
		return "invalid:" + string(raw)
	}
	return s.String()
}

func canonicalFieldSelector(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	sel, err := fields.ParseSelector(s)
	if err != nil {
		return s
	}
	reqs := sel.Requirements()
	terms := make([]string, 0, len(reqs))
	for _, r := range reqs {
		op := "="
		if r.Operator == selection.NotEquals {
			op = "!="
		}
		terms = append(terms, r.Field+op+fields.EscapeValue(r.Value))
	}
	sort.Strings(terms)
	return strings.Join(terms, ",")
}
