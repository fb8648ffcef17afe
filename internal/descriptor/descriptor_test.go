package descriptor

import (
	"testing"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/sttts/kcwatch/internal/registry"
)

var (
	podModel = &registry.Model{
		GroupVersionKind: schema.GroupVersionKind{Version: "v1", Kind: "Pod"},
		Resource:         "pods",
		Namespaced:       true,
	}
	nodeModel = &registry.Model{
		GroupVersionKind: schema.GroupVersionKind{Version: "v1", Kind: "Node"},
		Resource:         "nodes",
	}
)

func identity(t *testing.T, m *registry.Model, d *Descriptor) Identity {
	t.Helper()
	_, id, ok := Normalize(m, d)
	if !ok {
		t.Fatalf("expected an identity for %+v", d)
	}
	return id
}

func TestNormalizeDeterministic(t *testing.T) {
	d := &Descriptor{
		Kind:      "Pod",
		Namespace: "default",
		Selector: &metav1.LabelSelector{
			MatchLabels: map[string]string{"b": "2", "a": "1", "c": "3"},
		},
		IsList: true,
	}
	first := identity(t, podModel, d)
	for i := 0; i < 20; i++ {
		copied := &Descriptor{
			Kind:      "Pod",
			Namespace: "default",
			Selector: &metav1.LabelSelector{
				MatchLabels: map[string]string{"c": "3", "a": "1", "b": "2"},
			},
			IsList: true,
		}
		if got := identity(t, podModel, copied); got != first {
			t.Fatalf("identity changed: %q != %q", got, first)
		}
	}
	if want := Identity(`core~v1~Pod---list---{"ns":"default","selector":"a=1,b=2,c=3"}`); first != want {
		t.Fatalf("unexpected identity %q, want %q", first, want)
	}
}

func TestNormalizeNoCollisions(t *testing.T) {
	base := Descriptor{Kind: "Pod", Namespace: "default", IsList: true}
	variants := map[string]*Descriptor{"base": &base}

	d := base
	d.Namespace = "kube-system"
	variants["namespace"] = &d

	d2 := base
	d2.Name = "pod-a"
	variants["name"] = &d2

	d3 := base
	d3.Selector = &metav1.LabelSelector{MatchLabels: map[string]string{"app": "web"}}
	variants["selector"] = &d3

	d4 := base
	d4.FieldSelector = "status.phase=Running"
	variants["fieldSelector"] = &d4

	d5 := base
	d5.Limit = 10
	variants["limit"] = &d5

	d6 := base
	d6.IsList = false
	variants["isList"] = &d6

	seen := map[Identity]string{}
	for name, v := range variants {
		id := identity(t, podModel, v)
		if other, ok := seen[id]; ok {
			t.Fatalf("variants %q and %q collide on %q", name, other, id)
		}
		seen[id] = name
	}

	// cluster-scoped kinds still distinguish the requested namespace
	a := identity(t, nodeModel, &Descriptor{Kind: "Node", Namespace: "a", IsList: true})
	b := identity(t, nodeModel, &Descriptor{Kind: "Node", Namespace: "b", IsList: true})
	none := identity(t, nodeModel, &Descriptor{Kind: "Node", IsList: true})
	if a == b || a == none || b == none {
		t.Fatalf("cluster-scoped identities collide: %q %q %q", a, b, none)
	}
}

func TestNormalizeAbsent(t *testing.T) {
	if _, _, ok := Normalize(podModel, nil); ok {
		t.Fatalf("expected no identity for a nil descriptor")
	}
	if _, _, ok := Normalize(nil, &Descriptor{Kind: "Pod"}); ok {
		t.Fatalf("expected no identity without a model")
	}
}

func TestNormalizeCanonicalQuery(t *testing.T) {
	q, _, _ := Normalize(podModel, &Descriptor{
		Kind:          "Pod",
		Namespace:     "default",
		FieldSelector: " status.phase==Running,spec.nodeName=node-1 ",
		Limit:         -1,
		IsList:        true,
	})
	if q.FieldSelector != "spec.nodeName=node-1,status.phase=Running" {
		t.Fatalf("unexpected field selector %q", q.FieldSelector)
	}
	if q.Limit != 0 {
		t.Fatalf("expected non-positive limit to be dropped, got %d", q.Limit)
	}

	q, _, _ = Normalize(nodeModel, &Descriptor{Kind: "Node", Namespace: "default", Name: "node-1"})
	if q.Namespace != "default" {
		t.Fatalf("expected namespace to be kept for cluster-scoped kinds, got %q", q.Namespace)
	}
}

func TestNormalizeNamespaces(t *testing.T) {
	i1 := identity(t, podModel, &Descriptor{Kind: "Pod", Namespace: "default", IsList: true})
	i2 := identity(t, podModel, &Descriptor{Kind: "Pod", Namespace: "kube-system", IsList: true})
	if i1 == i2 {
		t.Fatalf("expected different identities per namespace")
	}
}

func TestEqual(t *testing.T) {
	a := &Descriptor{Kind: "Pod", Selector: &metav1.LabelSelector{MatchLabels: map[string]string{"a": "1"}}}
	b := &Descriptor{Kind: "Pod", Selector: &metav1.LabelSelector{MatchLabels: map[string]string{"a": "1"}}}
	if !Equal(a, b) {
		t.Fatalf("expected value equality")
	}
	b.Selector.MatchLabels["a"] = "2"
	if Equal(a, b) {
		t.Fatalf("expected descriptors to differ")
	}
	if !Equal(nil, nil) || Equal(a, nil) {
		t.Fatalf("unexpected nil handling")
	}
}

func TestListOptions(t *testing.T) {
	q := Query{Name: "pod-a", FieldSelector: "status.phase=Running", Selector: "app=web"}
	opts := q.ListOptions()
	if opts.FieldSelector != "metadata.name=pod-a,status.phase=Running" {
		t.Fatalf("unexpected field selector %q", opts.FieldSelector)
	}
	if opts.LabelSelector != "app=web" {
		t.Fatalf("unexpected label selector %q", opts.LabelSelector)
	}
}

func TestIdentityIsList(t *testing.T) {
	crd := &registry.Model{
		GroupVersionKind: schema.GroupVersionKind{Group: "a---b.example.com", Version: "v1", Kind: "Widget"},
		Resource:         "widgets",
		Namespaced:       true,
	}
	list := identity(t, crd, &Descriptor{Kind: "Widget", IsList: true})
	object := identity(t, crd, &Descriptor{Kind: "Widget", Name: "list"})
	if !list.IsList() {
		t.Fatalf("expected %q to be a list identity", list)
	}
	if object.IsList() {
		t.Fatalf("expected %q not to be a list identity", object)
	}
}
