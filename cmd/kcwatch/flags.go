package main

import (
	"fmt"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/sttts/kcwatch/internal/descriptor"
)

// watchFlags collects repeated -watch key=Kind[/namespace[/name]] values.
type watchFlags map[string]string

func (w watchFlags) String() string {
	parts := make([]string, 0, len(w))
	for k, v := range w {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (w watchFlags) Set(s string) error {
	key, arg, ok := strings.Cut(s, "=")
	if !ok || key == "" || arg == "" {
		return fmt.Errorf("expected key=Kind[/namespace[/name]], got %q", s)
	}
	if _, dup := w[key]; dup {
		return fmt.Errorf("duplicate watch key %q", key)
	}
	w[key] = arg
	return nil
}

// parseWatch turns Kind[/namespace[/name]] into a descriptor. Without a name
// the descriptor is a list watch.
func parseWatch(arg string) (*descriptor.Descriptor, error) {
	parts := strings.Split(arg, "/")
	if len(parts) > 3 || parts[0] == "" {
		return nil, fmt.Errorf("expected Kind[/namespace[/name]], got %q", arg)
	}
	d := &descriptor.Descriptor{Kind: parts[0], IsList: true}
	if len(parts) > 1 {
		d.Namespace = parts[1]
	}
	if len(parts) > 2 && parts[2] != "" {
		d.Name = parts[2]
		d.IsList = false
	}
	return d, nil
}

type singleFlags struct {
	kind          string
	namespace     string
	name          string
	selector      string
	fieldSelector string
	limit         int64
	list          bool
}

// descriptor builds the single-resource descriptor. A watch without a name
// is always a list.
func (f singleFlags) descriptor() (*descriptor.Descriptor, error) {
	if f.kind == "" {
		return nil, fmt.Errorf("-kind is required")
	}
	d := &descriptor.Descriptor{
		Kind:          f.kind,
		Namespace:     f.namespace,
		Name:          f.name,
		FieldSelector: f.fieldSelector,
		Limit:         f.limit,
		IsList:        f.list || f.name == "",
	}
	if f.selector != "" {
		sel, err := metav1.ParseToLabelSelector(f.selector)
		if err != nil {
			return nil, fmt.Errorf("invalid -selector: %w", err)
		}
		d.Selector = sel
	}
	return d, nil
}
