// Package store is the reference-counted subscription backend behind the
// watch binders. It starts one backend watch per identity, keeps the watch's
// state as persistent cache nodes, and stops the watch when the last binder
// lets go of the identity.
package store

import (
	"context"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/sttts/kcwatch/internal/descriptor"
	"github.com/sttts/kcwatch/internal/registry"
)

// EventType is a minimal event indicator for list/watch updates.
type EventType string

const (
	Added    EventType = "Added"
	Modified EventType = "Modified"
	Deleted  EventType = "Deleted"
	Synced   EventType = "Synced" // initial list complete
	Failed   EventType = "Failed" // backend error, passed through as load error
)

// Event conveys an object change, or a state change of the watch itself.
type Event struct {
	Type   EventType
	Object *unstructured.Unstructured
	Err    error
}

// Source runs the actual list/watch for one identity.
type Source interface {
	// Watch delivers events for model and query to sink until ctx is
	// cancelled. An error returned before ctx is done is reported to
	// consumers as a load error.
	Watch(ctx context.Context, model *registry.Model, query descriptor.Query, sink func(Event)) error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, model *registry.Model, query descriptor.Query, sink func(Event)) error

// Watch implements Source.
func (f SourceFunc) Watch(ctx context.Context, model *registry.Model, query descriptor.Query, sink func(Event)) error {
	return f(ctx, model, query, sink)
}
