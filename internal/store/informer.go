package store

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/dynamic/dynamicinformer"
	toolscache "k8s.io/client-go/tools/cache"
	crlog "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/sttts/kcwatch/internal/descriptor"
	"github.com/sttts/kcwatch/internal/registry"
)

// InformerSource serves watches with one filtered dynamic informer per
// identity.
type InformerSource struct {
	client dynamic.Interface
	resync time.Duration
	log    logr.Logger
}

// NewInformerSource returns a Source listing and watching through client.
// resync is the informer resync period; zero disables resyncs.
func NewInformerSource(client dynamic.Interface, resync time.Duration) *InformerSource {
	return &InformerSource{client: client, resync: resync, log: crlog.Log.WithName("informer")}
}

// Watch implements Source. It emits Synced once the initial list has been
// delivered to the handler and Failed for every list/watch error the reflector reports.
func (s *InformerSource) Watch(ctx context.Context, model *registry.Model, query descriptor.Query, sink func(Event)) error {
	gvr := model.GroupVersionResource()
	if !model.Watchable() {
		return apierrors.NewMethodNotSupported(gvr.GroupResource(), "watch")
	}

	namespace := query.Namespace
	if !model.Namespaced {
		// cluster-scoped kinds are listed without a namespace
		namespace = metav1.NamespaceAll
	}
	opts := query.ListOptions()
	factory := dynamicinformer.NewFilteredDynamicInformer(s.client, gvr, namespace, s.resync, toolscache.Indexers{}, func(o *metav1.ListOptions) {
		o.LabelSelector = opts.LabelSelector
		o.FieldSelector = opts.FieldSelector
	})
	informer := factory.Informer()

	log := s.log.WithValues("gvr", gvr.String(), "namespace", namespace)
	if err := informer.SetWatchErrorHandler(func(r *toolscache.Reflector, err error) {
		sink(Event{Type: Failed, Err: err})
		toolscache.DefaultWatchErrorHandler(r, err)
	}); err != nil {
		return fmt.Errorf("set watch error handler: %w", err)
	}

	reg, err := informer.AddEventHandler(toolscache.ResourceEventHandlerFuncs{
		AddFunc: func(obj interface{}) {
			if u, ok := obj.(*unstructured.Unstructured); ok {
				sink(Event{Type: Added, Object: u})
			}
		},
		UpdateFunc: func(_, obj interface{}) {
			if u, ok := obj.(*unstructured.Unstructured); ok {
				sink(Event{Type: Modified, Object: u})
			}
		},
		DeleteFunc: func(obj interface{}) {
			if tombstone, ok := obj.(toolscache.DeletedFinalStateUnknown); ok {
				obj = tombstone.Obj
			}
			if u, ok := obj.(*unstructured.Unstructured); ok {
				sink(Event{Type: Deleted, Object: u})
			}
		},
	})
	if err != nil {
		return fmt.Errorf("add event handler: %w", err)
	}

	log.V(1).Info("starting informer")
	go informer.Run(ctx.Done())
	if !toolscache.WaitForCacheSync(ctx.Done(), informer.HasSynced, reg.HasSynced) {
		return ctx.Err()
	}
	sink(Event{Type: Synced})

	<-ctx.Done()
	log.V(1).Info("informer stopped")
	return nil
}
