package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/singleflight"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"
	crlog "sigs.k8s.io/controller-runtime/pkg/log"
)

// PreferredResourcesLister is the part of a discovery client the registry
// needs. discovery.CachedDiscoveryInterface satisfies it.
type PreferredResourcesLister interface {
	ServerPreferredResources() ([]*metav1.APIResourceList, error)
}

type invalidator interface {
	Invalidate()
}

// Discovery is a Source backed by API discovery. It loads once on Load and,
// when Run is used, reloads periodically to pick up new CRDs.
type Discovery struct {
	listeners

	client      PreferredResourcesLister
	flights     singleflight.Group
	inFlight    atomic.Int32
	loadTimeout time.Duration
	log         logr.Logger

	mu     sync.RWMutex
	models []Model
	loaded bool
}

// NewDiscovery returns an unloaded Discovery source.
func NewDiscovery(client PreferredResourcesLister) *Discovery {
	return &Discovery{client: client, log: crlog.Log.WithName("registry")}
}

// SetLoadTimeout bounds how long Load waits for discovery. A load that
// times out keeps running and publishes its result when it completes.
func (d *Discovery) SetLoadTimeout(timeout time.Duration) {
	d.loadTimeout = timeout
}

// Load fetches the preferred resources. Concurrent calls share one request.
// Partial discovery failures still publish what could be discovered.
func (d *Discovery) Load(ctx context.Context) error {
	if d.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.loadTimeout)
		defer cancel()
	}
	ch := d.flights.DoChan("load", func() (any, error) {
		d.inFlight.Add(1)
		d.fire()
		defer func() {
			d.inFlight.Add(-1)
			d.fire()
		}()

		lists, err := d.client.ServerPreferredResources()
		if err != nil && !discovery.IsGroupDiscoveryFailedError(err) {
			return nil, fmt.Errorf("discover preferred resources: %w", err)
		}
		if err != nil {
			d.log.Info("partial discovery failure", "error", err.Error())
		}

		models := modelsFromLists(lists)
		d.mu.Lock()
		d.models = models
		d.loaded = true
		d.mu.Unlock()
		d.log.V(1).Info("loaded resource models", "count", len(models))
		return nil, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

// Run loads the registry and then refreshes it every interval until ctx is
// cancelled. Load errors are logged and retried on the next tick.
func (d *Discovery) Run(ctx context.Context, interval time.Duration) {
	if err := d.Load(ctx); err != nil {
		d.log.Error(err, "initial discovery failed")
	}
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if inv, ok := d.client.(invalidator); ok {
				inv.Invalidate()
			}
			if err := d.Load(ctx); err != nil {
				d.log.Error(err, "discovery refresh failed")
			}
		}
	}
}

// Resolve implements Source.
func (d *Discovery) Resolve(kind string) (*Model, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return lookup(d.models, kind)
}

// Loaded implements Source.
func (d *Discovery) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded && len(d.models) > 0
}

// InFlight implements Source.
func (d *Discovery) InFlight() bool {
	return d.inFlight.Load() > 0
}

// Models returns a copy of the discovered models.
func (d *Discovery) Models() []Model {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Model(nil), d.models...)
}

// modelsFromLists converts discovery output into models, core group first so
// that plain Kind lookups prefer built-in types.
func modelsFromLists(lists []*metav1.APIResourceList) []Model {
	var models []Model
	for _, list := range lists {
		if list == nil {
			continue
		}
		gv, err := schema.ParseGroupVersion(list.GroupVersion)
		if err != nil {
			continue
		}
		for _, r := range list.APIResources {
			if isSubresource(r.Name) || isNonResourceType(r.Kind) {
				continue
			}
			models = append(models, Model{
				GroupVersionKind: gv.WithKind(r.Kind),
				Resource:         r.Name,
				Namespaced:       r.Namespaced,
				Verbs:            append([]string(nil), r.Verbs...),
			})
		}
	}
	sort.SliceStable(models, func(i, j int) bool {
		gi, gj := models[i].Group, models[j].Group
		if (gi == "") != (gj == "") {
			return gi == ""
		}
		return gi < gj
	})
	return models
}

// isSubresource checks if a resource name indicates a subresource
func isSubresource(name string) bool {
	// Subresources typically contain a slash (e.g., "pods/log", "pods/status")
	return strings.Contains(name, "/")
}

var nonResourceTypes = map[string]bool{
	"Status":                    true,
	"List":                      true,
	"WatchEvent":                true,
	"APIGroup":                  true,
	"APIVersion":                true,
	"APIResourceList":           true,
	"CreateOptions":             true,
	"UpdateOptions":             true,
	"DeleteOptions":             true,
	"PatchOptions":              true,
	"GetOptions":                true,
	"Table":                     true,
	"PartialObjectMetadata":     true,
	"PartialObjectMetadataList": true,
}

// isNonResourceType checks if a kind represents a non-resource type
func isNonResourceType(kind string) bool {
	return nonResourceTypes[kind]
}
