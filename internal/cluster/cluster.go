// Package cluster wires the watch stack to a live API server.
package cluster

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"
	metamapper "k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	crlog "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/sttts/kcwatch/internal/registry"
	"github.com/sttts/kcwatch/internal/store"
)

// Cluster bundles the clients of one API server: a cached discovery client
// feeding the kind registry, a resettable RESTMapper for resource name
// shortcuts, and a dynamic client serving the informers.
type Cluster struct {
	config *rest.Config
	log    logr.Logger

	disco      discovery.CachedDiscoveryInterface
	baseMapper metamapper.ResettableRESTMapper
	mapper     metamapper.RESTMapper
	dyn        dynamic.Interface

	registry *registry.Discovery
	source   *store.InformerSource

	refresh time.Duration
}

// Option configures Cluster.
type Option func(*options)

type options struct {
	refresh     time.Duration
	resync      time.Duration
	loadTimeout time.Duration
}

// WithRefreshInterval sets the discovery/RESTMapper refresh interval (default 30s).
// Zero disables refreshing.
func WithRefreshInterval(d time.Duration) Option { return func(o *options) { o.refresh = d } }

// WithResyncPeriod sets the informer resync period (default none).
func WithResyncPeriod(d time.Duration) Option { return func(o *options) { o.resync = d } }

// WithLoadTimeout bounds how long a discovery load is waited for.
func WithLoadTimeout(d time.Duration) Option { return func(o *options) { o.loadTimeout = d } }

// New creates the clients for cfg. Nothing talks to the server before Start
// or the first watch.
func New(cfg *rest.Config, opts ...Option) (*Cluster, error) {
	o := &options{refresh: 30 * time.Second}
	for _, fn := range opts {
		fn(o)
	}

	dc, err := discovery.NewDiscoveryClientForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("discovery client: %w", err)
	}
	dyn, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("dynamic client: %w", err)
	}

	cached := memory.NewMemCacheClient(dc)
	base := restmapper.NewDeferredDiscoveryRESTMapper(cached)
	reg := registry.NewDiscovery(cached)
	reg.SetLoadTimeout(o.loadTimeout)

	log := crlog.Log.WithName("cluster").WithValues("host", cfg.Host)
	return &Cluster{
		config:     cfg,
		log:        log,
		disco:      cached,
		baseMapper: base,
		mapper: restmapper.NewShortcutExpander(base, cached, func(msg string) {
			log.V(1).Info("shortcut expansion", "warning", msg)
		}),
		dyn:        dyn,
		registry:   reg,
		source:     store.NewInformerSource(dyn, o.resync),
		refresh:    o.refresh,
	}, nil
}

// Start loads the registry in the background and keeps discovery fresh until
// ctx is cancelled.
func (c *Cluster) Start(ctx context.Context) {
	c.log.V(1).Info("starting discovery", "refresh", c.refresh.String())
	go c.registry.Run(ctx, c.refresh)
	if c.refresh > 0 {
		go c.resetLoop(ctx)
	}
}

func (c *Cluster) resetLoop(ctx context.Context) {
	t := time.NewTicker(c.refresh)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.baseMapper.Reset()
		}
	}
}

// Config returns the rest config the cluster was created with.
func (c *Cluster) Config() *rest.Config { return c.config }

// Registry returns the discovery-backed kind registry.
func (c *Cluster) Registry() *registry.Discovery { return c.registry }

// Source returns the informer source for the store.
func (c *Cluster) Source() *store.InformerSource { return c.source }

// Dynamic returns the dynamic client.
func (c *Cluster) Dynamic() dynamic.Interface { return c.dyn }

// RESTMapper exposes the cluster's RESTMapper (with shortcuts).
func (c *Cluster) RESTMapper() metamapper.RESTMapper { return c.mapper }

// KindFor turns user input like "po", "pods" or "deployments.apps" into a
// group~version~Kind reference. Input that already names a Kind, or that the
// mapper does not know, is returned unchanged for the registry to resolve.
func (c *Cluster) KindFor(arg string) string {
	if arg == "" || strings.Contains(arg, "~") {
		return arg
	}
	gr := schema.ParseGroupResource(strings.ToLower(arg))
	gvk, err := c.mapper.KindFor(gr.WithVersion(""))
	if err != nil {
		c.log.V(2).Info("no resource mapping, using input as kind", "input", arg, "error", err.Error())
		return arg
	}
	m := registry.Model{GroupVersionKind: gvk}
	return m.Reference()
}
