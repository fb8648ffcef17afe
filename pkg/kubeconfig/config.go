// Package kubeconfig discovers kubeconfig files and their contexts so a
// context can be picked by name regardless of which file defines it.
package kubeconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/clientcmd/api"
)

// Kubeconfig represents a kubeconfig file
type Kubeconfig struct {
	Path   string
	Config *api.Config
}

// Context represents a Kubernetes context
type Context struct {
	Name       string
	Cluster    string
	Server     string
	Namespace  string
	User       string
	Current    bool
	Kubeconfig *Kubeconfig
}

// Manager handles kubeconfig discovery
type Manager struct {
	kubeconfigs []*Kubeconfig
	contexts    []*Context
}

// NewManager creates a new kubeconfig manager
func NewManager() *Manager {
	return &Manager{}
}

// DiscoverKubeconfigs loads the files named in $KUBECONFIG and every
// kubeconfig below ~/.kube.
func (m *Manager) DiscoverKubeconfigs() error {
	for _, p := range filepath.SplitList(os.Getenv(clientcmd.RecommendedConfigPathEnvVar)) {
		if p != "" {
			m.add(p)
		}
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	return m.DiscoverDir(filepath.Join(homeDir, ".kube"))
}

// DiscoverDir loads every kubeconfig below dir. Files that do not parse as
// kubeconfig are skipped, a missing dir is not an error.
func (m *Manager) DiscoverDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		// Skip hidden directories like the discovery cache
		if info.IsDir() {
			if path != dir && (strings.HasPrefix(info.Name(), ".") || info.Name() == "cache") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") {
			return nil
		}
		m.add(path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk kube directory: %w", err)
	}
	return nil
}

func (m *Manager) add(path string) {
	for _, kc := range m.kubeconfigs {
		if kc.Path == path {
			return
		}
	}
	config, err := clientcmd.LoadFromFile(path)
	if err != nil || len(config.Contexts) == 0 {
		// Not a kubeconfig
		return
	}
	kc := &Kubeconfig{Path: path, Config: config}
	m.kubeconfigs = append(m.kubeconfigs, kc)
	for name, c := range config.Contexts {
		ctx := &Context{
			Name:       name,
			Cluster:    c.Cluster,
			Namespace:  c.Namespace,
			User:       c.AuthInfo,
			Current:    name == config.CurrentContext,
			Kubeconfig: kc,
		}
		if cl, ok := config.Clusters[c.Cluster]; ok {
			ctx.Server = cl.Server
		}
		m.contexts = append(m.contexts, ctx)
	}
}

// Kubeconfigs returns all discovered kubeconfigs in discovery order.
func (m *Manager) Kubeconfigs() []*Kubeconfig {
	return m.kubeconfigs
}

// Contexts returns all discovered contexts sorted by name, then file.
func (m *Manager) Contexts() []*Context {
	out := append([]*Context(nil), m.contexts...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Kubeconfig.Path < out[j].Kubeconfig.Path
	})
	return out
}

// ContextByName returns the first context with the given name, in discovery
// order, or nil.
func (m *Manager) ContextByName(name string) *Context {
	for _, ctx := range m.contexts {
		if ctx.Name == name {
			return ctx
		}
	}
	return nil
}

// RESTConfig creates a REST config for a context
func (m *Manager) RESTConfig(ctx *Context) (*rest.Config, error) {
	config, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		&clientcmd.ClientConfigLoadingRules{ExplicitPath: ctx.Kubeconfig.Path},
		&clientcmd.ConfigOverrides{CurrentContext: ctx.Name},
	).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create client config for context %q: %w", ctx.Name, err)
	}
	return config, nil
}
