// Package appconfig loads and saves the user configuration in
// ~/.kcwatch/config.yaml.
package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	yaml "sigs.k8s.io/yaml"
)

const defaultTheme = "dracula"

type ViewerConfig struct {
	Theme string `json:"theme"`
}

type WatchConfig struct {
	// ResyncPeriod is the informer resync period, zero disables resyncs.
	ResyncPeriod metav1.Duration `json:"resyncPeriod"`
}

type RegistryConfig struct {
	// RefreshInterval is how often discovery is refreshed, zero disables it.
	RefreshInterval metav1.Duration `json:"refreshInterval"`
	// LoadTimeout bounds how long a discovery load is waited for.
	LoadTimeout metav1.Duration `json:"loadTimeout"`
}

type Config struct {
	Viewer   ViewerConfig   `json:"viewer"`
	Watch    WatchConfig    `json:"watch"`
	Registry RegistryConfig `json:"registry"`
}

func Default() *Config {
	return &Config{
		Viewer:   ViewerConfig{Theme: defaultTheme},
		Watch:    WatchConfig{ResyncPeriod: metav1.Duration{Duration: 0}},
		Registry: RegistryConfig{RefreshInterval: metav1.Duration{Duration: 30 * time.Second}, LoadTimeout: metav1.Duration{Duration: 10 * time.Second}},
	}
}

// Path returns the config file location. KCWATCH_CONFIG overrides it.
func Path() (string, error) {
	if p := os.Getenv("KCWATCH_CONFIG"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".kcwatch", "config.yaml"), nil
}

// Load reads the config file if present, otherwise returns defaults.
func Load() (*Config, error) {
	p, err := Path()
	if err != nil {
		return Default(), err
	}
	return LoadFile(p)
}

// LoadFile reads the config at p. Missing files and missing keys yield
// defaults. Keys are matched case-insensitively if the strict parse fails.
func LoadFile(p string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	// First try strict unmarshal (lower-case tags)
	if err := yaml.Unmarshal(data, cfg); err == nil {
		cfg.Viewer.Theme = strings.ToLower(cfg.Viewer.Theme)
		applyDefaults(cfg)
		return cfg, nil
	}

	// Fallback: tolerate legacy/mixed-case keys by normalizing
	cfg = Default()
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", p, err)
	}
	if s, ok := lookup(raw, "viewer", "theme").(string); ok && s != "" {
		cfg.Viewer.Theme = strings.ToLower(s)
	}
	setDuration(&cfg.Watch.ResyncPeriod, lookup(raw, "watch", "resyncPeriod"))
	setDuration(&cfg.Registry.RefreshInterval, lookup(raw, "registry", "refreshInterval"))
	setDuration(&cfg.Registry.LoadTimeout, lookup(raw, "registry", "loadTimeout"))
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Viewer.Theme == "" {
		cfg.Viewer.Theme = def.Viewer.Theme
	}
	if cfg.Registry.LoadTimeout.Duration <= 0 {
		cfg.Registry.LoadTimeout = def.Registry.LoadTimeout
	}
	if cfg.Registry.RefreshInterval.Duration < 0 {
		cfg.Registry.RefreshInterval = def.Registry.RefreshInterval
	}
	if cfg.Watch.ResyncPeriod.Duration < 0 {
		cfg.Watch.ResyncPeriod.Duration = 0
	}
}

// lookup walks nested maps matching keys case-insensitively.
func lookup(m map[string]any, keys ...string) any {
	var cur any = m
	for _, key := range keys {
		cm, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = nil
		for k, v := range cm {
			if strings.EqualFold(k, key) {
				cur = v
				break
			}
		}
	}
	return cur
}

// setDuration accepts Go duration strings and plain numbers of seconds.
func setDuration(d *metav1.Duration, v any) {
	switch t := v.(type) {
	case string:
		if parsed, err := time.ParseDuration(t); err == nil {
			d.Duration = parsed
		}
	case float64:
		d.Duration = time.Duration(t * float64(time.Second))
	case int64:
		d.Duration = time.Duration(t) * time.Second
	}
}

// Save writes the config to Path, creating the directory if needed.
func Save(cfg *Config) error {
	p, err := Path()
	if err != nil {
		return err
	}
	return SaveFile(p, cfg)
}

// SaveFile writes the config to p.
func SaveFile(p string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	// Enforce lower-case style names for consistency
	out := *cfg
	out.Viewer.Theme = strings.ToLower(out.Viewer.Theme)
	data, err := yaml.Marshal(&out)
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}
