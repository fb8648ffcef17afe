package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/client-go/rest"
	klog "k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client/config"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	crmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/sttts/kcwatch/internal/cluster"
	"github.com/sttts/kcwatch/internal/descriptor"
	"github.com/sttts/kcwatch/internal/registry"
	"github.com/sttts/kcwatch/internal/store"
	"github.com/sttts/kcwatch/internal/ui"
	"github.com/sttts/kcwatch/internal/watch"
	"github.com/sttts/kcwatch/pkg/appconfig"
	"github.com/sttts/kcwatch/pkg/kubeconfig"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	var (
		single  singleFlags
		watches = watchFlags{}
		plain   = flag.Bool("plain", false, "Print snapshots instead of running the TUI")
		once    = flag.Bool("once", false, "With -plain, exit after the first settled snapshot")
		logFile = flag.String("log-file", "", "Write logs to this file (TUI mode logs nowhere otherwise)")
		kubeCtx = flag.String("context", "", "Kubeconfig context, searched in $KUBECONFIG and ~/.kube")
		listCtx = flag.Bool("contexts", false, "List the discovered kubeconfig contexts and exit")
		metrics = flag.String("metrics-bind-address", "", "Serve store metrics on this address, e.g. :8080")

		showVersion = flag.Bool("version", false, "Show version information")
		help        = flag.Bool("help", false, "Show help information")
	)
	flag.StringVar(&single.kind, "kind", "", "Kind, resource name or short name to watch")
	flag.StringVar(&single.namespace, "namespace", "", "Namespace, empty for all namespaces")
	flag.StringVar(&single.name, "name", "", "Object name, watches a single object")
	flag.StringVar(&single.selector, "selector", "", "Label selector")
	flag.StringVar(&single.fieldSelector, "field-selector", "", "Field selector")
	flag.Int64Var(&single.limit, "limit", 0, "Maximum number of objects kept for a list")
	flag.BoolVar(&single.list, "list", false, "Watch a list even if -name is set")
	flag.Var(watches, "watch", "Repeatable key=Kind[/namespace[/name]] for multi-resource mode")

	zapOpts := zap.Options{}
	zapOpts.BindFlags(flag.CommandLine)
	flag.Parse()

	if *help {
		showHelp()
		return
	}
	if *showVersion {
		showVersionInfo()
		return
	}
	if *listCtx {
		if err := listContexts(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger, closeLog, err := setupLogging(zapOpts, *plain, *logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(logger, *kubeCtx, *metrics, single, watches, *plain, *once); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging points controller-runtime and klog at one zap logger.
func setupLogging(opts zap.Options, plain bool, logFile string) (logr.Logger, func(), error) {
	var w io.Writer = io.Discard
	closeFn := func() {}
	switch {
	case logFile != "":
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return logr.Discard(), closeFn, fmt.Errorf("open log file: %w", err)
		}
		w, closeFn = f, func() { _ = f.Close() }
	case plain:
		w = os.Stderr
	}
	opts.DestWriter = w
	logger := zap.New(zap.UseFlagOptions(&opts))
	ctrl.SetLogger(logger)
	klog.SetLogger(logger)
	return logger, closeFn, nil
}

func run(logger logr.Logger, kubeCtx, metricsAddr string, single singleFlags, watches watchFlags, plain, once bool) error {
	cfg, err := appconfig.Load()
	if err != nil {
		logger.Info("using default config", "error", err.Error())
	}

	restCfg, err := restConfig(kubeCtx)
	if err != nil {
		return err
	}
	cl, err := cluster.New(restCfg,
		cluster.WithRefreshInterval(cfg.Registry.RefreshInterval.Duration),
		cluster.WithResyncPeriod(cfg.Watch.ResyncPeriod.Duration),
		cluster.WithLoadTimeout(cfg.Registry.LoadTimeout.Duration),
	)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	cl.Start(ctx)
	if metricsAddr != "" {
		go serveMetrics(ctx, logger, metricsAddr)
	}

	st := store.New(cl.Source())
	defer st.Close()
	svc := watch.NewService(st, registry.NewGate(cl.Registry()))
	defer svc.Close()

	opts := ui.Options{Theme: cfg.Viewer.Theme}

	if len(watches) > 0 {
		descs := map[string]*descriptor.Descriptor{}
		for key, arg := range watches {
			d, err := parseWatch(arg)
			if err != nil {
				return fmt.Errorf("-watch %s: %w", key, err)
			}
			d.Kind = cl.KindFor(d.Kind)
			descs[key] = d
		}
		if plain {
			return printMany(ctx, svc, descs, once)
		}
		return runTUI(ctx, ui.NewMultiModel(svc, descs, opts))
	}

	d, err := single.descriptor()
	if err != nil {
		return err
	}
	d.Kind = cl.KindFor(d.Kind)
	if plain {
		return printOne(ctx, svc, d, once)
	}
	opts.Title = fmt.Sprintf("%s (%s)", single.kind, restCfg.Host)
	return runTUI(ctx, ui.NewWatchModel(svc, d, opts))
}

// serveMetrics exposes controller-runtime's registry, which the store
// registers its collectors on, until ctx is done.
func serveMetrics(ctx context.Context, logger logr.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(crmetrics.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(err, "metrics server failed", "address", addr)
	}
}

func restConfig(kubeCtx string) (*rest.Config, error) {
	if kubeCtx == "" {
		cfg, err := config.GetConfig()
		if err != nil {
			return nil, fmt.Errorf("load kubeconfig: %w", err)
		}
		return cfg, nil
	}
	m := kubeconfig.NewManager()
	if err := m.DiscoverKubeconfigs(); err != nil {
		return nil, err
	}
	ctx := m.ContextByName(kubeCtx)
	if ctx == nil {
		return nil, fmt.Errorf("context %q not found", kubeCtx)
	}
	return m.RESTConfig(ctx)
}

func listContexts() error {
	m := kubeconfig.NewManager()
	if err := m.DiscoverKubeconfigs(); err != nil {
		return err
	}
	for _, ctx := range m.Contexts() {
		marker := " "
		if ctx.Current {
			marker = "*"
		}
		fmt.Printf("%s %-30s %-40s %s\n", marker, ctx.Name, ctx.Server, ctx.Kubeconfig.Path)
	}
	return nil
}

type closer interface {
	tea.Model
	Close()
}

func runTUI(ctx context.Context, m closer) error {
	defer m.Close()
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run TUI: %w", err)
	}
	return nil
}

func settled(s watch.Snapshot) bool { return s.Loaded || s.LoadError != nil }

func printOne(ctx context.Context, svc *watch.Service, d *descriptor.Descriptor, once bool) error {
	done := make(chan struct{})
	var closed bool
	unsubscribe := svc.Subscribe(d, func(s watch.Snapshot) {
		if closed {
			return
		}
		fmt.Printf("--- %s loaded=%v\n", time.Now().Format(time.RFC3339), s.Loaded)
		fmt.Println(ui.RenderSnapshot(s, d.IsList, 0, "", time.Now()))
		if once && settled(s) {
			closed = true
			close(done)
		}
	})
	defer unsubscribe()
	return wait(ctx, done)
}

func printMany(ctx context.Context, svc *watch.Service, descs map[string]*descriptor.Descriptor, once bool) error {
	done := make(chan struct{})
	var closed bool
	unsubscribe := svc.SubscribeMany(descs, func(snaps map[string]watch.Snapshot) {
		if closed {
			return
		}
		fmt.Printf("--- %s\n", time.Now().Format(time.RFC3339))
		all := true
		for _, key := range slices.Sorted(maps.Keys(snaps)) {
			s := snaps[key]
			all = all && settled(s)
			fmt.Printf("[%s] loaded=%v\n", key, s.Loaded)
			fmt.Println(ui.RenderSnapshot(s, descs[key] != nil && descs[key].IsList, 0, "", time.Now()))
		}
		if once && all {
			closed = true
			close(done)
		}
	})
	defer unsubscribe()
	return wait(ctx, done)
}

func wait(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-ctx.Done():
	case <-done:
	}
	return nil
}

func showHelp() {
	fmt.Println("kcwatch - live views of Kubernetes resources")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  kcwatch -kind pods [-namespace ns] [-name n] [-selector l] [-field-selector f] [-limit n] [-list]")
	fmt.Println("  kcwatch -watch key=Kind[/namespace[/name]] [-watch ...]")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  -kind             Kind, resource or short name (po, deploy, ...)")
	fmt.Println("  -namespace        Namespace, empty for all namespaces")
	fmt.Println("  -name             Watch a single object")
	fmt.Println("  -selector         Label selector")
	fmt.Println("  -field-selector   Field selector")
	fmt.Println("  -limit            Maximum number of objects kept for a list")
	fmt.Println("  -list             Watch a list even if -name is set")
	fmt.Println("  -watch            Multi-resource mode, repeatable")
	fmt.Println("  -plain            Print snapshots instead of the TUI")
	fmt.Println("  -once             With -plain, exit after the first settled snapshot")
	fmt.Println("  -log-file         Write logs to a file")
	fmt.Println("  -kubeconfig       Path to a kubeconfig")
	fmt.Println("  -context          Kubeconfig context from $KUBECONFIG or ~/.kube")
	fmt.Println("  -contexts         List discovered contexts")
	fmt.Println("  -metrics-bind-address  Serve Prometheus metrics, e.g. :8080")
	fmt.Println("  -version          Show version information")
	fmt.Println("  -help             Show this help message")
	fmt.Println()
	fmt.Println("Key Bindings:")
	fmt.Println("  ↑/↓ PgUp/PgDn     Scroll")
	fmt.Println("  t                 Cycle YAML theme")
	fmt.Println("  q, Esc, Ctrl+C    Quit")
}

func showVersionInfo() {
	fmt.Printf("kcwatch version %s\n", version)
	fmt.Printf("Commit: %s\n", commit)
	fmt.Printf("Date: %s\n", date)
}
