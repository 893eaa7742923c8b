// Command greengage_exporter scrapes a Greengage/Postgres coordinator and exposes Prometheus
// metrics describing cluster, segment, and per-database health.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/GreengageDB/greengage-exporter/internal/collector"
	"github.com/GreengageDB/greengage-exporter/internal/config"
	"github.com/GreengageDB/greengage-exporter/internal/datasource"
	"github.com/GreengageDB/greengage-exporter/internal/httpserver"
	"github.com/GreengageDB/greengage-exporter/internal/log"
	"github.com/GreengageDB/greengage-exporter/internal/orchestrator"
	"github.com/GreengageDB/greengage-exporter/internal/registry"
	"github.com/GreengageDB/greengage-exporter/internal/store"
	"github.com/GreengageDB/greengage-exporter/internal/version"
)

var (
	gitCommit, gitBranch string
)

func main() {
	var (
		showVersion = kingpin.Flag("version", "show version and exit").Default().Bool()
		logLevel    = kingpin.Flag("log-level", "set log level: debug, info, warn, error").Default("").Envar("LOG_LEVEL").String()
		configFile  = kingpin.Flag("config-file", "path to config file").Default("/etc/greengage_exporter.yml").Envar("CONFIG_FILE").String()
	)
	kingpin.Parse()
	log.SetLevel(*logLevel)

	if *showVersion {
		fmt.Printf("greengage_exporter %s-%s\n", gitCommit, gitBranch)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Errorf("cannot start: %s", err)
		os.Exit(1)
	}
	if *logLevel == "" {
		log.SetLevel(cfg.LogLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())

	doExit := make(chan error, 2)
	go func() {
		doExit <- listenSignals()
		cancel()
	}()

	go func() {
		doExit <- run(ctx, cfg)
		cancel()
	}()

	log.Warnf("shutdown: %s", <-doExit)
}

func run(ctx context.Context, cfg *config.Config) error {
	base, err := store.Open(ctx, cfg.Datasource.DSN, store.PoolOptions{
		MaxConns:           cfg.Datasource.PoolMaxConns,
		MinConns:           cfg.Datasource.PoolMinConns,
		InitConns:          cfg.Datasource.PoolInitConns,
		MaxConnLifetime:    cfg.Datasource.MaxConnLifetime,
		AcquisitionTimeout: cfg.Datasource.AcquisitionTimeout,
	})
	if err != nil {
		return fmt.Errorf("open coordinator connection: %w", err)
	}
	defer base.Close()

	factory, err := datasource.NewFactory(cfg.Datasource.DSN, cfg.Datasource.MaxConnLifetime)
	if err != nil {
		return fmt.Errorf("build datasource factory: %w", err)
	}

	mode, err := datasource.ParseMode(cfg.PerDB.Mode)
	if err != nil {
		return err
	}
	provider := datasource.NewProvider(factory, mode, cfg.PerDB.DBList, *cfg.PerDB.CachePools)
	defer provider.CloseCached()

	prober := version.NewProber(version.Config{
		Attempts: cfg.Orchestrator.VersionProbeAttempts,
		Delay:    cfg.Orchestrator.VersionProbeDelay,
		Timeout:  cfg.Orchestrator.VersionProbeTimeout,
	})

	reg := registry.New()

	collectors, err := collector.NewCatalogue().Build(reg, cfg.CollectorSettings())
	if err != nil {
		return fmt.Errorf("build collector catalogue: %w", err)
	}

	orch, err := orchestrator.New(base, provider, prober, reg, collectors, orchestrator.Config{
		ScrapeCacheMaxAge:         cfg.Orchestrator.ScrapeCacheMaxAge,
		CollectorFailureThreshold: cfg.Orchestrator.CollectorFailureThreshold,
		CircuitBreakerEnabled:     cfg.Orchestrator.CircuitBreakerEnabled == nil || *cfg.Orchestrator.CircuitBreakerEnabled,
		ConnectionRetryAttempts:   cfg.Orchestrator.ConnectionRetryAttempts,
		ConnectionRetryDelay:      cfg.Orchestrator.ConnectionRetryDelay,
	})
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}

	scheduler := orchestrator.NewScheduler(orch, cfg.Scrape.Interval)
	go scheduler.Run(ctx)

	srv := httpserver.NewServer(httpserver.Config{Addr: cfg.HTTP.ListenAddress}, reg.Prometheus())

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	select {
	case <-ctx.Done():
		return srv.Shutdown()
	case err := <-serveErr:
		return err
	}
}

func listenSignals() error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	return fmt.Errorf("got %s", <-c)
}
