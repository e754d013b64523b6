// Package main implements the entry point for the devstream collector.
// The collector polls a device's management API on an interval, receives
// pushed events over TCP listeners, and forwards both to the configured
// output sinks.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/devstream/collect"
	"github.com/c360/devstream/config"
	"github.com/c360/devstream/dispatch"
	"github.com/c360/devstream/health"
	"github.com/c360/devstream/ingest"
	"github.com/c360/devstream/metric"
	"github.com/c360/devstream/natsclient"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "devstream"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Collector failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid", "path", cliCfg.ConfigPath)
		return nil
	}

	slog.Info("Starting devstream collector",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"device", cfg.Device.Host,
		"listeners", len(cfg.Listeners))

	ctx := context.Background()
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	// Metrics and health endpoint
	monitor := health.NewMonitor()
	var registry *metric.Registry
	var core *metric.CoreMetrics
	if cfg.Metrics.Enable {
		registry = metric.NewRegistry()
		core = registry.Core
		metricsServer := metric.NewServer(cfg.Metrics.Port, "/metrics", registry)
		metricsServer.Mount("/healthz", health.Handler(monitor, appName))
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() { _ = metricsServer.Stop(5 * time.Second) }()
	}

	// NATS (optional)
	natsClient, err := connectNATS(signalCtx, cfg, logger)
	if err != nil {
		return err
	}
	if natsClient != nil {
		defer func() { _ = natsClient.Close(ctx) }()
	}

	// Configuration manager distributes runtime updates
	cfgManager, err := config.NewManager(cfg, natsClient, logger)
	if err != nil {
		return fmt.Errorf("create config manager: %w", err)
	}
	if err := cfgManager.Start(signalCtx); err != nil {
		return fmt.Errorf("start config manager: %w", err)
	}
	defer func() { _ = cfgManager.Stop(5 * time.Second) }()

	// Dispatch pipeline
	dispatcher, err := buildDispatcher(cfg, natsClient, logger, core)
	if err != nil {
		return err
	}
	if err := dispatcher.Start(signalCtx); err != nil {
		return fmt.Errorf("start dispatcher: %w", err)
	}
	defer func() { _ = dispatcher.Stop(cliCfg.ShutdownTimeout) }()

	// Event listeners
	listenerManager := ingest.NewManager(ingest.ManagerDeps{
		Processor:       dispatcher,
		MetricsRegistry: registry,
		Health:          monitor,
		Logger:          logger,
	})
	go listenerManager.Run(signalCtx)

	// Collection cycles
	runner := collect.NewRunner(collect.Deps{
		Processor: dispatcher,
		Logger:    logger,
		Core:      core,
		Health:    monitor,
	})
	if err := runner.Start(signalCtx); err != nil {
		return fmt.Errorf("start collection runner: %w", err)
	}
	defer func() { _ = runner.Stop(cliCfg.ShutdownTimeout) }()

	// Converge on the initial configuration and follow updates
	go func() {
		for update := range cfgManager.OnChange() {
			applyConfig(signalCtx, update.Config, runner, listenerManager)
		}
	}()

	slog.Info("Collector started")
	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	return nil
}

// connectNATS builds and connects the NATS client when configured
func connectNATS(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*natsclient.Client, error) {
	url := cfg.NATS.URL
	if envURL := os.Getenv("DEVSTREAM_NATS_URL"); envURL != "" {
		url = envURL
	}
	if url == "" {
		slog.Info("No NATS URL configured, running without a broker")
		return nil, nil
	}

	client, err := natsclient.NewClient(url,
		natsclient.WithClientName(cfg.NATS.Name),
		natsclient.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return client, nil
}

// buildDispatcher wires the configured output sinks
func buildDispatcher(
	cfg *config.Config,
	natsClient *natsclient.Client,
	logger *slog.Logger,
	core *metric.CoreMetrics,
) (*dispatch.Dispatcher, error) {
	var sinks []dispatch.Sink

	if cfg.Dispatch.NATS {
		if natsClient == nil {
			return nil, fmt.Errorf("nats sink configured without a NATS connection")
		}
		sinks = append(sinks, dispatch.NewNATSSink(natsClient))
	}
	if cfg.Dispatch.HTTP != nil {
		httpSink, err := dispatch.NewHTTPSink(*cfg.Dispatch.HTTP)
		if err != nil {
			return nil, fmt.Errorf("create http sink: %w", err)
		}
		sinks = append(sinks, httpSink)
	}
	if len(sinks) == 0 {
		slog.Warn("No output sinks configured, collected data will be dropped")
	}

	return dispatch.New(dispatch.Config{QueueSize: cfg.Dispatch.QueueSize}, dispatch.Deps{
		Sinks:  sinks,
		Logger: logger,
		Core:   core,
	}), nil
}

// applyConfig pushes one configuration version into the running components
func applyConfig(ctx context.Context, cfg *config.Config, runner *collect.Runner, listeners *ingest.Manager) {
	runner.Update(
		cfg.Device.Target(),
		cfg.Poll.Endpoints,
		cfg.Poll.Schema(),
		time.Duration(cfg.Poll.IntervalSeconds)*time.Second,
	)
	listeners.Apply(ctx, cfg.ListenerSpecs())
}
