// Package app is the startup shared by the kanaime binaries: configuration,
// logging, telemetry and signal handling.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kanaime/internal/config"
	"kanaime/internal/health"
	"kanaime/internal/ime"
	"kanaime/internal/ipc"
	"kanaime/internal/logging"
	"kanaime/internal/metrics"
	"kanaime/internal/tracing"
)

// Version is set at build time with
// -ldflags "-X kanaime/internal/app.Version=...".
var Version = "dev"

// Runtime is what every process sets up before doing its work.
type Runtime struct {
	Component string
	Config    *config.Config
	Loader    *config.Loader
	Logger    *logging.Logger
	Metrics   *metrics.Metrics
	Recoverer *logging.Recoverer

	// Health is served at /healthz and /readyz next to /metrics.
	Health *health.Checker

	shutdown func(context.Context) error
}

// Start loads the configuration at path (ConfigPath when empty), installs
// the process logger and the telemetry providers.
func Start(ctx context.Context, component, path string) (*Runtime, error) {
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	lcfg, err := cfg.LoggingConfig(component)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(lcfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	logging.SetDefault(logger)

	loader := config.NewLoader(path, logger.WithComponent("config").Logger)
	if _, err := loader.Load(); err != nil {
		logger.Close()
		return nil, err
	}

	shutdown, err := tracing.InitProvider(ctx, tracing.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName + "-" + component,
		ServiceVersion: Version,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	logger.Info("starting", "version", Version, "config", path)
	return &Runtime{
		Component: component,
		Config:    cfg,
		Loader:    loader,
		Logger:    logger,
		Metrics:   metrics.Default(),
		Recoverer: logging.NewRecoverer(component, Version, logger.Logger),
		Health:    health.NewChecker(0),
		shutdown:  shutdown,
	}, nil
}

// ServeMetrics serves /metrics and the health endpoints on addr until ctx
// is done. An empty addr serves nothing and just waits.
func (r *Runtime) ServeMetrics(ctx context.Context, addr string) error {
	if addr == "" {
		<-ctx.Done()
		return nil
	}
	r.Logger.Info("serving metrics", "addr", addr)
	return tracing.ServeMetrics(ctx, addr, r.Health.Mount)
}

// Dial connects to the engine and window servers, waiting for them to
// start listening until ctx is done.
func (r *Runtime) Dial(ctx context.Context) (*ipc.EngineClient, *ipc.WindowClient, error) {
	ipcLog := r.Logger.WithComponent("ipc").Logger
	eng, err := ipc.DialEngine(ctx, ipc.ClientConfig{
		Endpoint:     r.Config.Engine.Endpoint,
		Service:      "engine",
		DialInterval: r.Config.Engine.DialInterval(),
		Logger:       ipcLog,
		Metrics:      r.Metrics,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to engine: %w", err)
	}
	win, err := ipc.DialWindow(ctx, ipc.ClientConfig{
		Endpoint:     r.Config.Window.Endpoint,
		Service:      "window",
		DialInterval: r.Config.Window.DialInterval(),
		Logger:       ipcLog,
		Metrics:      r.Metrics,
	})
	if err != nil {
		eng.Close()
		return nil, nil, fmt.Errorf("connect to window: %w", err)
	}
	return eng, win, nil
}

// Modes returns the process input mode context, restored from the state
// directory or starting in the configured default mode.
func (r *Runtime) Modes() *ime.ModeContext {
	mode, err := ime.ParseInputMode(r.Config.IME.DefaultMode)
	if err != nil {
		mode = ime.ModeLatin
	}
	store, err := ime.NewFileModeStore(r.Config.IME.StateDir)
	if err != nil {
		r.Logger.Warn("input mode will not be persisted", "error", err)
		return ime.NewModeContext(mode, nil)
	}
	return ime.NewModeContext(mode, store)
}

// Close flushes telemetry and closes the loader and the log file.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if r.shutdown != nil {
		errs = append(errs, r.shutdown(ctx))
	}
	errs = append(errs, r.Loader.Close())
	r.Logger.Info("stopped")
	errs = append(errs, r.Logger.Close())
	return errors.Join(errs...)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Fatal prints err and exits with status 1.
func Fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
