package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/nvidiamon/internal/config"
	"codeberg.org/mutker/nvidiamon/internal/errors"
	"codeberg.org/mutker/nvidiamon/internal/gpu"
	"codeberg.org/mutker/nvidiamon/internal/logger"
	"codeberg.org/mutker/nvidiamon/internal/monitor"
	"codeberg.org/mutker/nvidiamon/internal/pid"
	"codeberg.org/mutker/nvidiamon/internal/server"
	"codeberg.org/mutker/nvidiamon/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

type app struct {
	cfg      *config.Config
	provider gpu.Provider
	monitor  *monitor.Monitor
	recorder telemetry.Recorder
	srv      *server.Server
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Init(false, false, logger.IsService())
		logFatal(errors.ErrInitApp, err)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())

	if err := pid.Write(); err != nil {
		logFatal(errors.ErrInitApp, err)
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Error().Err(err).Msg("Failed to remove PID file")
		}
	}()

	a, err := newApp(cfg)
	if err != nil {
		logFatal(errors.ErrInitApp, err)
	}
	defer a.cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleSignals(cancel)

	go func() {
		if err := a.srv.Start(); err != nil {
			logger.Error().Err(err).Msg("HTTP server failed")
			cancel()
		}
	}()

	a.loop(ctx)
}

func newApp(cfg *config.Config) (*app, error) {
	errFactory := errors.New()

	provider, err := gpu.New(cfg.Provider)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitProvider, err)
	}

	mon := monitor.New(monitor.Config{
		HistorySize:    cfg.HistorySize,
		RateWindow:     time.Duration(cfg.RateWindow) * time.Second,
		BurnMarkers:    cfg.BurnMarkers,
		ProcessFilters: cfg.ProcessFilters,
	})

	recorder, err := telemetry.NewService(telemetry.Config{
		DBPath:       cfg.TelemetryDB,
		BatchSize:    telemetry.DefaultConfig().BatchSize,
		BatchTimeout: telemetry.DefaultConfig().BatchTimeout,
		Enabled:      cfg.Telemetry,
	})
	if err != nil {
		closeQuietly(provider.Close, "Provider shutdown failed")
		return nil, err
	}

	srv, err := server.New(server.Config{Listen: cfg.Listen, Debug: cfg.Debug}, mon)
	if err != nil {
		closeQuietly(provider.Close, "Provider shutdown failed")
		closeQuietly(recorder.Close, "Telemetry shutdown failed")
		return nil, errFactory.Wrap(errors.ErrInitServer, err)
	}

	logger.Info().
		Int("interval_ms", cfg.Interval).
		Str("listen", cfg.Listen).
		Str("provider", cfg.Provider).
		Bool("telemetry", cfg.Telemetry).
		Msg("nvidiamon started")

	return &app{
		cfg:      cfg,
		provider: provider,
		monitor:  mon,
		recorder: recorder,
		srv:      srv,
	}, nil
}

func (a *app) loop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(a.cfg.Interval) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.cycle(ctx)
		}
	}
}

// cycle runs one collection pass. Collection failures are folded into
// the report rather than stopping the loop: the next tick retries.
func (a *app) cycle(ctx context.Context) {
	snapshot, err := a.provider.Snapshot(ctx)
	if err != nil {
		a.monitor.Fail(err)
		logger.Debug().Err(err).Msg("Collection cycle failed")
		return
	}

	report := a.monitor.Observe(snapshot, a.provider.Info(ctx))

	if err := a.recorder.Record(ctx, snapshot.Timestamp, report); err != nil {
		logger.Error().Err(err).Msg("Failed to record telemetry")
	}
}

func (a *app) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	if err := a.recorder.Close(); err != nil {
		logger.Error().Err(err).Msg("Telemetry shutdown failed")
	}

	if err := a.provider.Close(); err != nil {
		logger.Error().Err(err).Msg("Provider shutdown failed")
	}

	logger.Info().Msg("Exiting...")
}

func closeQuietly(close func() error, msg string) {
	if err := close(); err != nil {
		logger.Error().Err(err).Msg(msg)
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal")
	cancel()
}

func logFatal(code errors.ErrorCode, err error) {
	logger.FatalWithCode(errors.New().Wrap(code, err)).Send()
}
