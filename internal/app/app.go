// Package app wires the resolved configuration into a running node:
// storage engine, transaction log writer, replay, the TCP server, the
// metrics exposition server, and the maintenance scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"golang.org/x/time/rate"

	"kvnode/pkg/config"
	"kvnode/pkg/connio"
	"kvnode/pkg/kvstore"
	"kvnode/pkg/maintenance"
	"kvnode/pkg/metrics"
	"kvnode/pkg/txlog"
)

// App holds every long-lived component built from an EffectiveConfig.
type App struct {
	cfg           config.EffectiveConfig
	log           *slog.Logger
	engine        *kvstore.Engine
	walWriter     *txlog.Writer
	server        *connio.Server
	metricsServer *metrics.Server
	scheduler     *maintenance.Scheduler
}

// MetricsAddr is the fixed listen address for the /metrics and /healthz
// exposition server. It is not part of the CLI surface in spec.md, so it
// is not configurable from the command line.
const MetricsAddr = "127.0.0.1:9911"

// New constructs an App: opens (or creates) the log file, replays it if
// requested, and wires every component together. The returned App has
// not started serving yet; call Run.
func New(cfg config.EffectiveConfig, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	logPath := cfg.StorageBasepath + ".current"

	// engine and walWriter are referenced by the gauge closures below
	// before either is constructed; the closures capture these variables
	// by reference, so they read whatever is assigned by the time
	// prometheus actually scrapes.
	var engine *kvstore.Engine
	var walWriter *txlog.Writer
	queueLenFn := func() float64 {
		if engine == nil {
			return 0
		}
		return float64(len(engine.Queue()))
	}
	logQueueLenFn := func() float64 {
		if walWriter == nil {
			return 0
		}
		return float64(walWriter.Pending())
	}
	reg, promReg := metrics.NewRegistry(queueLenFn, logQueueLenFn)

	walWriter, err := txlog.NewWriter(logPath, cfg.TransactionQueueSize, log, reg)
	if err != nil {
		return nil, fmt.Errorf("app: opening transaction log: %w", err)
	}

	engine = kvstore.New(cfg.StorageQueueSize, walWriter, true, log)

	if cfg.ReadLog {
		policy := txlog.PolicyFail
		if cfg.LogOnCorruption == "skip" {
			policy = txlog.PolicySkip
		}
		rd, err := txlog.OpenReader(logPath, policy, log)
		if err != nil {
			return nil, fmt.Errorf("app: opening log for replay: %w", err)
		}
		applied, err := txlog.Replay(engine, rd, log, reg)
		closeErr := rd.Close()
		if err != nil {
			var corrupt *txlog.ErrCorrupt
			if errors.As(err, &corrupt) {
				return nil, fmt.Errorf("app: fatal log corruption during replay: %w", err)
			}
			if err != io.EOF {
				return nil, fmt.Errorf("app: replay failed: %w", err)
			}
		}
		if closeErr != nil {
			log.Warn("app: closing replay reader", "err", closeErr)
		}
		log.Info("app: replay complete", "applied", applied)
	}

	var limiter *rate.Limiter
	if cfg.StorageQueueSize > 0 {
		limiter = rate.NewLimiter(rate.Limit(10000), 1000)
	}
	server := connio.NewServer(engine, log, limiter, reg)

	metricsServer := metrics.NewServer(MetricsAddr, promReg, log)

	scheduler := maintenance.NewScheduler("", log)

	return &App{
		cfg:           cfg,
		log:           log,
		engine:        engine,
		walWriter:     walWriter,
		server:        server,
		metricsServer: metricsServer,
		scheduler:     scheduler,
	}, nil
}

// Run starts every background task and blocks serving the TCP listener
// until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	go a.walWriter.Run(ctx)
	go a.engine.Run(ctx)
	go a.scheduler.Run(ctx)
	go func() {
		if err := a.metricsServer.Run(ctx); err != nil {
			a.log.Warn("app: metrics server stopped", "err", err)
		}
	}()

	ln, err := net.Listen("tcp", a.cfg.Address)
	if err != nil {
		return fmt.Errorf("app: bind %s: %w", a.cfg.Address, err)
	}
	a.log.Info("app: listening", "addr", ln.Addr().String())

	return a.server.Serve(ctx, ln)
}
