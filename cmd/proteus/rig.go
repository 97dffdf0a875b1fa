package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/proteus-gripper/proteus/internal/logger"
	"github.com/proteus-gripper/proteus/pkg/metrics"
	"github.com/proteus-gripper/proteus/pkg/robot"
	"github.com/proteus-gripper/proteus/pkg/servobus"
	"github.com/proteus-gripper/proteus/pkg/sim"
	"github.com/proteus-gripper/proteus/pkg/teleop"
)

// rig is a connected gripper and the session that owns it.
type rig struct {
	cfg      *robot.Config
	closer   io.Closer // hardware driver, nil in simulation
	session  *teleop.Session
	metrics  *metrics.Metrics
	registry *prometheus.Registry
}

func loadConfig() (*robot.Config, error) {
	var (
		cfg *robot.Config
		err error
	)
	switch {
	case opts.Config != "":
		cfg, err = robot.LoadConfigFrom(opts.Config)
	case robot.ConfigExists():
		cfg, err = robot.LoadConfig()
	default:
		def := robot.Default()
		cfg = &def
	}
	if err != nil {
		return nil, err
	}
	if opts.Sim {
		cfg.Driver.Kind = robot.DriverSim
	}
	return cfg, nil
}

func setupLogger(w io.Writer) {
	level, _ := logger.ParseLogLevel(opts.LogLevel)
	logger.SetLogger(logger.New(level, w))
}

func openRig(ctx context.Context, cfg *robot.Config, sessionOpts ...teleop.SessionOption) (*rig, error) {
	r := &rig{cfg: cfg, registry: prometheus.NewRegistry()}
	r.metrics = metrics.New(r.registry)

	var driver robot.Driver
	switch cfg.Driver.Kind {
	case robot.DriverFeetech:
		d, err := servobus.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open servos: %w", err)
		}
		driver, r.closer = d, d
	default:
		driver = sim.ForConfig(cfg)
	}

	sessionOpts = append([]teleop.SessionOption{teleop.WithMetrics(r.metrics)}, sessionOpts...)
	session, err := teleop.NewSession(ctx, robot.NewRegistry(driver), cfg, sessionOpts...)
	if err != nil {
		if r.closer != nil {
			r.closer.Close()
		}
		return nil, err
	}
	r.session = session

	logger.InfoKV(ctx, "gripper connected",
		"driver", cfg.Driver.Kind, "leader", cfg.Leader.ID, "follower", cfg.Follower.ID)
	return r, nil
}

// Close stops every loop, commands both actuators to stop and releases the
// hardware.
func (r *rig) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := r.session.Close(ctx)
	if r.closer != nil {
		err = errors.Join(err, r.closer.Close())
	}
	return err
}

// serveMetrics serves /metrics until ctx is done. It returns at once when no
// address is configured.
func (r *rig) serveMetrics(ctx context.Context) error {
	if opts.MetricsAddr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              opts.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.InfoKV(ctx, "serving metrics", "addr", opts.MetricsAddr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
