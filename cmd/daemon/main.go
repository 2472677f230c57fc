// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command daemon is the patrolcore process entrypoint: it loads
// configuration, opens the durable Store and runtime-projection cache,
// brings up one RobotLink per known robot plus the single CloudLink, wires
// the Router and PatrolSupervisor between them, and serves the internal
// ops/control HTTP surface the UI gateway calls (§2, §6).
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/fleetguard/patrolcore/internal/api"
	"github.com/fleetguard/patrolcore/internal/bus"
	"github.com/fleetguard/patrolcore/internal/config"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/model"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/ports"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/store"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/supervisor"
	"github.com/fleetguard/patrolcore/internal/links/cloudlink"
	"github.com/fleetguard/patrolcore/internal/links/robotlink"
	xglog "github.com/fleetguard/patrolcore/internal/log"
	persistsqlite "github.com/fleetguard/patrolcore/internal/persistence/sqlite"
	"github.com/fleetguard/patrolcore/internal/router"
	"github.com/fleetguard/patrolcore/internal/telemetry"
	"github.com/fleetguard/patrolcore/internal/version"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "verify" {
		os.Exit(runVerify(os.Args[2:]))
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("patrolcore %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	xglog.Configure(xglog.Config{Level: "info", Service: "patrolcore", Version: version.Version})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, logger); err != nil {
		logger.Error().Err(err).Msg("daemon exited with error")
		os.Exit(1)
	}
}

// runVerify implements `patrolcore verify -store <path> [-mode full]`: an
// offline integrity check operators run before trusting a store file that
// survived a crash or was copied off a volume (§3, C1).
func runVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	storePath := fs.String("store", "patrolcore.db", "path to the sqlite store file")
	mode := fs.String("mode", "quick", "quick or full")
	_ = fs.Parse(args)

	problems, err := persistsqlite.VerifyIntegrity(*storePath, *mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "patrolcore verify: %v\n", err)
		return 1
	}
	if len(problems) == 0 {
		fmt.Println("ok")
		return 0
	}
	for _, p := range problems {
		fmt.Fprintln(os.Stderr, p)
	}
	return 1
}

// run wires every component of §2 together and blocks until ctx is
// cancelled (SIGINT/SIGTERM), at which point it shuts down the HTTP server
// and saves the settings overlay before returning; robot and cloud links are
// not disconnected explicitly.
func run(ctx context.Context, configPath string, logger zerolog.Logger) error {
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("daemon: load config: %w", err)
	}
	holder := config.NewHolder(loader, cfg)
	if err := holder.Watch(ctx); err != nil {
		logger.Warn().Err(err).Msg("config hot-reload watcher disabled")
	}

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "patrolcore",
		ServiceVersion: version.Version,
		Environment:    os.Getenv("PATROLCORE_ENV"),
		ExporterType:   cfg.Telemetry.ExporterType,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("daemon: init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := tp.Shutdown(shutdownCtx); serr != nil {
			logger.Warn().Err(serr).Msg("telemetry shutdown did not complete cleanly")
		}
	}()

	st, err := store.OpenStore("sqlite", cfg.StorePath)
	if err != nil {
		return fmt.Errorf("daemon: open store: %w", err)
	}

	proj, err := router.NewBadgerProjectionStore(cfg.ProjectionPath)
	if err != nil {
		return fmt.Errorf("daemon: open projection store: %w", err)
	}
	defer func() {
		if cerr := proj.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("projection store close failed")
		}
	}()

	if overlay, err := config.LoadSettingsOverlay(cfg.SettingsOverlayPath); err != nil {
		logger.Warn().Err(err).Msg("settings overlay load failed, continuing with config defaults")
	} else if len(overlay) > 0 {
		if err := st.SetSettings(ctx, overlay); err != nil {
			logger.Warn().Err(err).Msg("settings overlay apply failed")
		}
	}

	eventBus := bus.NewMemoryBus()

	registry := newLinkRegistry()
	sup := supervisor.New(ctx, st, eventBus, ports.RealClock, proj, registry, holder)
	rt := router.New(st, eventBus, proj, sup, cfg.HighViolationThreshold)

	robots, err := st.ListRobots(ctx)
	if err != nil {
		return fmt.Errorf("daemon: list robots: %w", err)
	}
	// Robots dial their brokers independently: one unreachable robot must
	// never delay every other robot's startup, so fan the dials out and let
	// each failure surface as a log line instead of an aborted boot.
	dialGroup, dialCtx := errgroup.WithContext(ctx)
	for _, r := range robots {
		r := r
		dialGroup.Go(func() error {
			link, rerr := dialRobotLink(r, eventBus)
			if rerr != nil {
				logger.Error().Err(rerr).Str("robot_serial", r.Serial).Msg("skipping robot, cannot build link")
				return nil
			}
			if cerr := link.Connect(dialCtx); cerr != nil {
				logger.Error().Err(cerr).Str("robot_serial", r.Serial).Msg("robot link initial connect failed")
				return nil
			}
			registry.set(r.ID, link)
			rt.AttachRobotLink(ctx, r.ID, link)
			return nil
		})
	}
	_ = dialGroup.Wait()

	cloud, err := dialCloudLink(cfg.CloudBroker, eventBus)
	if err != nil {
		logger.Warn().Err(err).Msg("cloud link unavailable, starting without pipeline connectivity")
	} else if err := cloud.Connect(ctx); err != nil {
		logger.Warn().Err(err).Msg("cloud link initial connect failed")
	} else {
		rt.AttachCloudLink(ctx, cloud)
	}

	srv, err := api.New(st, sup, api.Config{
		RateLimitPerMin: cfg.API.RateLimitPerMin,
		OpenAPIPath:     cfg.API.OpenAPIPath,
	})
	if err != nil {
		return fmt.Errorf("daemon: build api server: %w", err)
	}

	httpSrv := &http.Server{
		Addr:              cfg.API.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.API.ListenAddr).Msg("patrolcore api listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("daemon: api server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("api server shutdown did not complete cleanly")
	}

	if settings, err := st.GetSettings(context.Background()); err == nil {
		if err := config.SaveSettingsOverlay(cfg.SettingsOverlayPath, settings); err != nil {
			logger.Warn().Err(err).Msg("settings overlay persist failed")
		}
	}

	return nil
}

// dialRobotLink opens the redis-protocol session to one robot's local broker
// and wraps it in a RobotLink (C4). The broker connection itself is lazy;
// RobotLink.Connect drives the actual PSUBSCRIBE and reconnect loop.
func dialRobotLink(r model.Robot, b ports.Bus) (*robotlink.RobotLink, error) {
	opts := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", r.BrokerEndpoint, r.Port),
		Password: r.Credentials,
	}
	if r.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: r.BrokerEndpoint}
	}
	client := redis.NewClient(opts)
	return robotlink.New(client, r, b), nil
}

// dialCloudLink opens the session to the shared detection/event bus (C5).
func dialCloudLink(broker config.BrokerConfig, b ports.Bus) (*cloudlink.CloudLink, error) {
	if broker.Endpoint == "" {
		return nil, fmt.Errorf("daemon: cloudBroker not configured")
	}
	opts := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", broker.Endpoint, broker.Port),
		Password: broker.Credentials,
	}
	if broker.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: broker.Endpoint}
	}
	client := redis.NewClient(opts)
	return cloudlink.New(client, cloudlink.Config{}, b), nil
}
