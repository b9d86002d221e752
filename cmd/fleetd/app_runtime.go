package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hprobot/fleetd/internal/api"
	"github.com/hprobot/fleetd/internal/buildinfo"
	"github.com/hprobot/fleetd/internal/bus"
	"github.com/hprobot/fleetd/internal/config"
	"github.com/hprobot/fleetd/internal/conntrack"
	"github.com/hprobot/fleetd/internal/device"
	"github.com/hprobot/fleetd/internal/grid"
	"github.com/hprobot/fleetd/internal/logging"
	"github.com/hprobot/fleetd/internal/operator"
	"github.com/hprobot/fleetd/internal/robot"
	"github.com/hprobot/fleetd/internal/scheduler"
	"github.com/hprobot/fleetd/internal/store"
	"github.com/hprobot/fleetd/internal/workqueue"
)

// fleetApp owns every long-lived component. Shutdown runs in reverse
// construction order so nothing publishes into a closed dependency.
type fleetApp struct {
	log zerolog.Logger

	st      store.Store
	repo    *grid.Repo
	queue   *workqueue.Pool
	busCli  *bus.Client
	tracker *conntrack.Tracker
	reset   *scheduler.DailyReset
	apiSrv  *api.Server

	detachOperator func()
}

func run() error {
	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		return err
	}

	log := logging.New(logging.Config{
		Level:  envCfg.LogLevel,
		Format: logging.Format(envCfg.LogFormat),
	})
	log.Info().
		Str("version", buildinfo.Version).
		Str("commit", buildinfo.GitCommit).
		Msg("fleetd starting")

	maps, err := config.LoadMaps(envCfg.MapsFile, envCfg.MapPrefix)
	if err != nil {
		return err
	}

	app, err := newFleetApp(envCfg, maps, log)
	if err != nil {
		return err
	}

	serverErrCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", envCfg.APIPort).Msg("admin API listening")
		if err := app.apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	runtimeErr := waitForShutdown(log, serverErrCh)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	app.shutdown(ctx)

	if runtimeErr != nil {
		return fmt.Errorf("runtime server error: %w", runtimeErr)
	}
	return nil
}

func newFleetApp(envCfg *config.EnvConfig, maps []config.MapDef, log zerolog.Logger) (*fleetApp, error) {
	app := &fleetApp{log: log}

	app.st = openStore(envCfg, log)

	app.repo = grid.NewRepo(app.st, log)
	seedMaps(app.repo, maps, log)

	chargingNode := chargingNodeResolver(maps)

	stats := robot.NewDailyStats(robot.DailyStatsConfig{
		Store:     app.st,
		BucketTTL: envCfg.DailyStatsTTL,
		Logger:    log,
	})
	robots := robot.NewService(robot.ServiceConfig{
		Store:              app.st,
		Stats:              stats,
		ChargingNode:       chargingNode,
		NodeCountGlitchMax: envCfg.NodeCountGlitchMax,
		ArriveTTL:          envCfg.ArriveTTL,
		Logger:             log,
	})

	app.queue = workqueue.New(envCfg.QueueCapacity, log)

	busCli, err := bus.Connect(bus.Config{
		Broker:         envCfg.MQTTBroker,
		ClientID:       envCfg.MQTTClientID,
		Username:       envCfg.MQTTUsername,
		Password:       envCfg.MQTTPassword,
		PublishTimeout: envCfg.PublishTimeout,
		Logger:         log,
	})
	if err != nil {
		app.shutdownPartial()
		return nil, fmt.Errorf("bus connect: %w", err)
	}
	app.busCli = busCli

	deviceHandler := device.New(device.Config{
		Robots:         robots,
		Grid:           app.repo,
		Store:          app.st,
		Pub:            busCli,
		Queue:          app.queue,
		MapPrefix:      envCfg.MapPrefix,
		ChargingNode:   chargingNode,
		BatteryMaxVolt: envCfg.BatteryMaxVolt,
		BatteryMinVolt: envCfg.BatteryMinVolt,
		Logger:         log,
	})
	if !busCli.Subscribe(device.TopicFilter, deviceHandler.Handle) {
		log.Error().Str("filter", device.TopicFilter).Msg("device topic subscription failed")
	}

	app.tracker = conntrack.New(conntrack.Config{
		Store:       app.st,
		Retention:   envCfg.ConnectionRetention,
		SweepPeriod: envCfg.ConnectionSweepPeriod,
		Logger:      log,
	})
	if !busCli.Subscribe(conntrack.TopicFilter, app.tracker.Handle) {
		log.Error().Str("filter", conntrack.TopicFilter).Msg("client event subscription failed")
	}
	app.tracker.StartSweeper()

	operatorHandler := operator.New(operator.Config{
		Robots:       robots,
		Grid:         app.repo,
		Pub:          busCli,
		Queue:        app.queue,
		MapPrefix:    envCfg.MapPrefix,
		ChargingNode: chargingNode,
		Logger:       log,
	})
	detach, ok := operatorHandler.Attach(context.Background(), app.st, envCfg.LegacyCommandChannel)
	if !ok {
		log.Error().Msg("operator channel subscription failed")
	} else {
		app.detachOperator = detach
	}

	app.reset = scheduler.NewDailyReset(scheduler.DailyResetConfig{
		Store:    app.st,
		Stats:    stats,
		Schedule: envCfg.DailyResetSchedule,
		Logger:   log,
	})
	app.reset.Start()

	app.apiSrv = api.NewServer(api.ServerConfig{
		ListenAddress: envCfg.ListenAddress,
		Port:          envCfg.APIPort,
		AdminToken:    envCfg.AdminToken,
		MaxBodyBytes:  1 << 20,
		Maps:          maps,
		Robots:        robots,
		Stats:         stats,
		Grid:          app.repo,
		Store:         app.st,
		Tracker:       app.tracker,
		Reset:         app.reset,
	})
	return app, nil
}

// openStore connects to Redis, falling back to the in-process store so a
// broken Redis does not keep robots from moving. The fallback loses
// state on restart and is logged loudly.
func openStore(envCfg *config.EnvConfig, log zerolog.Logger) store.Store {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rd, err := store.NewRedis(ctx, store.RedisConfig{
		Addr:     envCfg.RedisAddr,
		Password: envCfg.RedisPassword,
		DB:       envCfg.RedisDB,
		Logger:   log,
	})
	if err != nil {
		log.Error().Err(err).Str("addr", envCfg.RedisAddr).
			Msg("redis unreachable, using in-memory store (state will not survive restart)")
		return store.NewMemory()
	}
	return rd
}

func seedMaps(repo *grid.Repo, maps []config.MapDef, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, def := range maps {
		created, skipped := repo.SeedMap(ctx, def)
		if skipped {
			log.Info().Str("map", def.Name).Msg("map already seeded")
			continue
		}
		log.Info().Str("map", def.Name).Int("nodes", created).Msg("map seeded")
	}
}

func chargingNodeResolver(maps []config.MapDef) func(string) grid.NodeRef {
	home := make(map[string]grid.NodeRef, len(maps))
	for _, def := range maps {
		if ref, err := grid.ParseNodeRef(def.ChargingNode); err == nil {
			home[def.Name] = ref
		}
	}
	return func(mapName string) grid.NodeRef {
		if ref, ok := home[mapName]; ok {
			return ref
		}
		return grid.SubRef(1, 0)
	}
}

func waitForShutdown(log zerolog.Logger, serverErrCh <-chan error) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		return nil
	case err := <-serverErrCh:
		return err
	}
}

// shutdown stops intake first (API, bus), then drains the queue, then
// stops the background jobs, then closes the store.
func (a *fleetApp) shutdown(ctx context.Context) {
	if a.apiSrv != nil {
		if err := a.apiSrv.Shutdown(ctx); err != nil {
			a.log.Warn().Err(err).Msg("API shutdown error")
		}
	}
	if a.detachOperator != nil {
		a.detachOperator()
	}
	if a.busCli != nil {
		a.busCli.Close()
	}
	if a.reset != nil {
		a.reset.Stop()
	}
	if a.tracker != nil {
		a.tracker.Stop()
	}
	a.shutdownPartial()
	a.log.Info().Msg("fleetd stopped")
}

// shutdownPartial closes what newFleetApp built before a failure.
func (a *fleetApp) shutdownPartial() {
	if a.queue != nil {
		a.queue.Close()
	}
	if a.repo != nil {
		a.repo.Close()
	}
	if a.st != nil {
		if err := a.st.Close(); err != nil {
			a.log.Warn().Err(err).Msg("store close error")
		}
	}
}
