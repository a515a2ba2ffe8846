// Package main provides the chorus server: HTTP API, change-feed orchestration
// and event delivery in one process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raphaelgruber/chorus/internal/broadcast"
	"github.com/raphaelgruber/chorus/internal/config"
	"github.com/raphaelgruber/chorus/internal/db"
	"github.com/raphaelgruber/chorus/internal/decision"
	"github.com/raphaelgruber/chorus/internal/intent"
	"github.com/raphaelgruber/chorus/internal/llm"
	"github.com/raphaelgruber/chorus/internal/metrics"
	"github.com/raphaelgruber/chorus/internal/persona"
	"github.com/raphaelgruber/chorus/internal/pipeline"
	"github.com/raphaelgruber/chorus/internal/selector"
	"github.com/raphaelgruber/chorus/internal/server"
	"github.com/raphaelgruber/chorus/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("chorus-server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closeLog := config.SetupLogger("chorus-server", cfg.LogFile, cfg.LogLevel)
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	logger.Info("starting chorus-server", "port", cfg.ServerPort, "llm_provider", cfg.LLMProvider, "model", cfg.LLMModel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector()

	// Datastore
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	store, err := db.NewClient(connectCtx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
		Timeout:   cfg.DBTimeout,
	}, logger, collector)
	if err != nil {
		cancel()
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()
	if err := store.InitSchema(connectCtx); err != nil {
		cancel()
		return fmt.Errorf("initialize schema: %w", err)
	}
	if *wipeDB || os.Getenv("CHORUS_WIPE_DB") == "true" {
		if err := store.WipeData(connectCtx); err != nil {
			cancel()
			return fmt.Errorf("wipe database: %w", err)
		}
		logger.Warn("database wiped")
	}
	cancel()

	// Generative service
	model, err := llm.NewModel(ctx, cfg, collector, logger)
	if err != nil {
		return fmt.Errorf("init model: %w", err)
	}

	// Personas
	personas := persona.NewCache(store, logger)
	if err := personas.Reload(ctx); err != nil {
		logger.Warn("initial persona load failed, starting with an empty roster", "error", err)
	}

	// Event delivery
	hub := broadcast.NewHub(logger)
	targets := []broadcast.Target{{Name: "websocket", Publisher: hub}}
	if cfg.PusherEnabled() {
		targets = append(targets, broadcast.Target{Name: "pusher", Publisher: broadcast.NewPusherClient(broadcast.PusherConfig{
			AppID:  cfg.PusherAppID,
			Key:    cfg.PusherKey,
			Secret: cfg.PusherSecret,
			Host:   cfg.PusherHost,
		}, nil, logger)})
		logger.Info("push backbone enabled", "host", cfg.PusherHost)
	}
	if len(cfg.KafkaBrokers) > 0 {
		kafka := broadcast.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaEventsTopic)
		defer func() {
			if err := kafka.Close(); err != nil {
				logger.Error("failed to close kafka writer", "error", err)
			}
		}()
		targets = append(targets, broadcast.Target{Name: "kafka", Publisher: kafka})
		logger.Info("event mirror enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaEventsTopic)
	}
	publisher := broadcast.NewBroadcaster(collector, logger, targets...)

	// Orchestration
	engine := decision.New(decision.ConfigFromTunables(cfg.Tunables), personas.IsAgent, decision.WithLogger(logger))
	opts := service.DefaultOptions()
	opts.HistoryLimit = cfg.Tunables.HistoryLimit
	opts.VisualizationThreshold = cfg.Tunables.VisualizationThreshold

	orch := service.New(service.Deps{
		Store:      store,
		Generator:  model,
		Decider:    engine,
		Selector:   selector.New(model, personas, logger),
		Classifier: intent.New(model, logger),
		Pipeline:   pipeline.New(store, model, logger),
		Publisher:  publisher,
		Roster:     personas,
	}, opts, logger)
	defer orch.Close()

	srv := server.New(server.Deps{
		Store:        store,
		Personas:     personas,
		Renderer:     pipeline.NewRenderer(),
		Hub:          hub,
		Orchestrator: orch,
		Rooms:        engine,
		Collector:    collector,
	}, logger)

	events, err := store.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to changes: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, ":"+cfg.ServerPort)
	})
	g.Go(func() error {
		err := orch.Run(gctx, events)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err == nil && gctx.Err() == nil {
			return errors.New("change feed closed")
		}
		return err
	})
	g.Go(func() error {
		personas.Run(gctx, cfg.AgentReloadInterval)
		return nil
	})

	logger.Info("chorus-server ready",
		"api", fmt.Sprintf("http://localhost:%s/api", cfg.ServerPort),
		"metrics", fmt.Sprintf("http://localhost:%s/metrics", cfg.ServerPort))

	err = g.Wait()
	logger.Info("server stopped")
	return err
}
