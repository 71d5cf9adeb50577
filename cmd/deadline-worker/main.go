package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/escrow-marketplace/backend/internal/chain"
	"github.com/escrow-marketplace/backend/internal/config"
	"github.com/escrow-marketplace/backend/internal/db"
	"github.com/escrow-marketplace/backend/internal/events"
	"github.com/escrow-marketplace/backend/internal/models"
	"github.com/escrow-marketplace/backend/internal/repositories"
	"github.com/escrow-marketplace/backend/internal/services"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns, cfg.PostgresMinConns, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, cfg.MigrationsDir, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	q := db.NewQuerier(pool, log)
	networkRepo := repositories.NewNetworkRepo(q)
	escrowRepo := repositories.NewEscrowRepo(q)
	tradeRepo := repositories.NewTradeRepo(q)
	txRepo := repositories.NewTransactionRepo(q)
	autoCancelRepo := repositories.NewAutoCancelRepo(q)

	registry := chain.NewRegistry(networkRepo, cfg.NetworkCacheTTL, cfg.IsMainnet(), log)
	publisher := events.NewRedisPublisher(rdb, log)

	// Pick up network row changes (arbitrator rotation, deactivation)
	// without a restart. Cached adapters keep their original endpoints.
	subscriber := events.NewRedisSubscriber(rdb, log)
	err = subscriber.Subscribe(ctx, events.ChannelControl, func(ev events.Event) {
		if ev.Type == events.EventNetworksChanged {
			registry.Invalidate()
			log.Info("network cache invalidated", zap.String("event_id", ev.ID.String()))
		}
	})
	if err != nil {
		log.Warn("control channel subscribe failed", zap.Error(err))
	}

	monitor := services.NewDeadlineMonitor(
		tradeRepo, escrowRepo, autoCancelRepo, txRepo, registry, publisher,
		cfg.DeadlineCheckInterval,
		func(n *models.Network) (chain.Adapter, error) {
			return chain.NewAdapter(n, cfg, log)
		},
		log)

	go monitor.Run(ctx)
	log.Info("deadline worker running", zap.Duration("interval", cfg.DeadlineCheckInterval))

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down...")
	cancel()
}
