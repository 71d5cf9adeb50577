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
	"github.com/escrow-marketplace/backend/internal/listener"
	"github.com/escrow-marketplace/backend/internal/models"
	"github.com/escrow-marketplace/backend/internal/ops"
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
	mappingRepo := repositories.NewMappingRepo(q)
	autoCancelRepo := repositories.NewAutoCancelRepo(q)
	eventRepo := repositories.NewEventRepo(q)

	registry := chain.NewRegistry(networkRepo, cfg.NetworkCacheTTL, cfg.IsMainnet(), log)
	publisher := events.NewRedisPublisher(rdb, log)

	// Operators flush the network cache by publishing on the control
	// channel after editing network rows. New networks still need a
	// restart to get a listener.
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

	reconciler := services.NewReconciler(
		txRepo, escrowRepo, tradeRepo, mappingRepo, autoCancelRepo, eventRepo,
		registry, publisher, log)

	// One listener per active network.
	networks, err := registry.Active(ctx)
	if err != nil {
		log.Fatal("failed to load networks", zap.Error(err))
	}

	multi := listener.NewMulti(log)
	commitment := chain.Commitment(cfg.SolanaCommitment)
	for i := range networks {
		net := &networks[i]
		switch net.Family {
		case models.FamilySolana:
			multi.Add(listener.NewSolanaListener(net, commitment, reconciler, cfg.ResubscribeMaxWait, log))
		default:
			multi.Add(listener.NewEVMListener(net, reconciler, cfg.ResubscribeMaxWait, log))
		}
	}

	started := multi.StartAll(ctx)
	log.Info("chain listener running",
		zap.Int("networks", len(networks)),
		zap.Int("monitoring", started))

	// Ops server
	opsServer := ops.New(registry, multi, func(n *models.Network) (chain.Adapter, error) {
		return chain.NewAdapter(n, cfg, log)
	}, log)
	go func() {
		if err := opsServer.Listen(cfg.OpsPort); err != nil {
			log.Error("ops server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down...")
	multi.StopAll()
	_ = opsServer.Shutdown()
	cancel()
}
