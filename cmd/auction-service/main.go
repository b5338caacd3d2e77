package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/gfranco/auction-platform-poc/internal/auction-service/cache"
	"github.com/gfranco/auction-platform-poc/internal/auction-service/engine"
	"github.com/gfranco/auction-platform-poc/internal/auction-service/finalizer"
	ahttp "github.com/gfranco/auction-platform-poc/internal/auction-service/http"
	"github.com/gfranco/auction-platform-poc/internal/auction-service/notify"
	"github.com/gfranco/auction-platform-poc/internal/auction-service/orders"
	"github.com/gfranco/auction-platform-poc/internal/auction-service/producer"
	"github.com/gfranco/auction-platform-poc/internal/auction-service/repo"
	scache "github.com/gfranco/auction-platform-poc/internal/shared/cache"
	"github.com/gfranco/auction-platform-poc/internal/shared/config"
	"github.com/gfranco/auction-platform-poc/internal/shared/db"
	skafka "github.com/gfranco/auction-platform-poc/internal/shared/kafka"
	"github.com/gfranco/auction-platform-poc/internal/shared/logger"
	"github.com/gfranco/auction-platform-poc/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	var (
		store  engine.AuctionStore
		ledger engine.BidLedger
		autob  engine.AutoBidRegistry
		commit engine.BidCommitter
		publ   engine.OutcomePublisher
		fpubl  finalizer.FinalizedPublisher
		snap   *cache.PriceCache
		health metrics.HealthFunc = func(context.Context) error { return nil }
	)

	if cfg.Storage == "memory" {
		// modo local sem infra: tudo em memória, sem kafka/redis
		log.Warn("storage=memory: estado não sobrevive a restart")
		mstore := repo.NewMemoryAuctions()
		mledger := repo.NewMemoryLedger()
		store = mstore
		ledger = mledger
		autob = repo.NewMemoryAutoBids()
		commit = repo.NewMemoryCommitter(mstore, mledger)
	} else {
		pg, err := db.ConnectPostgres(cfg.PostgresDSN)
		if err != nil {
			log.Fatal("pg", zap.Error(err))
		}
		defer pg.Close()

		rdb, err := scache.ConnectRedis(cfg.RedisAddr)
		if err != nil {
			log.Fatal("redis", zap.Error(err))
		}

		outcomeWriter := skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBidOutcome)
		defer outcomeWriter.Close()
		finalizedWriter := skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicAuctionFinalized)
		defer finalizedWriter.Close()

		pstore := repo.NewPostgresAuctions(pg)
		store = pstore
		commit = pstore
		ledger = repo.NewPostgresLedger(pg)
		autob = repo.NewPostgresAutoBids(pg)
		kp := producer.NewKafkaPublisher(outcomeWriter, finalizedWriter)
		publ = kp
		fpubl = kp
		snap = cache.NewPriceCache(rdb)

		health = func(ctx context.Context) error {
			if err := pg.PingContext(ctx); err != nil {
				return fmt.Errorf("pg: %w", err)
			}
			return rdb.Ping(ctx).Err()
		}
	}

	locks := engine.NewLockRing(cfg.LockTimeout)

	var snapI engine.PriceSnapshotter
	if snap != nil {
		snapI = snap
	}
	eng := engine.New(log, locks, store, ledger, autob, commit, publ, snapI)

	sweeper := finalizer.NewSweeper(log, locks, store, autob, commit,
		orders.New(cfg.OrderURL), notify.New(cfg.NotifierURL), fpubl, snapI)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweeper.Start(ctx, cfg.FinalizeInterval)

	metrics.StartMetricsServer(cfg.MetricsPort, health)

	var prices ahttp.PriceReader
	if snap != nil {
		prices = snap
	}
	api := ahttp.NewServer(log, store, ledger, eng, sweeper, prices)
	apiSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: api.Router(),
	}

	log.Info("auction-service listening",
		zap.String("addr", apiSrv.Addr),
		zap.String("storage", cfg.Storage),
		zap.Duration("finalizeInterval", cfg.FinalizeInterval),
	)
	if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api", zap.Error(err))
	}
}
