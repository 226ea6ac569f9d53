package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"bordereau/internal/bsd/authz"
	"bordereau/internal/bsd/chain"
	"bordereau/internal/bsd/company"
	"bordereau/internal/bsd/events"
	bsdhandler "bordereau/internal/bsd/handler"
	"bordereau/internal/bsd/ports"
	"bordereau/internal/bsd/revision"
	"bordereau/internal/bsd/service"
	"bordereau/internal/bsd/store"
	"bordereau/internal/platform/config"
	"bordereau/internal/platform/httpserver"
	"bordereau/internal/platform/logger"
	"bordereau/internal/platform/metrics"
	"bordereau/internal/platform/middleware"
	platformredis "bordereau/internal/platform/redis"
	httptransport "bordereau/internal/transport/http"
)

// main wires storage, locking, the domain services and the HTTP surface.
// Business logic lives in the internal/bsd packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	m := metrics.New()

	// Storage: Postgres when configured, otherwise the in-memory store.
	var (
		docs      ports.DocumentStore
		revisions ports.RevisionStore
		codes     company.SecurityCodeStore
		txRunner  ports.TxRunner
	)
	if cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer db.Close()
		pg := store.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		docs = pg
		revisions = pg.Revisions()
		codes = pg
		txRunner = store.NewSQLTxRunner(db)
		log.Info("using postgres storage")
	} else {
		mem := store.NewMemory()
		docs = mem
		revisions = mem.Revisions()
		codes = mem
		txRunner = store.NoopTxRunner{}
		log.Warn("no postgres configured, using in-memory storage")
	}

	rdb, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	var locker ports.Locker
	var directory company.DirectoryLookup = company.NewStaticDirectory()
	if rdb != nil {
		locker = store.NewRedisLocker(rdb.Client)
		directory = company.NewCachedDirectory(directory, rdb.Client)
		log.Info("using redis for locking and directory cache")
	} else {
		locker = store.NewMemoryLocker()
	}

	gate := company.NewGate(directory,
		company.WithRetryDelay(cfg.LookupRetry),
		company.WithLookupTimeout(cfg.LookupTimeout),
		company.WithLogger(log))
	resolver := authz.NewResolver(company.NewCodeVerifier(codes))
	propagator := chain.New(docs, chain.WithLogger(log))

	// Events flow through the channel publisher; the worker drains it into
	// Kafka when brokers are configured, the log otherwise.
	publisher := events.NewChannelPublisher(256, log)
	var sink events.Sink = events.LogSink{Logger: log}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := events.NewKafkaSink(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			return err
		}
		defer kafkaSink.Close()
		sink = kafkaSink
		log.Info("publishing events to kafka", "topic", cfg.KafkaTopic)
	}
	worker := events.NewWorker(publisher.Outbox(), sink, log)
	go func() {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("event worker stopped", "error", err)
		}
	}()

	documents, err := service.New(docs, locker, txRunner, resolver, propagator,
		service.WithLogger(log),
		service.WithEventPublisher(publisher),
		service.WithMetrics(m),
		service.WithCompanyGate(gate))
	if err != nil {
		return err
	}
	revisionService, err := revision.New(docs, revisions, locker, txRunner,
		revision.WithLogger(log),
		revision.WithEventPublisher(publisher))
	if err != nil {
		return err
	}

	validator := middleware.NewValidator(cfg.JWTSigningKey)
	handler := bsdhandler.New(documents, revisionService, validator, log)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler))

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting bordereau server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
