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

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/errgroup"

	"ndsregistry/internal/access"
	"ndsregistry/internal/audit"
	"ndsregistry/internal/cases"
	"ndsregistry/internal/httpapi"
	"ndsregistry/internal/identity"
	"ndsregistry/internal/mirror"
	mirrordiscord "ndsregistry/internal/mirror/discord"
	"ndsregistry/internal/platform/config"
	"ndsregistry/internal/platform/httpserver"
	"ndsregistry/internal/platform/logger"
	"ndsregistry/internal/platform/metrics"
	"ndsregistry/internal/platform/postgres"
	platformredis "ndsregistry/internal/platform/redis"
	"ndsregistry/pkg/platform/circuit"
	"ndsregistry/pkg/platform/tx"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal services.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Store selection: Postgres when configured, in-memory otherwise.
	var (
		identityStore identity.Store
		intelStore    identity.IntelStore
		caseStore     cases.Store
		eventStore    audit.Store
		runner        tx.Runner
	)
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return err
		}
		identityStore = identity.NewPostgresStore(db)
		intelStore = identity.NewPostgresIntelStore(db)
		caseStore = cases.NewPostgresStore(db)
		eventStore = audit.NewPostgresStore(db)
		runner = tx.NewSQLRunner(db)
		log.Info("using postgres stores")
	} else {
		identityStore = identity.NewInMemoryStore()
		intelStore = identity.NewInMemoryIntelStore()
		caseStore = cases.NewInMemoryStore()
		eventStore = audit.NewInMemoryStore()
		runner = tx.NewMemoryRunner()
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	group, ctx := errgroup.WithContext(ctx)

	// Optional best-effort audit fan-out.
	var fanout *audit.Fanout
	if len(cfg.Audit.KafkaBrokers) > 0 {
		sink, err := audit.NewKafkaSink(cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic)
		if err != nil {
			return err
		}
		defer sink.Close()
		fanout = audit.NewFanout(0, log)
		group.Go(func() error {
			err := fanout.Run(ctx, sink)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		log.Info("audit fan-out enabled", "topic", cfg.Audit.KafkaTopic)
	}

	identitySvc := identity.NewService(identityStore, intelStore, runner, log, m)
	caseSvc := cases.NewService(caseStore, eventStore, identitySvc, runner, log,
		cases.WithMetrics(m), cases.WithFanout(fanout))

	// Optional mirror projection.
	var projector *mirror.Synchronizer
	if cfg.Mirror.BotToken != "" {
		session, err := discordgo.New("Bot " + cfg.Mirror.BotToken)
		if err != nil {
			return fmt.Errorf("mirror session: %w", err)
		}
		if err := session.Open(); err != nil {
			return fmt.Errorf("mirror connect: %w", err)
		}
		defer session.Close()

		opts := []mirror.SyncOption{
			mirror.WithSyncMetrics(m),
			mirror.WithTimeout(cfg.Mirror.Timeout),
			mirror.WithBreaker(circuit.New("mirror-discord")),
		}
		if cfg.RedisURL != "" {
			rdb, err := platformredis.New(ctx, cfg.RedisURL)
			if err != nil {
				return err
			}
			defer rdb.Close()
			opts = append(opts, mirror.WithLocker(mirror.NewRedisLocker(rdb.Client)))
			log.Info("mirror lock backed by redis")
		}
		projector = mirror.NewSynchronizer(mirrordiscord.NewMessenger(session, cfg.Mirror.ForumChannelID), log, opts...)
		log.Info("mirror projection enabled", "forum_channel", cfg.Mirror.ForumChannelID)
	} else {
		log.Warn("MIRROR_BOT_TOKEN not set, mirror projection disabled")
	}

	var gate *access.Gate
	if cfg.OperatorRoleID != "" {
		gate = access.NewGate(cfg.OperatorRoleID)
	}

	handler := httpapi.NewHandler(caseSvc, identitySvc, projector, gate, log)
	srv := httpserver.New(cfg.Addr, handler.NewRouter(cfg.APIKey))

	group.Go(func() error {
		log.Info("registry listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("registry stopped")
	return nil
}
