package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adaptive-test-service/internal/app"
	"adaptive-test-service/internal/config"
	"adaptive-test-service/internal/connectivity"
	"adaptive-test-service/internal/infra/memory"
	pgstore "adaptive-test-service/internal/infra/postgres"
	redisstore "adaptive-test-service/internal/infra/redis"
	"adaptive-test-service/internal/logger"
	"adaptive-test-service/internal/recovery"
	transport "adaptive-test-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the test session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret not configured")
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	sessionCfg := app.Config{
		TickInterval:   config.Duration(cfg.Session.TickInterval, time.Second),
		BackupInterval: config.Duration(cfg.Session.BackupInterval, recovery.DefaultInterval),
		BackupMaxAge:   config.Duration(cfg.Session.BackupMaxAge, recovery.DefaultMaxAge),
		AutoSaveEvery:  config.Duration(cfg.Session.AutoSaveEvery, 5*time.Second),
		SubmitAttempts: cfg.Submit.MaxAttempts,
		SubmitMaxDelay: config.Duration(cfg.Reconnect.MaxDelay, 30*time.Second),
		SubmitTimeout:  config.Duration(cfg.Submit.Timeout, 2*time.Minute),

		FinishedRetention: config.Duration(cfg.Session.Retention, time.Minute),
	}

	var probes []connectivity.Probe

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		probes = append(probes, func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	redisTTL := config.Duration(cfg.Redis.TTL, 12*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		probes = append(probes, func(ctx context.Context) error {
			return pool.Ping(ctx)
		})
	}

	var (
		loader  memory.TestLoader = memory.NewStaticTestLoader(sampleTests())
		access  app.AccessAuthority
		sink    app.AttemptSink
		history transport.AttemptHistory
	)
	if pool != nil {
		loader = pgstore.NewTestLoader(pool)
		access = pgstore.NewAccessAuthority(pool)
		db := openBun(cfg.Postgres.URL)
		defer db.Close()
		pgSink := pgstore.NewAttemptSink(db)
		sink, history = pgSink, pgSink
	} else {
		access = memory.NewPlanAccess()
		memSink := memory.NewAttemptSink()
		sink, history = memSink, memSink
	}

	testsTTL := config.Duration(cfg.Tests.TTL, 10*time.Minute)
	var (
		tests    app.TestRepository
		sessions app.SessionRepository
		backups  recovery.Storage
	)
	if redisClient != nil {
		tests = redisstore.NewTestRepository(redisClient, loader, testsTTL, log)
		sessions = redisstore.NewSessionStore(redisClient, redisTTL)
		backups = redisstore.NewBackupStore(redisClient, sessionCfg.BackupMaxAge)
	} else {
		tests = memory.NewTestRepository(loader, testsTTL)
		sessions = memory.NewSessionStore()
		backups = memory.NewBackupStore()
	}

	service := app.NewSessionService(app.Dependencies{
		Sessions: sessions,
		Tests:    tests,
		Access:   access,
		Sink:     sink,
		Backups:  backups,
		Logger:   log,
	}, sessionCfg)

	runCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	if len(probes) > 0 {
		monitor := connectivity.NewMonitor(log, probes,
			connectivity.WithInterval(config.Duration(cfg.Reconnect.Interval, 10*time.Second)),
			connectivity.WithBackoff(
				config.Duration(cfg.Reconnect.BaseDelay, connectivity.DefaultBaseDelay),
				config.Duration(cfg.Reconnect.MaxDelay, connectivity.DefaultMaxDelay),
				cfg.Reconnect.MaxAttempts,
			),
			connectivity.OnChange(service.SetOnline),
		)
		go monitor.Run(runCtx)
	}

	router := transport.NewRouter(transport.RouterConfig{
		Service: service,
		Auth:    transport.NewAuthenticator(cfg.Auth.JWTSecret),
		History: history,
		Logger:  log,
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting test session service", "port", finalPort,
			"redis", redisClient != nil, "postgres", pool != nil)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
