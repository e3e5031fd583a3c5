package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"signalhub/invitehub/internal/config"
	"signalhub/invitehub/internal/handler"
	"signalhub/invitehub/internal/model"
	"signalhub/invitehub/internal/repository"
	"signalhub/invitehub/internal/service"
	"signalhub/invitehub/internal/telegram"
	jwtpkg "signalhub/invitehub/pkg/jwt"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Initialize logger
	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// 3. Initialize state store (Redis or in-memory)
	var stateStore repository.StateStore
	switch cfg.State.Backend {
	case "redis":
		redisClient, err := config.NewRedisClient(cfg.Database.Redis)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
		stateStore = repository.NewRedisStateStore(redisClient)
		logger.Info("using Redis state store")
	case "memory":
		stateStore = repository.NewMemoryStateStore()
		logger.Warn("using in-memory state store, rate limits are per instance")
	default:
		logger.Fatal("unknown state backend", zap.String("backend", cfg.State.Backend))
	}

	// 4. Open the audit archive, if any
	archive, closeArchive, err := openArchive(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open audit archive", zap.Error(err))
	}
	defer closeArchive()

	// 5. Connect to the Bot API
	bot, err := telegram.NewBotAPI(cfg.Telegram.BotToken, cfg.Telegram.APIEndpoint, cfg.Telegram.RequestTimeout, cfg.Telegram.Debug)
	if err != nil {
		logger.Fatal("failed to connect to telegram", zap.Error(err))
	}
	logger.Info("telegram bot authorized", zap.String("username", bot.Self.UserName))

	// 6. Initialize services
	analytics := service.NewAnalyticsService(service.AnalyticsConfig{
		QueueSize:    cfg.Analytics.QueueSize,
		HistorySize:  cfg.Analytics.HistorySize,
		HistoryTTL:   cfg.Analytics.HistoryTTL,
		StoreTimeout: cfg.Analytics.StoreTimeout,
	}, stateStore, archive, logger)

	rl := cfg.Invite.RateLimit
	limiter := service.NewRateLimiter(stateStore, map[string]int{
		service.SubjectUser:    rl.User.Max,
		service.SubjectChannel: rl.Channel.Max,
	}, rl.FailOpen, logger)

	inviter, err := service.NewInviteService(
		service.InviteConfigFrom(cfg.Invite),
		telegram.NewClient(bot),
		limiter,
		analytics,
		logger,
	)
	if err != nil {
		logger.Fatal("failed to init invite service", zap.Error(err))
	}

	// 7. Setup router
	jwtManager, err := jwtpkg.NewManager(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.AccessTokenTTL)
	if err != nil {
		logger.Fatal("failed to init jwt manager", zap.Error(err))
	}
	if len(cfg.Admin.UserIDs) == 0 {
		logger.Warn("no admin ids configured, admin API will reject every request")
	}
	invitationHandler := handler.NewInvitationHandler(inviter, analytics, limiter, archive, logger)
	router := handler.SetupRouter(cfg, logger, jwtManager, invitationHandler)

	// 8. Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 9. Run server and audit worker until a signal arrives
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// The worker outlives the server so in-flight requests can still record events.
		return analytics.Run(context.Background())
	})
	g.Go(func() error {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		analytics.Close()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
	if n := analytics.Dropped(); n > 0 {
		logger.Warn("analytics events dropped during run", zap.Int64("dropped", n))
	}
	logger.Info("server exited gracefully")
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.Format == "json" {
		zcfg = zap.NewProductionConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}

// openArchive returns a nil repository when archiving is disabled.
func openArchive(cfg *config.Config, logger *zap.Logger) (repository.InvitationEventRepository, func(), error) {
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Archive.Backend {
	case "", "none":
		logger.Info("audit archive disabled")
		return nil, func() {}, nil
	case "postgres":
		db, err = config.NewPostgresDB(cfg.Database.Postgres)
	case "sqlite":
		db, err = config.NewSQLiteDB(cfg.Database.SQLite)
	default:
		return nil, nil, fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
	}
	if err != nil {
		return nil, nil, err
	}

	if cfg.Archive.Backend == "sqlite" || cfg.Database.Postgres.AutoMigrate {
		if err := model.AutoMigrate(db); err != nil {
			return nil, nil, fmt.Errorf("auto-migrate: %w", err)
		}
		logger.Info("database migration completed")
	}
	logger.Info("using audit archive", zap.String("backend", cfg.Archive.Backend))

	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return repository.NewGormInvitationEventRepository(db), closeFn, nil
}
