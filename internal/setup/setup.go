// Package setup bootstraps the application dependencies in order and
// tears them down in reverse.
package setup

import (
	"context"
	"log"
	"slices"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"github.com/groupwarden/warden/internal/admin"
	"github.com/groupwarden/warden/internal/database"
	"github.com/groupwarden/warden/internal/database/models"
	"github.com/groupwarden/warden/internal/database/types/enum"
	"github.com/groupwarden/warden/internal/dispatch"
	"github.com/groupwarden/warden/internal/executor"
	"github.com/groupwarden/warden/internal/federation"
	"github.com/groupwarden/warden/internal/moderation/escalation"
	"github.com/groupwarden/warden/internal/moderation/flood"
	"github.com/groupwarden/warden/internal/moderation/permission"
	"github.com/groupwarden/warden/internal/moderation/pipeline"
	"github.com/groupwarden/warden/internal/moderation/verification"
	"github.com/groupwarden/warden/internal/platform/telegram"
	"github.com/groupwarden/warden/internal/redis"
	"github.com/groupwarden/warden/internal/setup/config"
	"github.com/groupwarden/warden/internal/setup/logging"
)

// App bundles all core dependencies and services needed by the bot.
// Each field represents a subsystem that needs initialization and cleanup.
type App struct {
	Config       *config.Config   // Application configuration
	Logger       *zap.Logger      // Main application logger
	DBLogger     *zap.Logger      // Database-specific logger
	DB           database.Client  // Database connection pool
	RedisManager *redis.Manager   // Redis connection manager
	Bot          *bot.Bot         // Telegram bot client
	Dispatcher   *dispatch.Dispatcher
	Admin        *admin.Service
	Federations  *federation.Registry

	gate *verification.Gate
}

// InitializeApp bootstraps all application dependencies in the correct
// order, ensuring each component has its required dependencies available.
func InitializeApp(ctx context.Context, logDir string) (*App, error) {
	// Load app configuration
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Logging system is initialized next to capture setup issues
	logger, dbLogger, err := logging.SetupLogging(logDir, cfg.Debug.LogLevel, cfg.Debug.MaxLogsToKeep)
	if err != nil {
		return nil, err
	}

	// Redis manager provides connection pools for the flood and
	// verification subsystems
	redisManager := redis.NewManager(&cfg.Redis, logger)

	db, err := database.NewConnection(ctx, &cfg.PostgreSQL, dbLogger, true)
	if err != nil {
		return nil, err
	}

	db.Model().Policy().SetDefaults(models.PolicyDefaults{
		WarnLimit:      cfg.Moderation.DefaultWarnLimit,
		WarnAction:     enum.Action(cfg.Moderation.DefaultWarnAction),
		FloodLimit:     cfg.Moderation.DefaultFloodLimit,
		FloodWindow:    cfg.Moderation.DefaultFloodWindow,
		FloodAction:    enum.Action(cfg.Moderation.DefaultFloodAction),
		AntilinkAction: enum.Action(cfg.Moderation.DefaultAntilinkAction),
		CaptchaMode:    enum.CaptchaMode(cfg.Moderation.DefaultCaptchaMode),
		CaptchaTimeout: cfg.Moderation.CaptchaTimeout,
		MuteDuration:   cfg.Moderation.MuteDuration,
	})

	floodClient, err := redisManager.GetClient(redis.FloodDBIndex)
	if err != nil {
		return nil, err
	}

	verifyClient, err := redisManager.GetClient(redis.VerificationDBIndex)
	if err != nil {
		return nil, err
	}

	// Telegram client; updates are routed in Run once the dispatcher is up
	b, err := bot.New(cfg.Bot.Token,
		bot.WithDefaultHandler(func(context.Context, *bot.Bot, *tgmodels.Update) {}),
	)
	if err != nil {
		return nil, err
	}

	platformClient := telegram.NewClient(b, logger)

	exec := executor.New(platformClient, logger,
		executor.WithCallTimeout(time.Duration(cfg.Bot.RequestTimeout)*time.Millisecond),
		executor.WithRetry(cfg.Retry.MaxRetries, time.Duration(cfg.Retry.Delay)*time.Millisecond),
	)

	resolver := permission.NewResolver(
		cfg.Bot.OwnerID, cfg.Bot.SudoIDs, platformClient, db.Model().Membership(), logger,
	)

	registry := federation.NewRegistry(db.Model().Federation(), exec, logger,
		federation.WithFanOut(
			time.Duration(cfg.Moderation.FanoutTimeout)*time.Millisecond,
			cfg.Moderation.FanoutConcurrency,
		),
		federation.WithPrivileged(func(userID int64) bool {
			return userID == cfg.Bot.OwnerID || slices.Contains(cfg.Bot.SudoIDs, userID)
		}),
	)

	engine := escalation.New(db.Model().Warning(), exec, logger)
	gate := verification.NewGate(verifyClient, exec, logger)

	dispatcher := dispatch.New(dispatch.Deps{
		Policies:    db.Model().Policy(),
		Memberships: db.Model().Membership(),
		Resolver:    resolver,
		Pipeline:    pipeline.New(db.Model().Blacklist(), db.Model().Filter(), logger),
		Flood:       flood.NewDetector(floodClient, logger),
		Warner:      engine,
		Actions:     exec,
		Verifier:    gate,
	}, cfg.Bot.DispatchShards, cfg.Bot.DispatchBuffer, logger)

	adminService := admin.New(
		resolver,
		db.Model().Policy(),
		db.Model().Membership(),
		db.Model().Blacklist(),
		db.Model().Filter(),
		engine,
		registry,
		logger,
	)

	return &App{
		Config:       cfg,
		Logger:       logger,
		DBLogger:     dbLogger,
		DB:           db,
		RedisManager: redisManager,
		Bot:          b,
		Dispatcher:   dispatcher,
		Admin:        adminService,
		Federations:  registry,
		gate:         gate,
	}, nil
}

// Run starts the dispatcher and blocks polling Telegram until the context
// is cancelled.
func (a *App) Run(ctx context.Context) {
	a.Dispatcher.Start(ctx)

	listener := telegram.NewListener(a.Dispatcher, a.Logger)
	listener.Register(a.Bot)

	a.Logger.Info("Bot started")
	a.Bot.Start(ctx)
}

// Cleanup ensures graceful shutdown of all components in reverse
// initialization order. Logs but does not fail on cleanup errors so every
// component gets a cleanup attempt.
func (a *App) Cleanup() {
	a.Dispatcher.Close()
	a.gate.Close()

	if err := a.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := a.DBLogger.Sync(); err != nil {
		log.Printf("Failed to sync DB logger: %v", err)
	}

	if err := a.DB.Close(); err != nil {
		log.Printf("Failed to close database connection: %v", err)
	}

	// Redis connections close last; the gate may still be flushing state
	a.RedisManager.Close()
}
