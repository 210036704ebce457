package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/matrix-api/internal/breaker"
	"github.com/phrazzld/matrix-api/internal/cache"
	"github.com/phrazzld/matrix-api/internal/config"
	"github.com/phrazzld/matrix-api/internal/platform/gemini"
	"github.com/phrazzld/matrix-api/internal/platform/postgres"
	"github.com/phrazzld/matrix-api/internal/platform/webhook"
	"github.com/phrazzld/matrix-api/internal/ratelimit"
	"github.com/phrazzld/matrix-api/internal/service"
	"github.com/phrazzld/matrix-api/internal/service/auth"
	"github.com/phrazzld/matrix-api/internal/store"
)

const (
	breakerLogInterval    = time.Minute
	cacheStatsLogInterval = 30 * time.Minute
)

// application holds the fully wired dependency graph for the server.
type application struct {
	config *config.Config
	logger *slog.Logger

	db        *sql.DB
	userStore store.UserStore
	taskStore store.TaskStore

	cacheMgr *cache.Manager
	limiter  *ratelimit.Limiter
	registry *breaker.Registry

	jwtService       auth.JWTService
	passwordVerifier auth.PasswordVerifier
	accountService   *service.AccountService
	taskService      *service.TaskService

	stopReporting chan struct{}
}

// newApplication builds the dependency graph from configuration and starts
// the background maintenance loops.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	db, err := openDatabase(cfg, logger)
	if err != nil {
		return nil, err
	}

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("creating JWT service: %w", err)
	}

	cacheMgr := cache.NewManager(tierConfigs(cfg.Cache), logger)
	limiter := ratelimit.NewLimiter(classConfigs(cfg.RateLimit), logger)

	registry := breaker.NewRegistry()
	logChange := func(name string, from, to breaker.State) {
		logger.Warn("circuit breaker state change",
			"dependency", name, "from", from.String(), "to", to.String())
	}
	aiBreaker := breaker.New("ai", breakerConfig(cfg.Breaker.AI, logChange))
	dbBreaker := breaker.New("database", breakerConfig(cfg.Breaker.Database, logChange))
	httpBreaker := breaker.New("http", breakerConfig(cfg.Breaker.HTTP, logChange))
	registry.Register(aiBreaker)
	registry.Register(dbBreaker)
	registry.Register(httpBreaker)

	suggester, err := gemini.NewSuggester(ctx, logger, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("creating suggester: %w", err)
	}

	hasher := auth.NewBcryptHasher(0)
	userStore := postgres.NewUserStore(db, hasher)
	taskStore := postgres.NewTaskStore(db)

	var notifier service.CompletionNotifier
	if cfg.Webhook.TaskCompletedURL != "" {
		n, err := webhook.NewNotifier(cfg.Webhook.TaskCompletedURL, logger)
		if err != nil {
			return nil, fmt.Errorf("creating webhook notifier: %w", err)
		}
		notifier = n
	}

	taskService, err := service.NewTaskService(taskStore, cacheMgr, dbBreaker, aiBreaker, httpBreaker, suggester, notifier, logger)
	if err != nil {
		return nil, fmt.Errorf("creating task service: %w", err)
	}

	accountService, err := service.NewAccountService(db, userStore, taskStore, logger)
	if err != nil {
		return nil, fmt.Errorf("creating account service: %w", err)
	}

	app := &application{
		config:           cfg,
		logger:           logger,
		db:               db,
		userStore:        userStore,
		taskStore:        taskStore,
		cacheMgr:         cacheMgr,
		limiter:          limiter,
		registry:         registry,
		jwtService:       jwtService,
		passwordVerifier: &auth.BcryptVerifier{},
		accountService:   accountService,
		taskService:      taskService,
		stopReporting:    make(chan struct{}),
	}

	cacheMgr.StartPruning(time.Duration(cfg.Cache.PruneIntervalSeconds) * time.Second)
	limiter.StartSweeping(time.Duration(cfg.RateLimit.SweepIntervalSeconds) * time.Second)
	go app.reportHealth()

	return app, nil
}

// reportHealth periodically logs breaker snapshots and, less often, cache
// statistics, until cleanup is called.
func (app *application) reportHealth() {
	breakerTick := time.NewTicker(breakerLogInterval)
	cacheTick := time.NewTicker(cacheStatsLogInterval)
	defer breakerTick.Stop()
	defer cacheTick.Stop()

	for {
		select {
		case <-breakerTick.C:
			for _, snap := range app.registry.Snapshots() {
				app.logger.Info("circuit breaker status",
					"dependency", snap.Name,
					"state", snap.State,
					"consecutive_failures", snap.ConsecutiveFails,
					"total_requests", snap.Stats.TotalRequests,
					"rejections", snap.Stats.Rejections)
			}
		case <-cacheTick.C:
			for tier, stats := range app.cacheMgr.Stats() {
				app.logger.Info("cache tier statistics",
					"tier", tier,
					"keys", stats.Keys,
					"hits", stats.Hits,
					"misses", stats.Misses,
					"evicted", stats.Evicted,
					"expired", stats.Expired)
			}
		case <-app.stopReporting:
			return
		}
	}
}

// cleanup stops background loops and releases resources. Safe to call once
// after serve returns.
func (app *application) cleanup() {
	close(app.stopReporting)
	app.cacheMgr.Stop()
	app.limiter.Stop()
	if err := app.db.Close(); err != nil {
		app.logger.Error("failed to close database", "error", err)
	}
}

func tierConfigs(cfg config.CacheConfig) map[string]cache.TierConfig {
	toTier := func(s config.TierSettings) cache.TierConfig {
		return cache.TierConfig{
			DefaultTTL: time.Duration(s.TTLSeconds) * time.Second,
			MaxEntries: s.MaxEntries,
		}
	}
	return map[string]cache.TierConfig{
		cache.TierMain:      toTier(cfg.Main),
		cache.TierSession:   toTier(cfg.Session),
		cache.TierAIResults: toTier(cfg.AIResults),
		cache.TierRateLimit: toTier(cfg.RateLimit),
	}
}

func classConfigs(cfg config.RateLimitConfig) map[ratelimit.Class]ratelimit.ClassConfig {
	toClass := func(s config.ClassSettings) ratelimit.ClassConfig {
		return ratelimit.ClassConfig{
			Strategy: ratelimit.Strategy(s.Strategy),
			Window:   time.Duration(s.WindowSeconds) * time.Second,
			Max:      s.Max,
		}
	}
	return map[ratelimit.Class]ratelimit.ClassConfig{
		ratelimit.ClassGeneral:  toClass(cfg.General),
		ratelimit.ClassAuth:     toClass(cfg.Auth),
		ratelimit.ClassMutation: toClass(cfg.Mutation),
		ratelimit.ClassAI:       toClass(cfg.AI),
		ratelimit.ClassUpload:   toClass(cfg.Upload),
	}
}

func breakerConfig(s config.BreakerSettings, onChange func(string, breaker.State, breaker.State)) breaker.Config {
	return breaker.Config{
		FailureThreshold: s.FailureThreshold,
		ResetTimeout:     time.Duration(s.ResetTimeoutSeconds) * time.Second,
		CallTimeout:      time.Duration(s.CallTimeoutSeconds) * time.Second,
		OnStateChange:    onChange,
	}
}
