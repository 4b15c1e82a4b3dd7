// Package app wires configuration into the running object graph.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/diaguru/diaguru/adapter/api"
	calendarDomain "github.com/diaguru/diaguru/internal/calendar/domain"
	googleCalendar "github.com/diaguru/diaguru/internal/calendar/infrastructure/google"
	oauthService "github.com/diaguru/diaguru/internal/identity/application/oauth"
	identityDomain "github.com/diaguru/diaguru/internal/identity/domain"
	identityPersistence "github.com/diaguru/diaguru/internal/identity/infrastructure/persistence"
	"github.com/diaguru/diaguru/internal/ingest"
	"github.com/diaguru/diaguru/internal/scheduling/application/commands"
	"github.com/diaguru/diaguru/internal/scheduling/application/services"
	schedulingDomain "github.com/diaguru/diaguru/internal/scheduling/domain"
	schedulingPersistence "github.com/diaguru/diaguru/internal/scheduling/infrastructure/persistence"
	postgresDB "github.com/diaguru/diaguru/internal/shared/infrastructure/database/postgres"
	sqliteDB "github.com/diaguru/diaguru/internal/shared/infrastructure/database/sqlite"
	"github.com/diaguru/diaguru/internal/shared/infrastructure/eventbus"
	"github.com/diaguru/diaguru/internal/shared/infrastructure/locking"
	"github.com/diaguru/diaguru/pkg/config"
	"github.com/diaguru/diaguru/pkg/observability"
)

// Container owns the wired application.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	Ingest   *commands.IngestCaptureHandler
	Schedule *commands.ScheduleCaptureHandler
	Undo     *commands.UndoPlanHandler
	Server   *api.Server

	pool      *pgxpool.Pool
	db        *sql.DB
	redis     *redis.Client
	publisher eventbus.Publisher
}

// NewContainer builds the full graph. Postgres is selected by DATABASE_URL;
// otherwise the embedded sqlite store is used.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	c := &Container{Config: cfg, Logger: logger}

	var (
		captures schedulingDomain.CaptureRepository
		plans    schedulingDomain.PlanRepository
		chunks   schedulingDomain.ChunkRepository
		accounts identityDomain.AccountRepository
		tokens   identityDomain.TokenRepository
	)

	if cfg.Database.URL != "" {
		pool, err := postgresDB.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		c.pool = pool
		if err := schedulingPersistence.EnsurePostgresSchema(ctx, pool); err != nil {
			c.Close()
			return nil, err
		}
		if err := identityPersistence.EnsurePostgresSchema(ctx, pool); err != nil {
			c.Close()
			return nil, err
		}
		captures = schedulingPersistence.NewPostgresCaptureRepository(pool)
		plans = schedulingPersistence.NewPostgresPlanRepository(pool)
		chunks = schedulingPersistence.NewPostgresChunkRepository(pool)
		accounts = identityPersistence.NewPostgresAccountRepository(pool)
		tokens = identityPersistence.NewPostgresTokenRepository(pool)
		logger.Info("using postgres store")
	} else {
		db, err := sqliteDB.Open(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		c.db = db
		if err := schedulingPersistence.EnsureSqliteSchema(ctx, db); err != nil {
			c.Close()
			return nil, err
		}
		if err := identityPersistence.EnsureSqliteSchema(ctx, db); err != nil {
			c.Close()
			return nil, err
		}
		captures = schedulingPersistence.NewSqliteCaptureRepository(db)
		plans = schedulingPersistence.NewSqlitePlanRepository(db)
		chunks = schedulingPersistence.NewSqliteChunkRepository(db)
		accounts = identityPersistence.NewSqliteAccountRepository(db)
		tokens = identityPersistence.NewSqliteTokenRepository(db)
		logger.Info("using sqlite store", "path", cfg.Database.Path)
	}

	var locker locking.Locker
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		c.redis = redis.NewClient(opts)
		locker = locking.NewRedisLocker(c.redis, logger)
		logger.Info("using redis locking")
	} else {
		locker = locking.NewLocalLocker()
	}

	c.publisher = eventbus.NoopPublisher{}
	if cfg.RabbitMQ.URL != "" {
		publisher, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQ.URL, logger)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.publisher = publisher
		logger.Info("event publishing enabled")
	}

	oauth := oauthService.NewService(accounts, tokens, cfg.Google.ClientID, cfg.Google.ClientSecret, logger)
	var gateway calendarDomain.Gateway = googleCalendar.NewClient(oauth, logger).
		WithCalendarID(cfg.Google.CalendarID)

	var extractor ingest.Extractor = ingest.NoopExtractor{}
	if cfg.Extractor.Enabled {
		extractor = ingest.NewOpenAIExtractor(cfg.Extractor.APIKey, cfg.Extractor.BaseURL, cfg.Extractor.Model, logger)
	}
	var advisor services.Advisor = services.NoopAdvisor{}
	if cfg.Advisor.Enabled {
		advisor = services.NewOpenAIAdvisor(cfg.Advisor.APIKey, cfg.Advisor.BaseURL, cfg.Advisor.Model, logger)
	}

	weights := schedulingDomain.DefaultPriorityWeights()
	resolver := services.NewConflictResolver(weights, logger)
	decisions := services.NewDecisionBuilder(advisor, logger)

	c.Ingest = commands.NewIngestCaptureHandler(captures, extractor, logger)
	c.Schedule = commands.NewScheduleCaptureHandler(
		captures, plans, chunks, gateway, locker, c.publisher, resolver, decisions, weights, logger)
	c.Undo = commands.NewUndoPlanHandler(captures, plans, chunks, gateway, c.publisher, weights, logger)
	c.Server = api.NewServer(cfg.Server, c.Ingest, c.Schedule, c.Undo, logger)

	return c, nil
}

// Close releases every held resource.
func (c *Container) Close() {
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			c.Logger.Warn("closing publisher", "error", err)
		}
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.Logger.Warn("closing redis", "error", err)
		}
	}
	if c.pool != nil {
		c.pool.Close()
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.Logger.Warn("closing sqlite", "error", err)
		}
	}
}
