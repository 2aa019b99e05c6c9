package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cogmanager/internal/config"
	"cogmanager/internal/push"
	"cogmanager/internal/repository"
	"cogmanager/internal/service"
	"cogmanager/pkg/db"
	"cogmanager/pkg/mq"
	"cogmanager/pkg/outbox"
	redisclient "cogmanager/pkg/redis"
	"cogmanager/pkg/util"
)

// App holds the process-wide resources shared by the api and the worker.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	DB        *pgxpool.Pool
	Redis     *redis.Client
	Publisher *mq.Publisher
	Outbox    *outbox.Repository

	Intentions *service.IntentionService
	Reminders  *service.ReminderService
	Pushes     *service.PushService
}

// New connects to postgres, redis and rabbitmq and wires the services.
// RabbitMQ is optional: without it notification.dispatched events are skipped.
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	log.Info("Initializing database connection...")
	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}
	log.Info("Database connection established successfully")

	rdb := redisclient.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := redisclient.Ping(pingCtx, rdb); err != nil {
		// 限流和去重在 Redis 不可用时放行
		log.Warn("Redis unavailable, rate limit and dedupe will fail open", zap.Error(err))
	}

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Warn("MQ publisher unavailable, events disabled", zap.Error(err))
		publisher = nil
	}

	a := &App{
		Config:    cfg,
		Logger:    log,
		DB:        pool,
		Redis:     rdb,
		Publisher: publisher,
		Outbox:    outbox.NewRepository(pool),
	}

	tasks := repository.NewTaskRepository(pool, log)
	completions := repository.NewCompletionRepository(pool, a.Outbox, log)
	subs := repository.NewSubscriptionRepository(pool, log)

	sender := push.NewWebPushSender(cfg.Push, log)
	if !sender.Enabled() {
		log.Warn("VAPID keys not configured, push delivery disabled")
	}
	fanout := push.NewFanout(subs, sender, log).WithDefaultIcon(cfg.Push.Icon)
	clock := service.NewClock(loc)

	a.Intentions = service.NewIntentionService(tasks, completions, clock, log)
	a.Reminders = service.NewReminderService(tasks, completions, fanout.WithSource("reminder"), clock, log)
	if publisher != nil {
		a.Reminders.WithEvents(publisher)
	}
	a.Pushes = service.NewPushService(subs, fanout.WithSource("direct"), cfg.Push.VAPIDPublicKey, log).
		WithRateLimiter(util.NewRateLimiter(rdb, "push-send", int64(cfg.Push.SendLimitPerHour), time.Hour))

	return a, nil
}

func (a *App) Close() {
	if a.Publisher != nil {
		a.Publisher.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
