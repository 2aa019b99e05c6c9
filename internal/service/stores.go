package service

import (
	"context"
	"time"

	"cogmanager/internal/model"
	"cogmanager/internal/push"
)

// TaskStore is implemented by repository.TaskRepository.
type TaskStore interface {
	GetForUser(ctx context.Context, taskID, userID string) (*model.Task, error)
	GetStreak(ctx context.Context, taskID string) (current, best int, err error)
	ListOpenIntentions(ctx context.Context) ([]model.Task, error)
	ListActiveStreaks(ctx context.Context) ([]model.Task, error)
	ListDueBy(ctx context.Context, day time.Time) ([]model.Task, error)
}

// CompletionStore is implemented by repository.CompletionRepository.
type CompletionStore interface {
	Record(ctx context.Context, taskID, userID string, day time.Time) (alreadyCompleted bool, err error)
	HasCompleted(ctx context.Context, taskID string, day time.Time) (bool, error)
	CompletedTaskIDs(ctx context.Context, taskIDs []string, day time.Time) (map[string]bool, error)
	ListDates(ctx context.Context, taskID string, since time.Time) ([]time.Time, error)
}

// SubscriptionStore is implemented by repository.SubscriptionRepository.
type SubscriptionStore interface {
	push.SubscriptionStore
	Upsert(ctx context.Context, s *model.PushSubscription) error
	Delete(ctx context.Context, userID, endpoint string) (bool, error)
}

// Notifier delivers notices; *push.Fanout implements it.
type Notifier interface {
	Notify(ctx context.Context, notices []push.Notice) push.Tally
}

// EventPublisher is implemented by *mq.Publisher.
type EventPublisher interface {
	PublishWithContext(ctx context.Context, routingKey string, payload any) error
}

// RateLimiter is implemented by *util.RateLimiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
