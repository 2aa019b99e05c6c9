package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"cogmanager/internal/model"
	"cogmanager/pkg/metrics"
	"cogmanager/pkg/otel"
)

// SubscriptionStore is the storage the fan-out reads from and prunes.
type SubscriptionStore interface {
	ListByUser(ctx context.Context, userID string) ([]model.PushSubscription, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// Notice is one payload addressed to every device of a user.
type Notice struct {
	UserID  string
	Payload model.NotificationPayload
}

type Outcome int

const (
	OutcomeSent Outcome = iota
	OutcomeFailed
	OutcomeGone
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeGone:
		return "gone"
	default:
		return "failed"
	}
}

// Result is the tagged outcome of one delivery attempt.
type Result struct {
	UserID         string
	SubscriptionID string
	Outcome        Outcome
	Err            error
}

// Tally folds the results of a fan-out run.
type Tally struct {
	Users         int `json:"users"`
	UsersNotified int `json:"usersNotified"`
	Attempts      int `json:"attempts"`
	Sent          int `json:"sent"`
	Failed        int `json:"failed"`
	Removed       int `json:"removed"`
	// LookupErrors counts users whose subscriptions could not be loaded.
	LookupErrors int `json:"lookupErrors"`
}

type Fanout struct {
	store       SubscriptionStore
	sender      Sender
	logger      *zap.Logger
	source      string
	defaultIcon string
}

func NewFanout(store SubscriptionStore, sender Sender, logger *zap.Logger) *Fanout {
	return &Fanout{store: store, sender: sender, logger: logger, source: "direct"}
}

// WithSource returns a copy labelled source in metrics and logs.
func (f *Fanout) WithSource(source string) *Fanout {
	c := *f
	c.source = source
	return &c
}

// WithDefaultIcon sets the icon used by payloads that carry none.
func (f *Fanout) WithDefaultIcon(icon string) *Fanout {
	c := *f
	c.defaultIcon = icon
	return &c
}

type userBatch struct {
	userID   string
	payloads []model.NotificationPayload
}

// group keeps users in first-seen order.
func group(notices []Notice) []userBatch {
	index := make(map[string]int)
	var batches []userBatch
	for _, n := range notices {
		i, ok := index[n.UserID]
		if !ok {
			i = len(batches)
			index[n.UserID] = i
			batches = append(batches, userBatch{userID: n.UserID})
		}
		batches[i].payloads = append(batches[i].payloads, n.Payload)
	}
	return batches
}

// Notify delivers every notice to each subscription of its user, one attempt
// each and sequentially. Failures never abort the run; gone subscriptions are
// deleted in one call at the end.
func (f *Fanout) Notify(ctx context.Context, notices []Notice) Tally {
	var tally Tally
	var results []Result

	for _, batch := range group(notices) {
		tally.Users++
		userResults, err := f.notifyUser(ctx, batch)
		if err != nil {
			tally.LookupErrors++
			f.logger.Error("Push fan-out failed for user",
				zap.String("source", f.source),
				zap.String("user_id", batch.userID),
				zap.Int("attempts_before_failure", len(userResults)),
				zap.Error(err),
			)
		}
		// 失败前已完成的投递照常计数，已失效的订阅照常清理
		results = append(results, userResults...)
		for _, r := range userResults {
			if r.Outcome == OutcomeSent {
				tally.UsersNotified++
				break
			}
		}
	}

	var gone []string
	seen := make(map[string]bool)
	for _, r := range results {
		tally.Attempts++
		metrics.IncrementPushDelivery(f.source, r.Outcome.String())
		switch r.Outcome {
		case OutcomeSent:
			tally.Sent++
		case OutcomeGone:
			tally.Failed++
			if !seen[r.SubscriptionID] {
				seen[r.SubscriptionID] = true
				gone = append(gone, r.SubscriptionID)
			}
		default:
			tally.Failed++
		}
	}

	tally.Removed = f.prune(ctx, gone)
	return tally
}

// notifyUser is the failure boundary of one user: errors and panics end here.
// Results of attempts made before a failure are returned with the error.
func (f *Fanout) notifyUser(ctx context.Context, batch userBatch) (results []Result, err error) {
	ctx, span := otel.StartSpan(ctx, "push.notify_user",
		trace.WithAttributes(
			attribute.String("push.source", f.source),
			attribute.Int("push.payloads", len(batch.payloads)),
		),
	)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		otel.RecordError(span, err)
		span.End()
	}()

	subs, err := f.store.ListByUser(ctx, batch.userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		f.logger.Debug("User has no push subscriptions", zap.String("user_id", batch.userID))
		return nil, nil
	}

	goneIDs := make(map[string]bool)
	for _, p := range batch.payloads {
		if p.Icon == "" {
			p.Icon = f.defaultIcon
		}
		body, err := json.Marshal(p)
		if err != nil {
			return results, fmt.Errorf("encode payload: %w", err)
		}
		for _, sub := range subs {
			if goneIDs[sub.ID] {
				continue
			}
			r := f.deliver(ctx, batch.userID, sub, body)
			if r.Outcome == OutcomeGone {
				goneIDs[sub.ID] = true
			}
			results = append(results, r)
		}
	}
	return results, nil
}

func (f *Fanout) deliver(ctx context.Context, userID string, sub model.PushSubscription, body []byte) Result {
	r := Result{UserID: userID, SubscriptionID: sub.ID}
	err := f.sender.Send(ctx, sub, body)
	switch {
	case err == nil:
		r.Outcome = OutcomeSent
	case errors.Is(err, ErrSubscriptionGone):
		r.Outcome = OutcomeGone
		r.Err = err
		f.logger.Info("Push subscription gone, queued for removal",
			zap.String("user_id", userID),
			zap.String("subscription_id", sub.ID),
		)
	default:
		r.Outcome = OutcomeFailed
		r.Err = err
		f.logger.Warn("Push delivery failed",
			zap.String("source", f.source),
			zap.String("user_id", userID),
			zap.String("subscription_id", sub.ID),
			zap.Error(err),
		)
	}
	return r
}

func (f *Fanout) prune(ctx context.Context, ids []string) int {
	if len(ids) == 0 {
		return 0
	}
	n, err := f.store.DeleteByIDs(ctx, ids)
	if err != nil {
		f.logger.Error("Failed to remove gone push subscriptions",
			zap.Strings("subscription_ids", ids),
			zap.Error(err),
		)
		return 0
	}
	metrics.AddSubscriptionsPruned(int(n))
	return int(n)
}
