package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cogmanager/internal/model"
	"cogmanager/internal/push"
	"cogmanager/pkg/logger"
)

// SendRequest is a direct push to every device of one user.
type SendRequest struct {
	UserID string
	Title  string
	Body   string
	Data   map[string]interface{}
}

type PushService struct {
	subs      SubscriptionStore
	notifier  Notifier
	limiter   RateLimiter
	publicKey string
	logger    *zap.Logger
}

func NewPushService(subs SubscriptionStore, notifier Notifier, publicKey string, logger *zap.Logger) *PushService {
	return &PushService{subs: subs, notifier: notifier, publicKey: publicKey, logger: logger}
}

// WithRateLimiter limits SendLimited per target user.
func (s *PushService) WithRateLimiter(l RateLimiter) *PushService {
	s.limiter = l
	return s
}

// VAPIDPublicKey is the application server key browsers subscribe with.
func (s *PushService) VAPIDPublicKey() string {
	return s.publicKey
}

func validEndpoint(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "https" || u.Scheme == "http"
}

// Subscribe stores (or refreshes the keys of) a browser subscription.
func (s *PushService) Subscribe(ctx context.Context, userID, endpoint, p256dh, auth string) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	if !validEndpoint(endpoint) {
		return fmt.Errorf("%w: subscription.endpoint must be an absolute URL", ErrValidation)
	}
	if strings.TrimSpace(p256dh) == "" || strings.TrimSpace(auth) == "" {
		return fmt.Errorf("%w: subscription.keys.p256dh and subscription.keys.auth are required", ErrValidation)
	}

	sub := &model.PushSubscription{UserID: userID, Endpoint: endpoint, P256dh: p256dh, Auth: auth}
	if err := s.subs.Upsert(ctx, sub); err != nil {
		return fmt.Errorf("%w: save subscription: %v", ErrStorage, err)
	}
	logger.WithTrace(ctx, s.logger).Info("Push subscription stored",
		zap.String("user_id", userID),
		zap.String("subscription_id", sub.ID),
	)
	return nil
}

// Unsubscribe removes the caller's subscription for endpoint; a missing one is not an error.
func (s *PushService) Unsubscribe(ctx context.Context, userID, endpoint string) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	if endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrValidation)
	}
	removed, err := s.subs.Delete(ctx, userID, endpoint)
	if err != nil {
		return fmt.Errorf("%w: delete subscription: %v", ErrStorage, err)
	}
	logger.WithTrace(ctx, s.logger).Info("Push subscription removed",
		zap.String("user_id", userID),
		zap.Bool("existed", removed),
	)
	return nil
}

func (r SendRequest) validate() error {
	if r.UserID == "" {
		return fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if _, err := uuid.Parse(r.UserID); err != nil {
		return fmt.Errorf("%w: userId must be a uuid", ErrValidation)
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	return nil
}

// Send pushes req to every subscription of the user.
func (s *PushService) Send(ctx context.Context, req SendRequest) (push.Tally, error) {
	if err := req.validate(); err != nil {
		return push.Tally{}, err
	}

	data := req.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	if _, ok := data["url"]; !ok {
		data["url"] = "/"
	}

	tally := s.notifier.Notify(ctx, []push.Notice{{
		UserID: req.UserID,
		Payload: model.NotificationPayload{
			Title: req.Title,
			Body:  req.Body,
			Tag:   "direct",
			Data:  data,
		},
	}})
	if tally.LookupErrors > 0 {
		return tally, fmt.Errorf("%w: load subscriptions for %s", ErrStorage, req.UserID)
	}
	return tally, nil
}

// SendLimited is Send behind the per-user rate limit.
func (s *PushService) SendLimited(ctx context.Context, req SendRequest) (push.Tally, error) {
	if err := req.validate(); err != nil {
		return push.Tally{}, err
	}
	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, req.UserID)
		if err != nil {
			logger.WithTrace(ctx, s.logger).Warn("Rate limiter unavailable, allowing push", zap.Error(err))
		}
		if !ok {
			return push.Tally{}, fmt.Errorf("%w: too many pushes for %s", ErrRateLimited, req.UserID)
		}
	}
	return s.Send(ctx, req)
}
