package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"cogmanager/internal/model"
	"cogmanager/pkg/circuitbreaker"
	"cogmanager/pkg/config"
)

var (
	// ErrSubscriptionGone means the push service answered 404 or 410; the subscription must be deleted.
	ErrSubscriptionGone = errors.New("push subscription gone")
	// ErrDeliveryFailed covers every other unsuccessful attempt.
	ErrDeliveryFailed = errors.New("push delivery failed")
	// ErrPushDisabled is returned when no VAPID keys are configured.
	ErrPushDisabled = errors.New("push delivery disabled")
)

// StatusError carries the push service status of a failed attempt.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("push service returned %d: %s", e.StatusCode, e.Body)
}

// Sender delivers one encrypted payload to one subscription.
type Sender interface {
	Send(ctx context.Context, sub model.PushSubscription, payload []byte) error
}

type WebPushSender struct {
	cfg     config.PushConfig
	client  webpush.HTTPClient
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

type Option func(*WebPushSender)

// WithHTTPClient replaces the client used to reach push services.
func WithHTTPClient(c webpush.HTTPClient) Option {
	return func(s *WebPushSender) { s.client = c }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(s *WebPushSender) { s.breaker = cb }
}

func NewWebPushSender(cfg config.PushConfig, logger *zap.Logger, opts ...Option) *WebPushSender {
	if cfg.TTLSeconds <= 0 {
		cfg.TTLSeconds = 60 * 60 * 24
	}
	if cfg.Urgency == "" {
		cfg.Urgency = string(webpush.UrgencyNormal)
	}

	s := &WebPushSender{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	bcfg := circuitbreaker.DefaultConfig()
	// gone subscriptions say nothing about the push service's health
	bcfg.IsFailure = func(err error) bool { return !errors.Is(err, ErrSubscriptionGone) }
	bcfg.OnStateChange = func(from, to circuitbreaker.State) {
		logger.Warn("Push circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	s.breaker = circuitbreaker.NewCircuitBreaker(bcfg)

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether VAPID keys are configured.
func (s *WebPushSender) Enabled() bool {
	return s.cfg.VAPIDPublicKey != "" && s.cfg.VAPIDPrivateKey != ""
}

func (s *WebPushSender) Send(ctx context.Context, sub model.PushSubscription, payload []byte) error {
	if !s.Enabled() {
		s.logger.Warn("VAPID keys not configured, skipping push",
			zap.String("subscription_id", sub.ID),
		)
		return ErrPushDisabled
	}

	err := s.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		return s.send(ctx, sub, payload)
	})
	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return err
}

func (s *WebPushSender) send(ctx context.Context, sub model.PushSubscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.cfg.Subscriber,
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
		TTL:             s.cfg.TTLSeconds,
		Urgency:         webpush.Urgency(s.cfg.Urgency),
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	return classifyStatus(resp)
}

func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: status %d", ErrSubscriptionGone, resp.StatusCode)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, &StatusError{StatusCode: resp.StatusCode, Body: string(body)})
	}
}
