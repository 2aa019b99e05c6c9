package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"cogmanager/contracts/mq"
	"cogmanager/internal/push"
	"cogmanager/internal/service"
	"cogmanager/pkg/logger"
	"cogmanager/pkg/util"
)

const handlerName = "push.requested"

// PushSender is implemented by *service.PushService.
type PushSender interface {
	Send(ctx context.Context, req service.SendRequest) (push.Tally, error)
}

// Deduper is implemented by *util.Deduper.
type Deduper interface {
	AcquireOnce(ctx context.Context, handler, key string) bool
	Release(ctx context.Context, handler, key string)
}

type PushRequestedHandler struct {
	pushes PushSender
	dedup  Deduper
	logger *zap.Logger
}

// NewPushRequestedHandler builds the handler; dedup may be nil.
func NewPushRequestedHandler(pushes PushSender, dedup Deduper, logger *zap.Logger) *PushRequestedHandler {
	return &PushRequestedHandler{pushes: pushes, dedup: dedup, logger: logger}
}

// Handle -- 把 push.requested 事件投递到用户的所有订阅
func (h *PushRequestedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var p mq.PushRequestedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error("Failed to unmarshal push requested payload", zap.Error(err))
		return err
	}

	if p.RequestID != "" && h.dedup != nil {
		if !h.dedup.AcquireOnce(ctx, handlerName, p.RequestID) {
			return nil
		}
	}

	tally, err := h.pushes.Send(ctx, service.SendRequest{
		UserID: p.UserID,
		Title:  p.Title,
		Body:   p.Body,
		Data:   p.Data,
	})
	if err != nil {
		log.Error("Failed to deliver requested push",
			zap.String("request_id", p.RequestID),
			zap.String("user_id", p.UserID),
			zap.Error(err),
		)
		if errors.Is(err, service.ErrValidation) {
			return err
		}
		// 失败后释放去重锁，重新投递时可再次处理
		if p.RequestID != "" && h.dedup != nil {
			h.dedup.Release(ctx, handlerName, p.RequestID)
		}
		return fmt.Errorf("%w: %w", util.ErrTransient, err)
	}

	log.Info("Requested push delivered",
		zap.String("request_id", p.RequestID),
		zap.String("user_id", p.UserID),
		zap.Int("sent", tally.Sent),
		zap.Int("failed", tally.Failed),
		zap.Int("removed", tally.Removed),
	)
	return nil
}
