package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"cogmanager/internal/model"
)

type SubscriptionRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewSubscriptionRepository(db *pgxpool.Pool, logger *zap.Logger) *SubscriptionRepository {
	return &SubscriptionRepository{db: db, logger: logger}
}

// Upsert 保存订阅；同一 (user, endpoint) 重新订阅时更新密钥
func (r *SubscriptionRepository) Upsert(ctx context.Context, s *model.PushSubscription) error {
	r.logger.Debug("Upserting push subscription", zap.String("user_id", s.UserID))
	query := `
		INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, endpoint)
		DO UPDATE SET p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth, updated_at = NOW()
		RETURNING id::text, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, s.UserID, s.Endpoint, s.P256dh, s.Auth).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to upsert push subscription",
			zap.Error(err),
			zap.String("user_id", s.UserID),
		)
		return err
	}
	r.logger.Info("Push subscription saved",
		zap.String("subscription_id", s.ID),
		zap.String("user_id", s.UserID),
	)
	return nil
}

// Delete removes the user's subscription for endpoint and reports whether one existed.
func (r *SubscriptionRepository) Delete(ctx context.Context, userID, endpoint string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM push_subscriptions WHERE user_id = $1 AND endpoint = $2`,
		userID, endpoint,
	)
	if err != nil {
		r.logger.Error("Failed to delete push subscription",
			zap.Error(err),
			zap.String("user_id", userID),
		)
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *SubscriptionRepository) ListByUser(ctx context.Context, userID string) ([]model.PushSubscription, error) {
	query := `
		SELECT id::text, user_id::text, endpoint, p256dh, auth, created_at, updated_at
		FROM push_subscriptions
		WHERE user_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to list push subscriptions",
			zap.Error(err),
			zap.String("user_id", userID),
		)
		return nil, err
	}

	subs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.PushSubscription, error) {
		var s model.PushSubscription
		err := row.Scan(&s.ID, &s.UserID, &s.Endpoint, &s.P256dh, &s.Auth, &s.CreatedAt, &s.UpdatedAt)
		return s, err
	})
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// DeleteByIDs 批量删除失效订阅
func (r *SubscriptionRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM push_subscriptions WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		r.logger.Error("Failed to delete push subscriptions",
			zap.Error(err),
			zap.Int("count", len(ids)),
		)
		return 0, err
	}
	r.logger.Info("Invalid push subscriptions removed",
		zap.Int64("rows_affected", tag.RowsAffected()),
	)
	return tag.RowsAffected(), nil
}
