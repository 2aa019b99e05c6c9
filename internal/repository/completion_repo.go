package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"cogmanager/contracts/mq"
	"cogmanager/internal/streak"
	"cogmanager/pkg/outbox"
	"cogmanager/pkg/trace"
)

const aggregateIntention = "intention"

type CompletionRepository struct {
	db     *pgxpool.Pool
	outbox outbox.EventWriter
	logger *zap.Logger
}

func NewCompletionRepository(db *pgxpool.Pool, events outbox.EventWriter, logger *zap.Logger) *CompletionRepository {
	return &CompletionRepository{db: db, outbox: events, logger: logger}
}

// Record 记录一次完成；同一 (task, day) 已存在时返回 alreadyCompleted=true。
// 首次插入时在同一事务内写入 intention.completed outbox 事件。
func (r *CompletionRepository) Record(ctx context.Context, taskID, userID string, day time.Time) (alreadyCompleted bool, err error) {
	r.logger.Debug("Recording completion",
		zap.String("task_id", taskID),
		zap.String("user_id", userID),
		zap.Time("day", streak.Date(day)),
	)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO intention_completions (task_id, user_id, completed_date)
		VALUES ($1, $2, $3)
		ON CONFLICT (task_id, completed_date) DO NOTHING
	`
	tag, err := tx.Exec(ctx, query, taskID, userID, dateParam(day))
	if err != nil {
		r.logger.Error("Failed to insert completion",
			zap.Error(err),
			zap.String("task_id", taskID),
		)
		return false, err
	}

	if tag.RowsAffected() == 0 {
		r.logger.Info("Completion already recorded",
			zap.String("task_id", taskID),
		)
		return true, nil
	}

	if r.outbox != nil {
		payload := mq.IntentionCompletedPayload{
			TaskID:        taskID,
			UserID:        userID,
			CompletedDate: streak.Date(day).Format("2006-01-02"),
			TraceID:       trace.FromContext(ctx),
		}
		if err := outbox.InsertEventInTx(ctx, tx, r.outbox, aggregateIntention, taskID, mq.RoutingIntentionCompleted, payload); err != nil {
			r.logger.Error("Failed to write outbox event",
				zap.Error(err),
				zap.String("task_id", taskID),
			)
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit completion: %w", err)
	}

	r.logger.Info("Completion recorded",
		zap.String("task_id", taskID),
		zap.String("user_id", userID),
	)
	return false, nil
}

// HasCompleted reports whether a completion exists for (taskID, day).
func (r *CompletionRepository) HasCompleted(ctx context.Context, taskID string, day time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM intention_completions
			WHERE task_id = $1 AND completed_date = $2
		)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query, taskID, dateParam(day)).Scan(&exists); err != nil {
		r.logger.Error("Failed to check completion",
			zap.Error(err),
			zap.String("task_id", taskID),
		)
		return false, err
	}
	return exists, nil
}

// CompletedTaskIDs 批量查询 day 当天已完成的任务
func (r *CompletionRepository) CompletedTaskIDs(ctx context.Context, taskIDs []string, day time.Time) (map[string]bool, error) {
	done := make(map[string]bool, len(taskIDs))
	if len(taskIDs) == 0 {
		return done, nil
	}

	query := `
		SELECT task_id::text FROM intention_completions
		WHERE completed_date = $1 AND task_id = ANY($2::uuid[])
	`
	rows, err := r.db.Query(ctx, query, dateParam(day), taskIDs)
	if err != nil {
		r.logger.Error("Failed to query completions", zap.Error(err), zap.Int("task_count", len(taskIDs)))
		return nil, err
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		done[id] = true
	}
	return done, nil
}

// ListDates returns the completion dates of taskID on or after since, newest first.
func (r *CompletionRepository) ListDates(ctx context.Context, taskID string, since time.Time) ([]time.Time, error) {
	query := `
		SELECT completed_date FROM intention_completions
		WHERE task_id = $1 AND completed_date >= $2
		ORDER BY completed_date DESC
	`
	rows, err := r.db.Query(ctx, query, taskID, dateParam(since))
	if err != nil {
		r.logger.Error("Failed to list completion dates", zap.Error(err), zap.String("task_id", taskID))
		return nil, err
	}

	dates, err := pgx.CollectRows(rows, pgx.RowTo[pgtype.Date])
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		if d.Valid {
			out = append(out, d.Time)
		}
	}
	return out, nil
}
