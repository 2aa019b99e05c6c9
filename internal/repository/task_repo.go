package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"cogmanager/internal/model"
)

type TaskRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewTaskRepository(db *pgxpool.Pool, logger *zap.Logger) *TaskRepository {
	return &TaskRepository{db: db, logger: logger}
}

const taskColumns = `
	id::text, user_id::text, title, trigger_if, action_then, COALESCE(periodicity, ''),
	COALESCE(custom_days, '{}'), current_streak, best_streak, last_completed_at,
	status, due_date, created_at
`

func scanTask(row pgx.Row) (model.Task, error) {
	var t model.Task
	var due pgtype.Date
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Title,
		&t.TriggerIf,
		&t.ActionThen,
		&t.Periodicity,
		&t.CustomDays,
		&t.CurrentStreak,
		&t.BestStreak,
		&t.LastCompletedAt,
		&t.Status,
		&due,
		&t.CreatedAt,
	)
	if due.Valid {
		d := due.Time
		t.DueDate = &d
	}
	return t, err
}

// GetForUser 获取属于 userID 的任务，不存在或不属于该用户时返回 ErrNotFound
func (r *TaskRepository) GetForUser(ctx context.Context, taskID, userID string) (*model.Task, error) {
	r.logger.Debug("Getting task for user",
		zap.String("task_id", taskID),
		zap.String("user_id", userID),
	)
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND user_id = $2`

	t, err := scanTask(r.db.QueryRow(ctx, query, taskID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get task",
			zap.Error(err),
			zap.String("task_id", taskID),
		)
		return nil, err
	}
	return &t, nil
}

// GetStreak re-reads the counters maintained by the completion trigger.
func (r *TaskRepository) GetStreak(ctx context.Context, taskID string) (current, best int, err error) {
	query := `SELECT current_streak, best_streak FROM tasks WHERE id = $1`
	err = r.db.QueryRow(ctx, query, taskID).Scan(&current, &best)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, ErrNotFound
		}
		r.logger.Error("Failed to read streak",
			zap.Error(err),
			zap.String("task_id", taskID),
		)
		return 0, 0, err
	}
	return current, best, nil
}

// ListOpenIntentions 列出所有未完成的 if-then 意图
func (r *TaskRepository) ListOpenIntentions(ctx context.Context) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + `
		FROM tasks
		WHERE trigger_if IS NOT NULL AND trigger_if <> ''
		AND status <> 'completed'
		ORDER BY user_id, created_at
	`
	return r.list(ctx, "open_intentions", query)
}

// ListActiveStreaks lists open intentions whose current streak is positive.
func (r *TaskRepository) ListActiveStreaks(ctx context.Context) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + `
		FROM tasks
		WHERE trigger_if IS NOT NULL AND trigger_if <> ''
		AND status <> 'completed'
		AND current_streak > 0
		ORDER BY user_id, current_streak DESC
	`
	return r.list(ctx, "active_streaks", query)
}

// ListDueBy 列出截止日期不晚于 day 且未完成的任务
func (r *TaskRepository) ListDueBy(ctx context.Context, day time.Time) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + `
		FROM tasks
		WHERE due_date IS NOT NULL AND due_date <= $1
		AND status <> 'completed'
		ORDER BY user_id, due_date
	`
	return r.list(ctx, "due_by", query, dateParam(day))
}

func (r *TaskRepository) list(ctx context.Context, name, query string, args ...any) ([]model.Task, error) {
	r.logger.Debug("Listing tasks", zap.String("query", name))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query tasks",
			zap.Error(err),
			zap.String("query", name),
		)
		return nil, err
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			r.logger.Error("Failed to scan task row",
				zap.Error(err),
				zap.String("query", name),
			)
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	r.logger.Info("Tasks listed successfully",
		zap.String("query", name),
		zap.Int("count", len(tasks)),
	)
	return tasks, nil
}
