package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cogmanager/contracts/mq"
	"cogmanager/internal/model"
	"cogmanager/pkg/outbox"
)

func TestDateParam(t *testing.T) {
	madrid, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)

	// 本地日期为准：UTC 此时仍是 May 6
	d := dateParam(time.Date(2024, 5, 7, 0, 30, 0, 0, madrid))
	assert.True(t, d.Valid)
	assert.Equal(t, time.Date(2024, 5, 7, 0, 0, 0, 0, time.UTC), d.Time)
}

// newTestPool connects to COGMANAGER_TEST_DATABASE_URL and applies the
// migrations into a throwaway schema. Tests skip when the variable is unset.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("COGMANAGER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("COGMANAGER_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	admin, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		admin.Close()
	})

	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema + ",public"
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	ddl, err := os.ReadFile(filepath.Join("..", "..", "migrations", "001_init.sql"))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(ddl))
	require.NoError(t, err)
	return pool
}

func insertTask(t *testing.T, pool *pgxpool.Pool, userID, title string) string {
	t.Helper()
	var id string
	err := pool.QueryRow(context.Background(), `
		INSERT INTO tasks (user_id, title, trigger_if, action_then, periodicity)
		VALUES ($1, $2, 'I wake up', 'I stretch', 'daily')
		RETURNING id::text
	`, userID, title).Scan(&id)
	require.NoError(t, err)
	return id
}

func day(d int) time.Time {
	return time.Date(2024, 5, d, 9, 0, 0, 0, time.UTC)
}

func TestCompletionRepository_RecordIsIdempotent(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	userID := uuid.NewString()
	taskID := insertTask(t, pool, userID, "Stretch")

	events := outbox.NewRepository(pool)
	completions := NewCompletionRepository(pool, events, zap.NewNop())
	tasks := NewTaskRepository(pool, zap.NewNop())

	already, err := completions.Record(ctx, taskID, userID, day(7))
	require.NoError(t, err)
	assert.False(t, already)

	already, err = completions.Record(ctx, taskID, userID, day(7))
	require.NoError(t, err)
	assert.True(t, already)

	done, err := completions.HasCompleted(ctx, taskID, day(7))
	require.NoError(t, err)
	assert.True(t, done)

	current, best, err := tasks.GetStreak(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, 1, current)
	assert.Equal(t, 1, best)

	pending, err := events.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1, "only the first insert writes an event")
	assert.Equal(t, mq.RoutingIntentionCompleted, pending[0].RoutingKey)
}

func TestCompletionRepository_StreakTrigger(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	userID := uuid.NewString()
	taskID := insertTask(t, pool, userID, "Read")

	completions := NewCompletionRepository(pool, nil, zap.NewNop())
	tasks := NewTaskRepository(pool, zap.NewNop())

	for _, d := range []int{5, 6, 7} {
		_, err := completions.Record(ctx, taskID, userID, day(d))
		require.NoError(t, err)
	}
	current, best, err := tasks.GetStreak(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, 3, current)
	assert.Equal(t, 3, best)

	// gap on May 8
	_, err = completions.Record(ctx, taskID, userID, day(9))
	require.NoError(t, err)
	current, best, err = tasks.GetStreak(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, 1, current)
	assert.Equal(t, 3, best)

	dates, err := completions.ListDates(ctx, taskID, day(6))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 7, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC),
	}, dates)
}

func TestCompletionRepository_CompletedTaskIDs(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	userID := uuid.NewString()
	completions := NewCompletionRepository(pool, nil, zap.NewNop())

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, insertTask(t, pool, userID, fmt.Sprintf("Task %d", i)))
	}
	for _, id := range ids[:2] {
		_, err := completions.Record(ctx, id, userID, day(7))
		require.NoError(t, err)
	}
	_, err := completions.Record(ctx, ids[2], userID, day(6))
	require.NoError(t, err)

	done, err := completions.CompletedTaskIDs(ctx, ids, day(7))
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{ids[0]: true, ids[1]: true}, done)

	done, err = completions.CompletedTaskIDs(ctx, nil, day(7))
	require.NoError(t, err)
	assert.Empty(t, done)
}

func TestSubscriptionRepository_Lifecycle(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	repo := NewSubscriptionRepository(pool, zap.NewNop())
	userID := uuid.NewString()

	a := &model.PushSubscription{UserID: userID, Endpoint: "https://push.example.com/a", P256dh: "k1", Auth: "a1"}
	require.NoError(t, repo.Upsert(ctx, a))
	require.NotEmpty(t, a.ID)

	// 重新订阅同一 endpoint 只更新密钥
	again := &model.PushSubscription{UserID: userID, Endpoint: "https://push.example.com/a", P256dh: "k2", Auth: "a2"}
	require.NoError(t, repo.Upsert(ctx, again))
	assert.Equal(t, a.ID, again.ID)

	b := &model.PushSubscription{UserID: userID, Endpoint: "https://push.example.com/b", P256dh: "k", Auth: "a"}
	require.NoError(t, repo.Upsert(ctx, b))

	subs, err := repo.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, subs, 2)

	n, err := repo.DeleteByIDs(ctx, []string{a.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	removed, err := repo.Delete(ctx, userID, "https://push.example.com/b")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repo.Delete(ctx, userID, "https://push.example.com/b")
	require.NoError(t, err)
	assert.False(t, removed)

	subs, err = repo.ListByUser(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestTaskRepository_NewTaskDefaultsToTodo(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	userID := uuid.NewString()
	taskID := insertTask(t, pool, userID, "Meditate")

	task, err := NewTaskRepository(pool, zap.NewNop()).GetForUser(ctx, taskID, userID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusTodo, task.Status)

	_, err = pool.Exec(ctx, `UPDATE tasks SET status = 'pending' WHERE id = $1`, taskID)
	assert.Error(t, err, "unknown statuses are rejected")
}
