package db

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"cogmanager/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DBConfig{Host: "pg", Port: 5432, User: "app", Password: "p@ss word", Name: "cog"})
	assert.Equal(t, "postgres://app:p%40ss%20word@pg:5432/cog?sslmode=disable", dsn)

	dsn = DSN(config.DBConfig{Host: "pg", Port: 6543, User: "u", Name: "postgres", SSLMode: "require"})
	assert.True(t, strings.HasSuffix(dsn, "sslmode=require"))
}

func TestTruncateSQL(t *testing.T) {
	assert.Equal(t, "unknown", truncateSQL(""))
	assert.Equal(t, "SELECT 1", truncateSQL("SELECT 1"))

	long := strings.Repeat("x", 250)
	got := truncateSQL(long)
	assert.Len(t, got, 203)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestSlowQueryTracer_StoresStartInContext(t *testing.T) {
	tracer := NewSlowQueryTracer(zap.NewNop(), 0)
	assert.Equal(t, 100*time.Millisecond, tracer.slowThreshold)

	ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	assert.True(t, ok)
	assert.Equal(t, "SELECT 1", start.sql)

	// fast query: nothing to record, must not panic
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{})
	tracer.TraceQueryEnd(context.Background(), nil, pgx.TraceQueryEndData{})
}
