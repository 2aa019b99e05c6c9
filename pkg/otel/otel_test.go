package otel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cogmanager/pkg/config"
)

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(config.OtelConfig{Enabled: false}, "test", zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	shutdown()
	assert.NotNil(t, Tracer())
}

func TestWithSpanReturnsError(t *testing.T) {
	boom := errors.New("boom")
	err := WithSpan(context.Background(), "op", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, WithSpan(context.Background(), "op", func(context.Context) error { return nil }))
}

func TestMQHeaderCarrier(t *testing.T) {
	headers := map[string]interface{}{"x-trace-id": "abc", "x-count": 3}
	c := NewMQHeaderCarrier(headers)

	c.Set("traceparent", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	assert.Equal(t, "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01", headers["traceparent"])
	assert.Equal(t, "abc", c.Get("x-trace-id"))
	assert.Equal(t, "", c.Get("x-count"))
	assert.ElementsMatch(t, []string{"x-trace-id", "traceparent"}, c.Keys())

	assert.Equal(t, "", NewMQHeaderCarrier(nil).Get("missing"))
}

func TestGinMiddlewarePassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusTeapot, "ok") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}
