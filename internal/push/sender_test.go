package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cogmanager/internal/model"
	"cogmanager/pkg/circuitbreaker"
	"cogmanager/pkg/config"
)

type stubClient struct {
	status int
	calls  int
	last   *http.Request
}

func (c *stubClient) Do(req *http.Request) (*http.Response, error) {
	c.calls++
	c.last = req
	return &http.Response{
		StatusCode: c.status,
		Body:       io.NopCloser(strings.NewReader("push service says no")),
		Header:     http.Header{},
	}, nil
}

func testConfig(t *testing.T) config.PushConfig {
	t.Helper()
	priv, pub, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	return config.PushConfig{
		VAPIDPublicKey:  pub,
		VAPIDPrivateKey: priv,
		Subscriber:      "ops@cogmanager.test",
		TTLSeconds:      60,
	}
}

func testSubscription(t *testing.T) model.PushSubscription {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)
	return model.PushSubscription{
		ID:       "sub-1",
		UserID:   "u1",
		Endpoint: "https://push.example.test/send/abc",
		P256dh:   base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		Auth:     base64.RawURLEncoding.EncodeToString(auth),
	}
}

func TestWebPushSender_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusCreated, nil},
		{http.StatusOK, nil},
		{http.StatusGone, ErrSubscriptionGone},
		{http.StatusNotFound, ErrSubscriptionGone},
		{http.StatusTooManyRequests, ErrDeliveryFailed},
		{http.StatusInternalServerError, ErrDeliveryFailed},
	}
	cfg := testConfig(t)
	sub := testSubscription(t)
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client := &stubClient{status: tt.status}
			s := NewWebPushSender(cfg, zap.NewNop(), WithHTTPClient(client))

			err := s.Send(context.Background(), sub, []byte(`{"title":"hi"}`))
			assert.Equal(t, 1, client.calls)
			assert.Equal(t, sub.Endpoint, client.last.URL.String())
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestWebPushSender_StatusErrorCarriesCode(t *testing.T) {
	s := NewWebPushSender(testConfig(t), zap.NewNop(), WithHTTPClient(&stubClient{status: http.StatusBadRequest}))

	err := s.Send(context.Background(), testSubscription(t), []byte(`{}`))
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, "push service says no", se.Body)
}

func TestWebPushSender_DisabledWithoutKeys(t *testing.T) {
	client := &stubClient{status: http.StatusCreated}
	s := NewWebPushSender(config.PushConfig{}, zap.NewNop(), WithHTTPClient(client))

	assert.False(t, s.Enabled())
	assert.ErrorIs(t, s.Send(context.Background(), testSubscription(t), []byte(`{}`)), ErrPushDisabled)
	assert.Zero(t, client.calls)
}

func TestWebPushSender_BreakerOpensOnServerErrors(t *testing.T) {
	client := &stubClient{status: http.StatusBadGateway}
	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Hour,
	})
	s := NewWebPushSender(testConfig(t), zap.NewNop(), WithHTTPClient(client), WithBreaker(cb))
	sub := testSubscription(t)

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, s.Send(context.Background(), sub, []byte(`{}`)), ErrDeliveryFailed)
	}
	err := s.Send(context.Background(), sub, []byte(`{}`))
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Equal(t, 2, client.calls, "open breaker must not reach the push service")
}
