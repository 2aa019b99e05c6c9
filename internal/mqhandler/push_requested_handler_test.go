package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cogmanager/contracts/mq"
	"cogmanager/internal/model"
	"cogmanager/internal/push"
	"cogmanager/internal/service"
	"cogmanager/internal/testutil"
	"cogmanager/pkg/util"
)

const userA = "11111111-1111-4111-8111-111111111111"

type fixture struct {
	store   *testutil.Store
	sender  *testutil.Sender
	handler *PushRequestedHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := testutil.NewStore()
	sender := testutil.NewSender()
	log := zap.NewNop()
	pushes := service.NewPushService(store, push.NewFanout(store, sender, log), "", log)
	require.NoError(t, store.Upsert(context.Background(), &model.PushSubscription{
		UserID: userA, Endpoint: "https://push.example.com/a", P256dh: "k", Auth: "a",
	}))

	return &fixture{
		store:   store,
		sender:  sender,
		handler: NewPushRequestedHandler(pushes, util.NewDeduper(rdb, time.Hour, log), log),
	}
}

func payload(t *testing.T, p mq.PushRequestedPayload) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return raw
}

func TestPushRequested_DeliversOnce(t *testing.T) {
	f := newFixture(t)
	raw := payload(t, mq.PushRequestedPayload{RequestID: "req-1", UserID: userA, Title: "Hi", Body: "there"})

	require.NoError(t, f.handler.Handle(context.Background(), raw))
	require.NoError(t, f.handler.Handle(context.Background(), raw))

	sent := f.sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Hi", sent[0].Payload.Title)
	assert.Equal(t, "direct", sent[0].Payload.Tag)
}

func TestPushRequested_InvalidPayloadIsNotRetryable(t *testing.T) {
	f := newFixture(t)

	err := f.handler.Handle(context.Background(), json.RawMessage(`{`))
	require.Error(t, err)
	retryable, _ := util.IsRetryableError(err)
	assert.False(t, retryable)

	err = f.handler.Handle(context.Background(), payload(t, mq.PushRequestedPayload{RequestID: "req-2", UserID: "nope", Title: "Hi"}))
	require.ErrorIs(t, err, service.ErrValidation)
	retryable, _ = util.IsRetryableError(err)
	assert.False(t, retryable)
	assert.Empty(t, f.sender.Sent())
}

func TestPushRequested_StorageFailureReleasesDedup(t *testing.T) {
	f := newFixture(t)
	f.store.ErrListByUser = map[string]error{userA: errors.New("connection reset")}
	raw := payload(t, mq.PushRequestedPayload{RequestID: "req-3", UserID: userA, Title: "Hi"})

	err := f.handler.Handle(context.Background(), raw)
	require.ErrorIs(t, err, service.ErrStorage)
	retryable, errType := util.IsRetryableError(err)
	assert.True(t, retryable)
	assert.Equal(t, "transient", errType)

	f.store.ErrListByUser = nil
	require.NoError(t, f.handler.Handle(context.Background(), raw))
	assert.Len(t, f.sender.Sent(), 1)
}
