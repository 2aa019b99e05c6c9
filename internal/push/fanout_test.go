package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cogmanager/internal/model"
)

type fakeStore struct {
	subs       map[string][]model.PushSubscription
	listErr    map[string]error
	deleted    [][]string
	deleteErr  error
	panicsUser string
}

func (s *fakeStore) ListByUser(_ context.Context, userID string) ([]model.PushSubscription, error) {
	if userID == s.panicsUser {
		panic("corrupt row")
	}
	if err := s.listErr[userID]; err != nil {
		return nil, err
	}
	return s.subs[userID], nil
}

func (s *fakeStore) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	s.deleted = append(s.deleted, ids)
	return int64(len(ids)), nil
}

type sent struct {
	subID   string
	payload model.NotificationPayload
}

type fakeSender struct {
	errs     map[string]error
	calls    []sent
	panicsOn string
}

func (s *fakeSender) Send(_ context.Context, sub model.PushSubscription, body []byte) error {
	var p model.NotificationPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return err
	}
	s.calls = append(s.calls, sent{subID: sub.ID, payload: p})
	if sub.ID == s.panicsOn {
		panic("nil pointer in transport")
	}
	return s.errs[sub.ID]
}

func subs(userID string, ids ...string) []model.PushSubscription {
	out := make([]model.PushSubscription, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.PushSubscription{ID: id, UserID: userID, Endpoint: "https://push.example/" + id})
	}
	return out
}

func notice(userID, title string) Notice {
	return Notice{UserID: userID, Payload: model.NotificationPayload{Title: title}}
}

func TestNotify_SecondSubscriptionGone(t *testing.T) {
	store := &fakeStore{subs: map[string][]model.PushSubscription{
		"u1": subs("u1", "s1", "s2", "s3"),
	}}
	sender := &fakeSender{errs: map[string]error{
		"s2": fmt.Errorf("%w: status 410", ErrSubscriptionGone),
	}}

	tally := NewFanout(store, sender, zap.NewNop()).Notify(context.Background(), []Notice{notice("u1", "Daily reminder")})

	require.Len(t, sender.calls, 3)
	assert.Equal(t, "s1", sender.calls[0].subID)
	assert.Equal(t, "s3", sender.calls[2].subID)
	assert.Equal(t, Tally{Users: 1, UsersNotified: 1, Attempts: 3, Sent: 2, Failed: 1, Removed: 1}, tally)
	assert.Equal(t, [][]string{{"s2"}}, store.deleted)
}

func TestNotify_SecondSubscriptionThrows(t *testing.T) {
	store := &fakeStore{subs: map[string][]model.PushSubscription{
		"u1": subs("u1", "s1", "s2", "s3"),
	}}
	sender := &fakeSender{errs: map[string]error{
		"s2": fmt.Errorf("%w: connection reset", ErrDeliveryFailed),
	}}

	tally := NewFanout(store, sender, zap.NewNop()).Notify(context.Background(), []Notice{notice("u1", "x")})

	assert.Len(t, sender.calls, 3)
	assert.Equal(t, 2, tally.Sent)
	assert.Equal(t, 1, tally.Failed)
	assert.Zero(t, tally.Removed)
	assert.Empty(t, store.deleted)
}

func TestNotify_OneBadUserDoesNotStopOthers(t *testing.T) {
	store := &fakeStore{
		subs: map[string][]model.PushSubscription{
			"u1": subs("u1", "a"),
			"u3": subs("u3", "c"),
		},
		listErr:    map[string]error{"u2": errors.New("connection refused")},
		panicsUser: "u4",
	}
	sender := &fakeSender{}

	notices := []Notice{notice("u1", "1"), notice("u2", "2"), notice("u4", "4"), notice("u3", "3")}
	tally := NewFanout(store, sender, zap.NewNop()).Notify(context.Background(), notices)

	assert.Equal(t, 4, tally.Users)
	assert.Equal(t, 2, tally.LookupErrors)
	assert.Equal(t, 2, tally.UsersNotified)
	assert.Equal(t, 2, tally.Sent)
	require.Len(t, sender.calls, 2)
	assert.Equal(t, "a", sender.calls[0].subID)
	assert.Equal(t, "c", sender.calls[1].subID)
}

func TestNotify_PanicKeepsEarlierAttempts(t *testing.T) {
	store := &fakeStore{subs: map[string][]model.PushSubscription{
		"u1": subs("u1", "s1", "s2", "s3"),
		"u2": subs("u2", "s4"),
	}}
	sender := &fakeSender{
		errs:     map[string]error{"s1": fmt.Errorf("%w: status 404", ErrSubscriptionGone)},
		panicsOn: "s3",
	}
	f := NewFanout(store, sender, zap.NewNop())

	tally := f.Notify(context.Background(), []Notice{notice("u1", "hi"), notice("u2", "hi")})

	assert.Equal(t, 1, tally.LookupErrors)
	assert.Equal(t, 2, tally.Sent, "s2 before the panic and s4 after it")
	assert.Equal(t, 1, tally.Failed)
	assert.Equal(t, 3, tally.Attempts)
	assert.Equal(t, 2, tally.UsersNotified)
	assert.Equal(t, 1, tally.Removed)
	require.Len(t, store.deleted, 1)
	assert.Equal(t, []string{"s1"}, store.deleted[0])
}

func TestNotify_GroupsByUserAndSkipsGoneForLaterPayloads(t *testing.T) {
	store := &fakeStore{subs: map[string][]model.PushSubscription{
		"u1": subs("u1", "s1", "s2"),
		"u2": nil,
	}}
	sender := &fakeSender{errs: map[string]error{"s1": ErrSubscriptionGone}}

	notices := []Notice{notice("u1", "first"), notice("u2", "nobody"), notice("u1", "second")}
	tally := NewFanout(store, sender, zap.NewNop()).WithDefaultIcon("/icon.png").Notify(context.Background(), notices)

	// first payload hits s1 (gone) and s2; second only s2
	require.Len(t, sender.calls, 3)
	assert.Equal(t, "first", sender.calls[0].payload.Title)
	assert.Equal(t, "second", sender.calls[2].payload.Title)
	assert.Equal(t, "s2", sender.calls[2].subID)
	assert.Equal(t, "/icon.png", sender.calls[0].payload.Icon)

	assert.Equal(t, 2, tally.Users)
	assert.Equal(t, 1, tally.UsersNotified)
	assert.Equal(t, 3, tally.Attempts)
	assert.Equal(t, 2, tally.Sent)
	assert.Equal(t, 1, tally.Removed)
	assert.Equal(t, [][]string{{"s1"}}, store.deleted)
}

func TestNotify_PruneFailureIsNotFatal(t *testing.T) {
	store := &fakeStore{
		subs:      map[string][]model.PushSubscription{"u1": subs("u1", "s1")},
		deleteErr: errors.New("db down"),
	}
	sender := &fakeSender{errs: map[string]error{"s1": ErrSubscriptionGone}}

	tally := NewFanout(store, sender, zap.NewNop()).Notify(context.Background(), []Notice{notice("u1", "x")})
	assert.Equal(t, 1, tally.Failed)
	assert.Zero(t, tally.Removed)
}

func TestNotify_Empty(t *testing.T) {
	tally := NewFanout(&fakeStore{}, &fakeSender{}, zap.NewNop()).Notify(context.Background(), nil)
	assert.Equal(t, Tally{}, tally)
}
