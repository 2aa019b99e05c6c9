package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cogmanager/internal/model"
	"cogmanager/internal/push"
	"cogmanager/internal/schedule"
	"cogmanager/internal/service"
	"cogmanager/internal/testutil"
	"cogmanager/pkg/rbac"
	"cogmanager/pkg/util"
)

const (
	secret = "test-secret"
	userA  = "11111111-1111-4111-8111-111111111111"
	task1  = "aaaaaaaa-0000-4000-8000-000000000001"
)

// 2024-05-07 is a Tuesday.
var tuesday = time.Date(2024, 5, 7, 9, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

type env struct {
	store  *testutil.Store
	sender *testutil.Sender
	router *Router
}

func newEnv(t *testing.T, requireServiceRole bool) *env {
	t.Helper()
	store := testutil.NewStore()
	sender := testutil.NewSender()
	log := zap.NewNop()
	clock := service.Clock{Now: func() time.Time { return tuesday }, Loc: time.UTC}
	fanout := push.NewFanout(store, sender, log)

	router := NewRouter(Deps{
		Intentions:                  service.NewIntentionService(store, store, clock, log),
		Push:                        service.NewPushService(store, fanout, "BPUBKEY", log),
		Checks:                      service.NewReminderService(store, store, fanout, clock, log),
		JWTSecret:                   secret,
		RequireServiceRoleForChecks: requireServiceRole,
		Logger:                      log,
	})
	return &env{store: store, sender: sender, router: router}
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := util.GenerateJWT(userID, role, secret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *env) do(t *testing.T, method, path, tok string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	e.router.Engine.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func strPtr(s string) *string { return &s }

func TestDailyHabitScenario(t *testing.T) {
	e := newEnv(t, false)
	e.store.AddTask(model.Task{
		ID:          task1,
		UserID:      userA,
		Title:       "Read",
		TriggerIf:   strPtr("I finish breakfast"),
		ActionThen:  strPtr("I read 10 pages"),
		Periodicity: schedule.Daily,
	})
	tok := token(t, userA, rbac.RoleAuthenticated)

	w, body := e.do(t, http.MethodPost, "/push/subscribe", tok, map[string]any{
		"subscription": map[string]any{
			"endpoint": "https://push.example.com/a",
			"keys":     map[string]string{"p256dh": "key", "auth": "secret"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])

	w, body = e.do(t, http.MethodGet, "/push/periodicity-check", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["sent"])
	assert.Equal(t, float64(1), body["checked"])
	sent := e.sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Daily reminder", sent[0].Payload.Title)
	assert.Equal(t, "If I finish breakfast, then I read 10 pages", sent[0].Payload.Body)

	w, body = e.do(t, http.MethodPost, "/intentions/complete", tok, map[string]string{"taskId": task1})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["alreadyCompleted"])
	assert.Equal(t, float64(1), body["streak"])

	w, body = e.do(t, http.MethodPost, "/intentions/complete", tok, map[string]string{"taskId": task1})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["alreadyCompleted"])
	assert.Equal(t, float64(1), body["streak"])
	assert.Equal(t, 1, e.store.CompletionCount(task1))

	w, body = e.do(t, http.MethodGet, "/intentions/complete?taskId="+task1, tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["completedToday"])

	// completed today, nothing left to remind
	w, body = e.do(t, http.MethodGet, "/push/periodicity-check", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body["sent"])
	assert.Len(t, e.sender.Sent(), 1)
}

func TestCompleteErrors(t *testing.T) {
	e := newEnv(t, false)
	e.store.AddTask(model.Task{ID: task1, UserID: userA, Title: "Read", Periodicity: schedule.Daily})
	tok := token(t, userA, rbac.RoleAuthenticated)
	other := token(t, "33333333-3333-4333-8333-333333333333", rbac.RoleAuthenticated)

	tests := []struct {
		name   string
		tok    string
		body   any
		status int
	}{
		{"no token", "", map[string]string{"taskId": task1}, http.StatusUnauthorized},
		{"bad token", "garbage", map[string]string{"taskId": task1}, http.StatusUnauthorized},
		{"missing task id", tok, map[string]string{}, http.StatusBadRequest},
		{"malformed task id", tok, map[string]string{"taskId": "nope"}, http.StatusBadRequest},
		{"not owned", other, map[string]string{"taskId": task1}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := e.do(t, http.MethodPost, "/intentions/complete", tt.tok, tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
	assert.Equal(t, 0, e.store.CompletionCount(task1))
}

func TestHistory(t *testing.T) {
	e := newEnv(t, false)
	e.store.AddTask(model.Task{ID: task1, UserID: userA, Title: "Read", Periodicity: schedule.Daily})
	tok := token(t, userA, rbac.RoleAuthenticated)

	_, _ = e.do(t, http.MethodPost, "/intentions/complete", tok, map[string]string{"taskId": task1})

	w, body := e.do(t, http.MethodGet, "/intentions/history?days=7&taskId="+task1, tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"2024-05-07"}, body["dates"])
	assert.Equal(t, float64(1), body["streak"])

	w, _ = e.do(t, http.MethodGet, "/intentions/history?days=abc&taskId="+task1, tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPushSendRequiresServiceRole(t *testing.T) {
	e := newEnv(t, false)
	require.NoError(t, e.store.Upsert(context.Background(), &model.PushSubscription{
		UserID: userA, Endpoint: "https://push.example.com/a", P256dh: "k", Auth: "a",
	}))
	req := map[string]any{"userId": userA, "title": "Hello", "body": "world"}

	w, _ := e.do(t, http.MethodPost, "/push/send", token(t, userA, rbac.RoleAuthenticated), req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body := e.do(t, http.MethodPost, "/push/send", token(t, "service", rbac.RoleService), req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["sent"])
	assert.Equal(t, float64(0), body["removed"])
	require.Len(t, e.sender.Sent(), 1)
	assert.Equal(t, "/", e.sender.Sent()[0].Payload.Data["url"])

	w, body = e.do(t, http.MethodPost, "/push/send", token(t, "service", rbac.RoleService), map[string]any{"userId": userA})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "title is required", body["error"])
}

func TestUnsubscribe(t *testing.T) {
	e := newEnv(t, false)
	tok := token(t, userA, rbac.RoleAuthenticated)
	require.NoError(t, e.store.Upsert(context.Background(), &model.PushSubscription{
		UserID: userA, Endpoint: "https://push.example.com/a", P256dh: "k", Auth: "a",
	}))

	w, body := e.do(t, http.MethodDelete, "/push/subscribe", tok, map[string]string{"endpoint": "https://push.example.com/a"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Empty(t, e.store.Subscriptions())
}

func TestCheckEndpointsAuth(t *testing.T) {
	e := newEnv(t, true)

	w, _ := e.do(t, http.MethodGet, "/push/streak-reminder", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = e.do(t, http.MethodGet, "/push/streak-reminder", token(t, userA, rbac.RoleAuthenticated), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	for _, path := range []string{
		"/push/periodicity-check",
		"/push/daily-completion-check",
		"/push/streak-reminder",
		"/push/check-notifications",
	} {
		w, body := e.do(t, http.MethodGet, path, token(t, "service", rbac.RoleService), nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, true, body["success"], path)
	}
}

type failingChecks struct{}

func (failingChecks) Run(context.Context, string) (*service.CheckResult, error) {
	return nil, errors.New("connection refused")
}

func TestCheckStorageFailureIsGeneric(t *testing.T) {
	r := NewRouter(Deps{Checks: failingChecks{}, JWTSecret: secret, Logger: zap.NewNop()})
	req := httptest.NewRequest(http.MethodGet, "/push/periodicity-check", nil)
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealthEndpoints(t *testing.T) {
	r := NewRouter(Deps{DB: pinger{err: errors.New("down")}, JWTSecret: secret, Logger: zap.NewNop()})

	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))

	w = httptest.NewRecorder()
	r.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Trace-ID", "abc")
	r.Engine.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get("X-Trace-ID"))
}

func TestVAPIDPublicKey(t *testing.T) {
	e := newEnv(t, false)
	w, body := e.do(t, http.MethodGet, "/push/vapid-public-key", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "BPUBKEY", body["publicKey"])
}
