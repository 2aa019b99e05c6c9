// Package testutil holds in-memory stores shared by service and API tests.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"cogmanager/internal/model"
	"cogmanager/internal/push"
	"cogmanager/internal/repository"
	"cogmanager/internal/streak"
)

// Store implements the task, completion and subscription stores in memory.
// Record simulates the database streak trigger.
type Store struct {
	mu          sync.Mutex
	tasks       map[string]*model.Task
	order       []string
	completions map[string]map[time.Time]string
	subs        []model.PushSubscription
	nextSubID   int

	// Err* inject failures into the matching calls.
	ErrList       error
	ErrRecord     error
	ErrCompleted  error
	ErrListByUser map[string]error
}

func NewStore() *Store {
	return &Store{
		tasks:         make(map[string]*model.Task),
		completions:   make(map[string]map[time.Time]string),
		ErrListByUser: make(map[string]error),
	}
}

// AddTask stores a copy of t.
func (s *Store) AddTask(t model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Status == "" {
		t.Status = model.TaskStatusTodo
	}
	if _, ok := s.tasks[t.ID]; !ok {
		s.order = append(s.order, t.ID)
	}
	s.tasks[t.ID] = &t
}

// Task returns a copy of the stored task.
func (s *Store) Task(id string) model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.tasks[id]
}

// CompletionCount returns how many completion rows exist for taskID.
func (s *Store) CompletionCount(taskID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completions[taskID])
}

func (s *Store) GetForUser(_ context.Context, taskID, userID string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok || t.UserID != userID {
		return nil, repository.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (s *Store) GetStreak(_ context.Context, taskID string) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return 0, 0, repository.ErrNotFound
	}
	return t.CurrentStreak, t.BestStreak, nil
}

func (s *Store) filter(keep func(*model.Task) bool) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ErrList != nil {
		return nil, s.ErrList
	}
	var out []model.Task
	for _, id := range s.order {
		if t := s.tasks[id]; keep(t) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *Store) ListOpenIntentions(_ context.Context) ([]model.Task, error) {
	return s.filter(func(t *model.Task) bool {
		return t.IsIntention() && t.Status != model.TaskStatusCompleted
	})
}

func (s *Store) ListActiveStreaks(_ context.Context) ([]model.Task, error) {
	return s.filter(func(t *model.Task) bool {
		return t.IsIntention() && t.Status != model.TaskStatusCompleted && t.CurrentStreak > 0
	})
}

func (s *Store) ListDueBy(_ context.Context, day time.Time) ([]model.Task, error) {
	d := streak.Date(day)
	return s.filter(func(t *model.Task) bool {
		return t.DueDate != nil && !streak.Date(*t.DueDate).After(d) && t.Status != model.TaskStatusCompleted
	})
}

func (s *Store) Record(_ context.Context, taskID, userID string, day time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ErrRecord != nil {
		return false, s.ErrRecord
	}
	d := streak.Date(day)
	if s.completions[taskID] == nil {
		s.completions[taskID] = make(map[time.Time]string)
	}
	if _, ok := s.completions[taskID][d]; ok {
		return true, nil
	}
	s.completions[taskID][d] = userID

	if t, ok := s.tasks[taskID]; ok {
		if t.LastCompletedAt != nil && streak.Date(*t.LastCompletedAt).Equal(d.AddDate(0, 0, -1)) {
			t.CurrentStreak++
		} else {
			t.CurrentStreak = 1
		}
		if t.CurrentStreak > t.BestStreak {
			t.BestStreak = t.CurrentStreak
		}
		t.LastCompletedAt = &d
	}
	return false, nil
}

func (s *Store) HasCompleted(_ context.Context, taskID string, day time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ErrCompleted != nil {
		return false, s.ErrCompleted
	}
	_, ok := s.completions[taskID][streak.Date(day)]
	return ok, nil
}

func (s *Store) CompletedTaskIDs(_ context.Context, taskIDs []string, day time.Time) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ErrCompleted != nil {
		return nil, s.ErrCompleted
	}
	d := streak.Date(day)
	out := make(map[string]bool)
	for _, id := range taskIDs {
		if _, ok := s.completions[id][d]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (s *Store) ListDates(_ context.Context, taskID string, since time.Time) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from := streak.Date(since)
	var out []time.Time
	for d := range s.completions[taskID] {
		if !d.Before(from) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].After(out[j]) })
	return out, nil
}

func (s *Store) Upsert(_ context.Context, sub *model.PushSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.subs {
		if s.subs[i].UserID == sub.UserID && s.subs[i].Endpoint == sub.Endpoint {
			s.subs[i].P256dh = sub.P256dh
			s.subs[i].Auth = sub.Auth
			sub.ID = s.subs[i].ID
			return nil
		}
	}
	s.nextSubID++
	sub.ID = fmt.Sprintf("sub-%d", s.nextSubID)
	s.subs = append(s.subs, *sub)
	return nil
}

func (s *Store) Delete(_ context.Context, userID, endpoint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.subs {
		if s.subs[i].UserID == userID && s.subs[i].Endpoint == endpoint {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListByUser(_ context.Context, userID string) ([]model.PushSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ErrListByUser[userID]; err != nil {
		return nil, err
	}
	var out []model.PushSubscription
	for _, sub := range s.subs {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *Store) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.subs[:0]
	var n int64
	for _, sub := range s.subs {
		if drop[sub.ID] {
			n++
			continue
		}
		kept = append(kept, sub)
	}
	s.subs = kept
	return n, nil
}

// Subscriptions returns a copy of every stored subscription.
func (s *Store) Subscriptions() []model.PushSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.PushSubscription(nil), s.subs...)
}

// Delivery is one payload handed to Sender.
type Delivery struct {
	Subscription model.PushSubscription
	Payload      model.NotificationPayload
}

// Sender records deliveries; endpoints listed in Gone answer as gone.
type Sender struct {
	mu         sync.Mutex
	Deliveries []Delivery
	Gone       map[string]bool
	Fail       map[string]bool
}

func NewSender() *Sender {
	return &Sender{Gone: map[string]bool{}, Fail: map[string]bool{}}
}

func (s *Sender) Send(_ context.Context, sub model.PushSubscription, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var p model.NotificationPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return err
	}
	s.Deliveries = append(s.Deliveries, Delivery{Subscription: sub, Payload: p})
	switch {
	case s.Gone[sub.Endpoint]:
		return fmt.Errorf("%w: status 410", push.ErrSubscriptionGone)
	case s.Fail[sub.Endpoint]:
		return fmt.Errorf("%w: %v", push.ErrDeliveryFailed, errors.New("connection reset"))
	}
	return nil
}

// Sent returns a copy of the recorded deliveries.
func (s *Sender) Sent() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Delivery(nil), s.Deliveries...)
}
