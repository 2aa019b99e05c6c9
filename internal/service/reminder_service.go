package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"cogmanager/contracts/mq"
	"cogmanager/internal/config"
	"cogmanager/internal/model"
	"cogmanager/internal/push"
	"cogmanager/internal/schedule"
	"cogmanager/internal/streak"
	"cogmanager/pkg/logger"
	"cogmanager/pkg/metrics"
	"cogmanager/pkg/otel"
	pkgtrace "cogmanager/pkg/trace"
)

// CheckResult is the tally a reminder check reports.
type CheckResult struct {
	Check         string `json:"check"`
	Checked       int    `json:"checked"`
	UsersNotified int    `json:"usersNotified"`
	Sent          int    `json:"sent"`
	Failed        int    `json:"failed"`
	Removed       int    `json:"removed"`
}

type ReminderService struct {
	tasks       TaskStore
	completions CompletionStore
	notifier    Notifier
	events      EventPublisher
	clock       Clock
	logger      *zap.Logger
}

func NewReminderService(tasks TaskStore, completions CompletionStore, notifier Notifier, clock Clock, logger *zap.Logger) *ReminderService {
	return &ReminderService{tasks: tasks, completions: completions, notifier: notifier, clock: clock, logger: logger}
}

// WithEvents publishes a notification.dispatched event after every run.
func (s *ReminderService) WithEvents(p EventPublisher) *ReminderService {
	s.events = p
	return s
}

// Run executes the named check.
func (s *ReminderService) Run(ctx context.Context, check string) (*CheckResult, error) {
	var fn func(context.Context, time.Time) (int, []push.Notice, error)
	switch check {
	case config.CheckPeriodicity:
		fn = s.periodicity
	case config.CheckDailyCompletion:
		fn = s.dailyCompletion
	case config.CheckStreakReminder:
		fn = s.streakReminder
	case config.CheckTaskNotifications:
		fn = s.taskDeadlines
	default:
		return nil, fmt.Errorf("%w: unknown check %q", ErrValidation, check)
	}

	if pkgtrace.FromContext(ctx) == "" {
		ctx = pkgtrace.WithContext(ctx, pkgtrace.GenerateTraceID())
	}
	ctx, span := otel.StartSpan(ctx, "reminder."+check, trace.WithAttributes(attribute.String("reminder.check", check)))
	defer span.End()

	log := logger.WithTrace(ctx, s.logger).With(zap.String("check", check))
	start := time.Now()
	today := s.clock.Today()

	checked, notices, err := fn(ctx, today)
	if err != nil {
		otel.RecordError(span, err)
		metrics.RecordReminderCheck(check, "error", time.Since(start))
		log.Error("Reminder check failed", zap.Error(err))
		return nil, err
	}

	tally := s.notifier.Notify(ctx, notices)
	res := &CheckResult{
		Check:         check,
		Checked:       checked,
		UsersNotified: tally.UsersNotified,
		Sent:          tally.Sent,
		Failed:        tally.Failed,
		Removed:       tally.Removed,
	}
	metrics.RecordReminderCheck(check, "ok", time.Since(start))
	span.SetAttributes(
		attribute.Int("reminder.checked", res.Checked),
		attribute.Int("reminder.sent", res.Sent),
	)
	log.Info("Reminder check completed",
		zap.Int("checked", res.Checked),
		zap.Int("notices", len(notices)),
		zap.Int("users_notified", res.UsersNotified),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
		zap.Int("removed", res.Removed),
	)

	s.publishDispatched(ctx, today, res, log)
	return res, nil
}

func (s *ReminderService) PeriodicityCheck(ctx context.Context) (*CheckResult, error) {
	return s.Run(ctx, config.CheckPeriodicity)
}

func (s *ReminderService) DailyCompletionCheck(ctx context.Context) (*CheckResult, error) {
	return s.Run(ctx, config.CheckDailyCompletion)
}

func (s *ReminderService) StreakReminder(ctx context.Context) (*CheckResult, error) {
	return s.Run(ctx, config.CheckStreakReminder)
}

func (s *ReminderService) CheckNotifications(ctx context.Context) (*CheckResult, error) {
	return s.Run(ctx, config.CheckTaskNotifications)
}

func (s *ReminderService) publishDispatched(ctx context.Context, runAt time.Time, res *CheckResult, log *zap.Logger) {
	if s.events == nil {
		return
	}
	payload := mq.NotificationDispatchedPayload{
		Check:         res.Check,
		RunAt:         runAt.Format(time.RFC3339),
		Checked:       res.Checked,
		UsersNotified: res.UsersNotified,
		Sent:          res.Sent,
		Failed:        res.Failed,
		Removed:       res.Removed,
		TraceID:       pkgtrace.FromContext(ctx),
	}
	if err := s.events.PublishWithContext(ctx, mq.RoutingNotificationDispatched, payload); err != nil {
		log.Warn("Failed to publish notification.dispatched", zap.Error(err))
	}
}

// pendingToday keeps the tasks due today under policy that have no completion today.
func (s *ReminderService) pendingToday(ctx context.Context, tasks []model.Task, policy schedule.DuePolicy, today time.Time) ([]model.Task, error) {
	due := make([]model.Task, 0, len(tasks))
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if policy.IsDueTodayNames(t.Periodicity, t.CustomDays, today) {
			due = append(due, t)
			ids = append(ids, t.ID)
		}
	}
	if len(due) == 0 {
		return nil, nil
	}

	done, err := s.completions.CompletedTaskIDs(ctx, ids, today)
	if err != nil {
		return nil, fmt.Errorf("%w: load completions: %v", ErrStorage, err)
	}

	pending := due[:0]
	for _, t := range due {
		if !done[t.ID] {
			pending = append(pending, t)
		}
	}
	return pending, nil
}

func recurring(tasks []model.Task) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Periodicity.Recurring() {
			out = append(out, t)
		}
	}
	return out
}

// byUser groups tasks per user, users in first-seen order.
func byUser(tasks []model.Task) ([]string, map[string][]model.Task) {
	var order []string
	groups := make(map[string][]model.Task)
	for _, t := range tasks {
		if _, ok := groups[t.UserID]; !ok {
			order = append(order, t.UserID)
		}
		groups[t.UserID] = append(groups[t.UserID], t)
	}
	return order, groups
}

// periodicity sends one reminder per recurring intention due and open today.
func (s *ReminderService) periodicity(ctx context.Context, today time.Time) (int, []push.Notice, error) {
	tasks, err := s.tasks.ListOpenIntentions(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: list intentions: %v", ErrStorage, err)
	}
	candidates := recurring(tasks)

	pending, err := s.pendingToday(ctx, candidates, schedule.UnknownIsNotDue, today)
	if err != nil {
		return 0, nil, err
	}

	notices := make([]push.Notice, 0, len(pending))
	for _, t := range pending {
		notices = append(notices, push.Notice{UserID: t.UserID, Payload: periodicityPayload(t)})
	}
	return len(candidates), notices, nil
}

// dailyCompletion sends one summary per user of every intention still open today.
func (s *ReminderService) dailyCompletion(ctx context.Context, today time.Time) (int, []push.Notice, error) {
	tasks, err := s.tasks.ListOpenIntentions(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: list intentions: %v", ErrStorage, err)
	}

	pending, err := s.pendingToday(ctx, tasks, schedule.UnknownIsDue, today)
	if err != nil {
		return 0, nil, err
	}

	users, groups := byUser(pending)
	notices := make([]push.Notice, 0, len(users))
	for _, u := range users {
		notices = append(notices, push.Notice{UserID: u, Payload: dailyCompletionPayload(groups[u])})
	}
	return len(tasks), notices, nil
}

// streakReminder warns each user about their longest streak that today would break.
func (s *ReminderService) streakReminder(ctx context.Context, today time.Time) (int, []push.Notice, error) {
	tasks, err := s.tasks.ListActiveStreaks(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: list streaks: %v", ErrStorage, err)
	}
	candidates := recurring(tasks)

	atRisk, err := s.pendingToday(ctx, candidates, schedule.UnknownIsNotDue, today)
	if err != nil {
		return 0, nil, err
	}

	users, groups := byUser(atRisk)
	notices := make([]push.Notice, 0, len(users))
	for _, u := range users {
		longest := groups[u][0]
		for _, t := range groups[u][1:] {
			if t.CurrentStreak > longest.CurrentStreak {
				longest = t
			}
		}
		notices = append(notices, push.Notice{UserID: u, Payload: streakPayload(longest)})
	}
	return len(candidates), notices, nil
}

// taskDeadlines tells each user how many open tasks are due today or overdue.
func (s *ReminderService) taskDeadlines(ctx context.Context, today time.Time) (int, []push.Notice, error) {
	tasks, err := s.tasks.ListDueBy(ctx, today)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: list due tasks: %v", ErrStorage, err)
	}

	day := streak.Date(today)
	users, groups := byUser(tasks)
	notices := make([]push.Notice, 0, len(users))
	for _, u := range users {
		var dueToday, overdue int
		for _, t := range groups[u] {
			if t.DueDate == nil {
				continue
			}
			switch d := streak.Date(*t.DueDate); {
			case d.Equal(day):
				dueToday++
			case d.Before(day):
				overdue++
			}
		}
		if dueToday+overdue == 0 {
			continue
		}
		notices = append(notices, push.Notice{UserID: u, Payload: deadlinePayload(dueToday, overdue)})
	}
	return len(tasks), notices, nil
}
