package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cogmanager/internal/repository"
	"cogmanager/internal/streak"
	"cogmanager/pkg/logger"
	"cogmanager/pkg/metrics"
)

type CompleteResult struct {
	AlreadyCompleted bool
	Streak           int
	BestStreak       int
	IsNewBest        bool
	IsMilestone      bool
	CelebrationEmoji string
	Message          string
}

type StatusResult struct {
	CompletedToday bool
	Streak         int
	BestStreak     int
}

type HistoryResult struct {
	Dates  []time.Time
	Streak int
}

type IntentionService struct {
	tasks       TaskStore
	completions CompletionStore
	clock       Clock
	logger      *zap.Logger
}

func NewIntentionService(tasks TaskStore, completions CompletionStore, clock Clock, logger *zap.Logger) *IntentionService {
	return &IntentionService{tasks: tasks, completions: completions, clock: clock, logger: logger}
}

func validateIDs(userID, taskID string) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	if taskID == "" {
		return fmt.Errorf("%w: taskId is required", ErrValidation)
	}
	if _, err := uuid.Parse(taskID); err != nil {
		return fmt.Errorf("%w: taskId must be a uuid", ErrValidation)
	}
	return nil
}

func (s *IntentionService) loadTask(ctx context.Context, userID, taskID string) (*TaskSnapshot, error) {
	task, err := s.tasks.GetForUser(ctx, taskID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: task %s", ErrNotFound, taskID)
		}
		return nil, fmt.Errorf("%w: load task: %v", ErrStorage, err)
	}
	return &TaskSnapshot{Streak: task.CurrentStreak, BestStreak: task.BestStreak}, nil
}

// TaskSnapshot is the streak state read together with ownership.
type TaskSnapshot struct {
	Streak     int
	BestStreak int
}

// Complete records today's completion of an owned intention and reports the
// streak as recomputed by the database.
func (s *IntentionService) Complete(ctx context.Context, userID, taskID string) (*CompleteResult, error) {
	if err := validateIDs(userID, taskID); err != nil {
		return nil, err
	}
	log := logger.WithTrace(ctx, s.logger).With(zap.String("task_id", taskID), zap.String("user_id", userID))

	before, err := s.loadTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	today := s.clock.Today()
	already, err := s.completions.Record(ctx, taskID, userID, today)
	if err != nil {
		log.Error("Failed to record completion", zap.Error(err))
		return nil, fmt.Errorf("%w: record completion: %v", ErrStorage, err)
	}

	// a crash here leaves the completion recorded with a stale streak until the next read
	current, best, err := s.tasks.GetStreak(ctx, taskID)
	if err != nil {
		log.Error("Failed to re-read streak", zap.Error(err))
		return nil, fmt.Errorf("%w: read streak: %v", ErrStorage, err)
	}

	res := celebrate(already, current, best, before.BestStreak)
	if already {
		metrics.IncrementIntentionCompletion("already_completed")
	} else {
		metrics.IncrementIntentionCompletion("recorded")
	}
	log.Info("Intention completion handled",
		zap.Bool("already_completed", already),
		zap.Int("streak", current),
		zap.Int("best_streak", best),
	)
	return res, nil
}

// celebrate builds the response; prevBest is the record read before this completion.
func celebrate(already bool, current, best, prevBest int) *CompleteResult {
	res := &CompleteResult{
		AlreadyCompleted: already,
		Streak:           current,
		BestStreak:       best,
	}
	c, ok := streak.Classify(current)
	if already {
		res.Message = "Already completed today"
		if ok {
			res.CelebrationEmoji = c.Emoji
		}
		return res
	}

	// 只有超过之前的纪录才算新纪录，持平不算
	res.IsNewBest = current > 1 && current > prevBest
	switch {
	case ok && c.IsMilestone:
		res.IsMilestone = true
		res.CelebrationEmoji = c.Emoji
		res.Message = c.Message
	case res.IsNewBest:
		res.CelebrationEmoji = c.Emoji
		if res.CelebrationEmoji == "" {
			res.CelebrationEmoji = "🎉"
		}
		res.Message = fmt.Sprintf("New personal best: %d days in a row!", current)
	case ok:
		res.CelebrationEmoji = c.Emoji
		res.Message = c.Message
	default:
		res.CelebrationEmoji = "✅"
		res.Message = "Intention completed!"
	}
	return res
}

// Status reports whether the intention was completed today and its streak.
func (s *IntentionService) Status(ctx context.Context, userID, taskID string) (*StatusResult, error) {
	if err := validateIDs(userID, taskID); err != nil {
		return nil, err
	}
	snap, err := s.loadTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	done, err := s.completions.HasCompleted(ctx, taskID, s.clock.Today())
	if err != nil {
		logger.WithTrace(ctx, s.logger).Error("Failed to check completion", zap.String("task_id", taskID), zap.Error(err))
		return nil, fmt.Errorf("%w: check completion: %v", ErrStorage, err)
	}
	return &StatusResult{
		CompletedToday: done,
		Streak:         snap.Streak,
		BestStreak:     snap.BestStreak,
	}, nil
}

const (
	maxHistoryDays = 366
	// streak lookback stops growing here
	maxStreakLookbackDays = 10 * 366
)

// History returns the completion dates of the last days days and the calendar streak.
// The streak is not limited by days: dates are loaded back to the first gap.
func (s *IntentionService) History(ctx context.Context, userID, taskID string, days int) (*HistoryResult, error) {
	if err := validateIDs(userID, taskID); err != nil {
		return nil, err
	}
	if days <= 0 || days > maxHistoryDays {
		return nil, fmt.Errorf("%w: days must be between 1 and %d", ErrValidation, maxHistoryDays)
	}
	if _, err := s.loadTask(ctx, userID, taskID); err != nil {
		return nil, err
	}

	today := s.clock.Today()
	var (
		dates   []time.Time
		err     error
		current int
	)
	for span := maxHistoryDays; ; span *= 2 {
		if span > maxStreakLookbackDays {
			span = maxStreakLookbackDays
		}
		dates, err = s.completions.ListDates(ctx, taskID, today.AddDate(0, 0, -(span-1)))
		if err != nil {
			return nil, fmt.Errorf("%w: list completions: %v", ErrStorage, err)
		}
		current = streak.Current(dates, today)
		// 连续天数没有触到窗口最早一天，说明断点已在窗口内
		if current < span-1 || span == maxStreakLookbackDays {
			break
		}
	}

	from := streak.Date(today.AddDate(0, 0, -(days - 1)))
	window := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		if !streak.Date(d).Before(from) {
			window = append(window, d)
		}
	}
	return &HistoryResult{Dates: window, Streak: current}, nil
}
