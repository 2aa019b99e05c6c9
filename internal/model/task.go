package model

import (
	"time"

	"cogmanager/internal/schedule"
)

const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
)

type Task struct {
	ID              string               `json:"id"`
	UserID          string               `json:"user_id"`
	Title           string               `json:"title"`
	TriggerIf       *string              `json:"trigger_if,omitempty"`
	ActionThen      *string              `json:"action_then,omitempty"`
	Periodicity     schedule.Periodicity `json:"periodicity"`
	CustomDays      []string             `json:"custom_days,omitempty"`
	CurrentStreak   int                  `json:"current_streak"`
	BestStreak      int                  `json:"best_streak"`
	LastCompletedAt *time.Time           `json:"last_completed_at,omitempty"`
	Status          string               `json:"status"`
	DueDate         *time.Time           `json:"due_date,omitempty"` // calendar date, time part is zero
	CreatedAt       time.Time            `json:"created_at"`
}

// IsIntention reports whether the task is an if-then implementation intention.
func (t *Task) IsIntention() bool {
	return t.TriggerIf != nil && *t.TriggerIf != ""
}

// IntentionText renders "If <trigger>, then <action>", falling back to the title.
func (t *Task) IntentionText() string {
	if !t.IsIntention() || t.ActionThen == nil || *t.ActionThen == "" {
		return t.Title
	}
	return "If " + *t.TriggerIf + ", then " + *t.ActionThen
}
