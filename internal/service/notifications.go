package service

import (
	"fmt"
	"strings"

	"cogmanager/internal/model"
	"cogmanager/internal/schedule"
	"cogmanager/internal/streak"
)

const (
	intentionsURL = "/intentions"
	tasksURL      = "/tasks"
	maxListed     = 3
)

var completeAction = model.NotificationAction{Action: "complete", Title: "Mark as done"}

func periodicityTitle(p schedule.Periodicity) string {
	switch p.Normalize() {
	case schedule.Daily:
		return "Daily reminder"
	case schedule.Weekly:
		return "Weekly reminder"
	default:
		return "Reminder for today"
	}
}

func periodicityPayload(t model.Task) model.NotificationPayload {
	return model.NotificationPayload{
		Title: periodicityTitle(t.Periodicity),
		Body:  t.IntentionText(),
		Tag:   "periodicity-" + t.ID,
		Data: map[string]interface{}{
			"taskId": t.ID,
			"url":    intentionsURL,
			"type":   "periodicity_reminder",
		},
		Actions: []model.NotificationAction{completeAction},
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}

func dailyCompletionPayload(pending []model.Task) model.NotificationPayload {
	titles := make([]string, 0, maxListed)
	for i, t := range pending {
		if i == maxListed {
			break
		}
		titles = append(titles, t.Title)
	}
	body := strings.Join(titles, ", ")
	if extra := len(pending) - len(titles); extra > 0 {
		body += fmt.Sprintf(" and %d more", extra)
	}
	return model.NotificationPayload{
		Title: plural(len(pending), "intention pending today", "intentions pending today"),
		Body:  body,
		Tag:   "daily-completion",
		Data: map[string]interface{}{
			"url":   intentionsURL,
			"type":  "daily_completion",
			"count": len(pending),
		},
	}
}

func streakPayload(t model.Task) model.NotificationPayload {
	title := fmt.Sprintf("Your %d-day streak is at risk", t.CurrentStreak)
	if c, ok := streak.Classify(t.CurrentStreak); ok {
		title += " " + c.Emoji
	}
	return model.NotificationPayload{
		Title: title,
		Body:  fmt.Sprintf("Complete %q today to keep it going.", t.Title),
		Tag:   "streak-reminder",
		Data: map[string]interface{}{
			"taskId": t.ID,
			"url":    intentionsURL,
			"type":   "streak_reminder",
			"streak": t.CurrentStreak,
		},
		Actions: []model.NotificationAction{completeAction},
	}
}

func deadlinePayload(dueToday, overdue int) model.NotificationPayload {
	return model.NotificationPayload{
		Title: "Task deadlines",
		Body:  fmt.Sprintf("%d due today, %d overdue", dueToday, overdue),
		Tag:   "task-deadlines",
		Data: map[string]interface{}{
			"url":      tasksURL,
			"type":     "task_deadlines",
			"dueToday": dueToday,
			"overdue":  overdue,
		},
	}
}
