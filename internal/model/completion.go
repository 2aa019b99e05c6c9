package model

import "time"

// CompletionRecord 每个 (task, date) 至多一条，只插入不更新
type CompletionRecord struct {
	TaskID        string    `json:"task_id"`
	UserID        string    `json:"user_id"`
	CompletedDate time.Time `json:"completed_date"`
	CreatedAt     time.Time `json:"created_at"`
}

// CompletionStatus is the streak snapshot returned after recording or reading a completion.
type CompletionStatus struct {
	AlreadyCompleted bool
	CompletedToday   bool
	CurrentStreak    int
	BestStreak       int
}
