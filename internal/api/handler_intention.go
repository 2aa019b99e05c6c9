package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cogmanager/internal/service"
)

// IntentionAPI is implemented by *service.IntentionService.
type IntentionAPI interface {
	Complete(ctx context.Context, userID, taskID string) (*service.CompleteResult, error)
	Status(ctx context.Context, userID, taskID string) (*service.StatusResult, error)
	History(ctx context.Context, userID, taskID string, days int) (*service.HistoryResult, error)
}

type IntentionHandler struct {
	svc    IntentionAPI
	logger *zap.Logger
}

func NewIntentionHandler(svc IntentionAPI, logger *zap.Logger) *IntentionHandler {
	return &IntentionHandler{svc: svc, logger: logger}
}

type completeRequest struct {
	TaskID string `json:"taskId"`
}

// Complete handles POST /intentions/complete
func (h *IntentionHandler) Complete(c *gin.Context) {
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	res, err := h.svc.Complete(c.Request.Context(), userID(c), req.TaskID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"alreadyCompleted": res.AlreadyCompleted,
		"streak":           res.Streak,
		"bestStreak":       res.BestStreak,
		"isNewBest":        res.IsNewBest,
		"isMilestone":      res.IsMilestone,
		"celebrationEmoji": res.CelebrationEmoji,
		"message":          res.Message,
	})
}

// Status handles GET /intentions/complete?taskId=
func (h *IntentionHandler) Status(c *gin.Context) {
	res, err := h.svc.Status(c.Request.Context(), userID(c), c.Query("taskId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"completedToday": res.CompletedToday,
		"streak":         res.Streak,
		"bestStreak":     res.BestStreak,
	})
}

// History handles GET /intentions/history?taskId=&days=
func (h *IntentionHandler) History(c *gin.Context) {
	days := 30
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be an integer"})
			return
		}
		days = n
	}

	res, err := h.svc.History(c.Request.Context(), userID(c), c.Query("taskId"), days)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	dates := make([]string, 0, len(res.Dates))
	for _, d := range res.Dates {
		dates = append(dates, d.Format("2006-01-02"))
	}
	c.JSON(http.StatusOK, gin.H{"dates": dates, "streak": res.Streak})
}
