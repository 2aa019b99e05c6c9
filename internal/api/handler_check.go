package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cogmanager/internal/service"
)

// CheckRunner is implemented by *service.ReminderService.
type CheckRunner interface {
	Run(ctx context.Context, check string) (*service.CheckResult, error)
}

type CheckHandler struct {
	runner CheckRunner
	logger *zap.Logger
}

func NewCheckHandler(runner CheckRunner, logger *zap.Logger) *CheckHandler {
	return &CheckHandler{runner: runner, logger: logger}
}

// Run returns the handler for GET /push/<check>.
func (h *CheckHandler) Run(check string) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := h.runner.Run(c.Request.Context(), check)
		if err != nil {
			writeError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":       true,
			"checked":       res.Checked,
			"usersNotified": res.UsersNotified,
			"sent":          res.Sent,
			"failed":        res.Failed,
			"removed":       res.Removed,
		})
	}
}
