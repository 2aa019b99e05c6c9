package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cogmanager/internal/service"
	"cogmanager/pkg/logger"
)

// writeError maps service errors to status codes. Storage details stay in the log.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	status, msg := http.StatusInternalServerError, "internal server error"
	switch {
	case errors.Is(err, service.ErrValidation):
		status, msg = http.StatusBadRequest, clientMessage(err, service.ErrValidation)
	case errors.Is(err, service.ErrUnauthenticated):
		status, msg = http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, service.ErrNotFound):
		status, msg = http.StatusNotFound, "task not found"
	case errors.Is(err, service.ErrRateLimited):
		status, msg = http.StatusTooManyRequests, "rate limit exceeded"
	}

	if status >= 500 {
		logger.WithTrace(c.Request.Context(), log).Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": msg})
}

// clientMessage strips the sentinel prefix from "%w: detail" errors.
func clientMessage(err, sentinel error) string {
	msg := err.Error()
	if detail, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
		return detail
	}
	return msg
}
