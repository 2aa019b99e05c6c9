package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cogmanager/internal/push"
	"cogmanager/internal/service"
)

// PushAPI is implemented by *service.PushService.
type PushAPI interface {
	Subscribe(ctx context.Context, userID, endpoint, p256dh, auth string) error
	Unsubscribe(ctx context.Context, userID, endpoint string) error
	SendLimited(ctx context.Context, req service.SendRequest) (push.Tally, error)
	VAPIDPublicKey() string
}

type PushHandler struct {
	svc    PushAPI
	logger *zap.Logger
}

func NewPushHandler(svc PushAPI, logger *zap.Logger) *PushHandler {
	return &PushHandler{svc: svc, logger: logger}
}

type subscribeRequest struct {
	Subscription struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	} `json:"subscription"`
}

// Subscribe handles POST /push/subscribe
func (h *PushHandler) Subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	s := req.Subscription
	if err := h.svc.Subscribe(c.Request.Context(), userID(c), s.Endpoint, s.Keys.P256dh, s.Keys.Auth); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Unsubscribe handles DELETE /push/subscribe
func (h *PushHandler) Unsubscribe(c *gin.Context) {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.svc.Unsubscribe(c.Request.Context(), userID(c), req.Endpoint); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type sendRequest struct {
	UserID string                 `json:"userId"`
	Title  string                 `json:"title"`
	Body   string                 `json:"body"`
	Data   map[string]interface{} `json:"data"`
}

// Send handles POST /push/send
func (h *PushHandler) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	tally, err := h.svc.SendLimited(c.Request.Context(), service.SendRequest{
		UserID: req.UserID,
		Title:  req.Title,
		Body:   req.Body,
		Data:   req.Data,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "sent": tally.Sent, "removed": tally.Removed})
}

// PublicKey handles GET /push/vapid-public-key
func (h *PushHandler) PublicKey(c *gin.Context) {
	key := h.svc.VAPIDPublicKey()
	if key == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "push notifications are not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"publicKey": key})
}
