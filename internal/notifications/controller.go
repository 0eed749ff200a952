package notifications

import (
	"io"
	"net/http"
	"time"

	"slotbook/internal/shared/middleware"
	"slotbook/internal/shared/utils/response"
	"slotbook/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Controller serves the live notification stream.
type Controller struct {
	subscriber Subscriber
	heartbeat  time.Duration
	logger     *logger.Logger
}

func NewController(subscriber Subscriber, heartbeat time.Duration, log *logger.Logger) *Controller {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &Controller{subscriber: subscriber, heartbeat: heartbeat, logger: log}
}

// Stream sends the caller's waitlist events as server-sent events.
func (ctrl *Controller) Stream(ctx *gin.Context) {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		response.RespondJSON(ctx, "error", http.StatusUnauthorized, "authentication required", nil, nil)
		return
	}

	sub, err := ctrl.subscriber.Subscribe(ctx.Request.Context(), userID)
	if err != nil {
		ctrl.logger.LogHTTPError(ctx, err, http.StatusServiceUnavailable)
		response.RespondJSON(ctx, "error", http.StatusServiceUnavailable, "notification stream unavailable", nil, nil)
		return
	}
	defer sub.Close()

	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("Connection", "keep-alive")
	ctx.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(ctrl.heartbeat)
	defer ticker.Stop()

	ctx.SSEvent("ready", gin.H{"user_id": userID.String()})
	ctx.Stream(func(_ io.Writer) bool {
		select {
		case msg, ok := <-sub.C:
			if !ok {
				return false
			}
			ctx.SSEvent(msg.Event, msg)
			return true
		case t := <-ticker.C:
			ctx.SSEvent("heartbeat", t.UTC().Format(time.RFC3339))
			return true
		case <-ctx.Request.Context().Done():
			return false
		}
	})
}

func SetupRoutes(rg *gin.RouterGroup, controller *Controller, auth gin.HandlerFunc) {
	notifications := rg.Group("/notifications")
	notifications.Use(auth)
	notifications.GET("/stream", controller.Stream)
}
