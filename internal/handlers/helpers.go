package handlers

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/KallebyX/caris-chat-service/internal/models"
)

const requestIDContextKey = "request_id"

// eventPublisher fans out room and user events; the pub/sub bridge
// implements it.
type eventPublisher interface {
	PublishRoomEvent(ctx context.Context, event models.RoomEvent)
	PublishUserEvent(ctx context.Context, userID int, event models.UserEvent)
}

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *string {
	if val, ok := c.Get("userID"); ok {
		if userID, ok := val.(int); ok && userID != 0 {
			value := strconv.Itoa(userID)
			return &value
		}
	}
	return nil
}

func parseRoomAndMessageIDs(c *gin.Context) (int, int, bool) {
	roomID, err := strconv.Atoi(c.Param("room_id"))
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid room id"})
		return 0, 0, false
	}
	msgID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid message id"})
		return 0, 0, false
	}
	return roomID, msgID, true
}

func newEventID() string {
	return uuid.NewString()
}
