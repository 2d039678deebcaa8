package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KallebyX/caris-chat-service/internal/models"
	"github.com/KallebyX/caris-chat-service/internal/observability"
	"github.com/KallebyX/caris-chat-service/internal/repositories"
	"github.com/KallebyX/caris-chat-service/internal/telemetry"
)

// MessageHandler manages message endpoints. Content is stored opaquely:
// in encrypted rooms it is ciphertext the clients sealed with the room
// key, which this service never holds.
type MessageHandler struct {
	roomRepo    repositories.RoomRepository
	messageRepo repositories.MessageRepository
	receiptRepo repositories.ReceiptRepository
	events      eventPublisher
	audit       *telemetry.AuditEmitter
	now         func() time.Time
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(roomRepo repositories.RoomRepository, messageRepo repositories.MessageRepository, receiptRepo repositories.ReceiptRepository, events eventPublisher, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{
		roomRepo:    roomRepo,
		messageRepo: messageRepo,
		receiptRepo: receiptRepo,
		events:      events,
		audit:       audit,
		now:         time.Now,
	}
}

// GetMessages returns the messages of a room. Expiry is enforced here,
// at read time: temporary messages past their expires_at come back
// redacted regardless of whether the sweep has removed the rows yet.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("room_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	userID := c.GetInt("userID")
	member, err := h.roomRepo.IsParticipant(c.Request.Context(), roomID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		return
	}

	msgs, err := h.messageRepo.GetRoomMessages(c.Request.Context(), roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	now := h.now()
	deliveredIDs := make([]int, 0, len(msgs))
	resp := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ExpiredAt(now) {
			observability.IncExpiredRead()
			resp = append(resp, m.Redacted())
			continue
		}
		if m.SenderID != userID {
			deliveredIDs = append(deliveredIDs, m.ID)
		}
		resp = append(resp, m)
	}

	// Delivery receipts are best-effort bookkeeping.
	if err := h.receiptRepo.MarkDelivered(c.Request.Context(), deliveredIDs, userID); err != nil {
		h.emitAudit(c, "WARN", "failed to record delivery receipts")
	}

	c.JSON(http.StatusOK, gin.H{"messages": resp})
}

// PostMessage stores a message and fans it out.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("room_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	userID := c.GetInt("userID")
	room, err := h.roomRepo.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "room not found"})
		return
	}
	member, err := h.roomRepo.IsParticipant(c.Request.Context(), roomID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		return
	}

	var req struct {
		Content       string          `json:"content" binding:"required"`
		MessageType   string          `json:"message_type"`
		IsTemporary   bool            `json:"is_temporary"`
		ExpirationKey string          `json:"expiration_key"`
		Metadata      json.RawMessage `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	messageType := req.MessageType
	if messageType == "" {
		messageType = models.MessageTypeText
	}
	if messageType != models.MessageTypeText && messageType != models.MessageTypeFile {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown message type"})
		return
	}

	newMsg := repositories.NewMessage{
		RoomID:      roomID,
		SenderID:    userID,
		Content:     req.Content,
		MessageType: messageType,
		Metadata:    req.Metadata,
	}
	if req.IsTemporary {
		ttl, ok := models.ExpirationDuration(req.ExpirationKey)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown expiration key"})
			return
		}
		expiresAt := h.now().Add(ttl)
		newMsg.IsTemporary = true
		newMsg.ExpiresAt = &expiresAt
	}

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), newMsg)
	if err != nil {
		h.emitAudit(c, "ERROR", "failed to store message")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	// The message is durable; everything past this point is best-effort.
	h.events.PublishRoomEvent(c.Request.Context(), models.RoomEvent{
		EventID: newEventID(),
		Type:    models.EventNewMessage,
		RoomID:  roomID,
		Message: &msg,
	})
	h.notifyParticipants(c, room, msg)

	c.JSON(http.StatusCreated, msg)
}

// EditMessage replaces the content of the sender's own message.
func (h *MessageHandler) EditMessage(c *gin.Context) {
	roomID, messageID, ok := parseRoomAndMessageIDs(c)
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	msg, ok := h.loadOwnMessage(c, roomID, messageID, userID)
	if !ok {
		return
	}
	if msg.ExpiredAt(h.now()) {
		c.JSON(http.StatusConflict, gin.H{"error": "message expired"})
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.messageRepo.EditMessage(c.Request.Context(), messageID, userID, req.Content)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not edit message"})
		return
	}

	h.events.PublishRoomEvent(c.Request.Context(), models.RoomEvent{
		EventID: newEventID(),
		Type:    models.EventMessageEdited,
		RoomID:  roomID,
		Message: &updated,
	})
	c.JSON(http.StatusOK, updated)
}

// DeleteMessage soft-deletes the sender's own message. Rows stay in
// place; only the flag flips.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	roomID, messageID, ok := parseRoomAndMessageIDs(c)
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	if _, ok := h.loadOwnMessage(c, roomID, messageID, userID); !ok {
		return
	}

	if err := h.messageRepo.SoftDeleteMessage(c.Request.Context(), messageID, userID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not delete message"})
		return
	}

	h.events.PublishRoomEvent(c.Request.Context(), models.RoomEvent{
		EventID:   newEventID(),
		Type:      models.EventMessageDeleted,
		RoomID:    roomID,
		MessageID: messageID,
	})
	c.Status(http.StatusNoContent)
}

// MarkRead records a read receipt for the caller.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	roomID, messageID, ok := parseRoomAndMessageIDs(c)
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	member, err := h.roomRepo.IsParticipant(c.Request.Context(), roomID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		return
	}

	msg, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return
	}
	if msg.RoomID != roomID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message does not belong to room"})
		return
	}
	if msg.SenderID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot mark own message read"})
		return
	}

	if err := h.receiptRepo.MarkRead(c.Request.Context(), messageID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not record receipt"})
		return
	}

	c.Status(http.StatusNoContent)
}

// GetReceipts returns the receipts of a message (sender view).
func (h *MessageHandler) GetReceipts(c *gin.Context) {
	roomID, messageID, ok := parseRoomAndMessageIDs(c)
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	if _, ok := h.loadOwnMessage(c, roomID, messageID, userID); !ok {
		return
	}

	receipts, err := h.receiptRepo.ListForMessage(c.Request.Context(), messageID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load receipts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"receipts": receipts})
}

// loadOwnMessage validates membership, message existence, room linkage
// and sender ownership; it writes the error response itself.
func (h *MessageHandler) loadOwnMessage(c *gin.Context, roomID, messageID, userID int) (models.Message, bool) {
	member, err := h.roomRepo.IsParticipant(c.Request.Context(), roomID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return models.Message{}, false
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		return models.Message{}, false
	}

	msg, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return models.Message{}, false
	}
	if msg.RoomID != roomID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message does not belong to room"})
		return models.Message{}, false
	}
	if msg.SenderID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the sender may do this"})
		return models.Message{}, false
	}
	return msg, true
}

func (h *MessageHandler) notifyParticipants(c *gin.Context, room models.Room, msg models.Message) {
	participants, err := h.roomRepo.Participants(c.Request.Context(), room.ID)
	if err != nil {
		h.emitAudit(c, "WARN", "failed to load participants for notification")
		return
	}
	for _, participant := range participants {
		if participant == msg.SenderID {
			continue
		}
		h.events.PublishUserEvent(c.Request.Context(), participant, models.UserEvent{
			EventID:   newEventID(),
			Type:      "new_message",
			RoomID:    room.ID,
			MessageID: msg.ID,
			SenderID:  msg.SenderID,
		})
	}
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
