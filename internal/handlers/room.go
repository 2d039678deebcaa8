package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/KallebyX/caris-chat-service/internal/models"
	"github.com/KallebyX/caris-chat-service/internal/repositories"
	"github.com/KallebyX/caris-chat-service/internal/telemetry"
)

// RoomHandler manages room endpoints.
type RoomHandler struct {
	roomRepo repositories.RoomRepository
	audit    *telemetry.AuditEmitter
}

// NewRoomHandler builds a RoomHandler.
func NewRoomHandler(roomRepo repositories.RoomRepository, audit *telemetry.AuditEmitter) *RoomHandler {
	return &RoomHandler{roomRepo: roomRepo, audit: audit}
}

// ListRooms returns the rooms visible to the authenticated user.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	userID := c.GetInt("userID")

	rooms, err := h.roomRepo.ListRooms(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rooms"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// StartRoom creates or returns a room. A private room is created on
// first contact with another user; a group room takes a name and a
// member list.
func (h *RoomHandler) StartRoom(c *gin.Context) {
	var req struct {
		RoomType    string `json:"room_type"`
		OtherUserID int    `json:"other_user_id"`
		Name        string `json:"name"`
		MemberIDs   []int  `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")

	if req.RoomType == models.RoomTypeGroup {
		if req.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "group room requires a name"})
			return
		}
		room, err := h.roomRepo.CreateGroupRoom(c.Request.Context(), userID, req.Name, req.MemberIDs)
		if err != nil {
			h.emitAudit(c, "ERROR", "could not create group room")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
			return
		}
		c.JSON(http.StatusCreated, room)
		return
	}

	if req.OtherUserID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "other_user_id is required"})
		return
	}
	if req.OtherUserID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
		return
	}

	room, err := h.roomRepo.CreateOrGetPrivateRoom(c.Request.Context(), userID, req.OtherUserID)
	if err != nil {
		h.emitAudit(c, "ERROR", "could not create private room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"room_id": room.ID, "encrypted": room.Encrypted})
}

// GetRoom returns a single room. Non-participants get 403 with no room
// data in the body.
func (h *RoomHandler) GetRoom(c *gin.Context) {
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

	room, err := h.roomRepo.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "room not found"})
		return
	}

	participants, err := h.roomRepo.Participants(c.Request.Context(), roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load participants"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"room": room, "participants": participants})
}

// HideRoom hides the room for the requester only.
func (h *RoomHandler) HideRoom(c *gin.Context) {
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
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
		return
	}

	if err := h.roomRepo.HideRoomForUser(c.Request.Context(), roomID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not hide room"})
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *RoomHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
