package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/KallebyX/caris-chat-service/internal/models"
	"github.com/KallebyX/caris-chat-service/internal/observability"
	"github.com/KallebyX/caris-chat-service/internal/rabbitmq"
)

// seenEventCap bounds the dedupe ring. Events are deduplicated because
// the same event reaches the hub twice on the publishing instance: once
// from the local broadcast and once replayed by the pub/sub bridge.
const seenEventCap = 512

// Hub maintains active websocket connections per room and per user.
type Hub struct {
	rooms        map[int]map[*websocket.Conn]bool
	roomConnInfo map[int]map[*websocket.Conn]ConnInfo
	userConns    map[int]map[*websocket.Conn]bool

	seenEvents map[string]struct{}
	seenOrder  []string

	events rabbitmq.Publisher

	mu sync.RWMutex
}

// NewHub creates an empty hub. The publisher receives websocket
// lifecycle events and may be nil in tests.
func NewHub(events rabbitmq.Publisher) *Hub {
	return &Hub{
		rooms:        make(map[int]map[*websocket.Conn]bool),
		roomConnInfo: make(map[int]map[*websocket.Conn]ConnInfo),
		userConns:    make(map[int]map[*websocket.Conn]bool),
		seenEvents:   make(map[string]struct{}),
		events:       events,
	}
}

// AddRoomClient registers a websocket connection to a room.
func (h *Hub) AddRoomClient(roomID int, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*websocket.Conn]bool)
	}
	h.rooms[roomID][conn] = true
	if _, ok := h.roomConnInfo[roomID]; !ok {
		h.roomConnInfo[roomID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.roomConnInfo[roomID][conn] = info

	if info.UserID != 0 {
		if _, ok := h.userConns[info.UserID]; !ok {
			h.userConns[info.UserID] = make(map[*websocket.Conn]bool)
		}
		h.userConns[info.UserID][conn] = true
	}
}

// RemoveRoomClient removes a room websocket connection.
func (h *Hub) RemoveRoomClient(roomID int, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[roomID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, roomID)
		}
	}
	if infos, ok := h.roomConnInfo[roomID]; ok {
		info, exists := infos[conn]
		if exists && info.UserID != 0 {
			if userConns, ok := h.userConns[info.UserID]; ok {
				delete(userConns, conn)
				if len(userConns) == 0 {
					delete(h.userConns, info.UserID)
				}
			}
		}
		delete(infos, conn)
		if len(infos) == 0 {
			delete(h.roomConnInfo, roomID)
		}
	}
}

// BroadcastRoomEvent sends an event to all clients in a room, at most
// once per event id.
func (h *Hub) BroadcastRoomEvent(event models.RoomEvent) {
	if event.EventID != "" && !h.markSeen(event.EventID) {
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.rooms[event.RoomID]))
	for conn := range h.rooms[event.RoomID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	payload, _ := json.Marshal(event)
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Warn().Err(err).Int("room_id", event.RoomID).Msg("websocket write error")
			conn.Close()
			h.RemoveRoomClient(event.RoomID, conn)
			h.publishWSError(event.RoomID, conn, err)
		}
	}
}

// SendUserEvent pushes a personal notification to a user's connections,
// at most once per event id.
func (h *Hub) SendUserEvent(userID int, event models.UserEvent) {
	if event.EventID != "" && !h.markSeen(event.EventID) {
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.userConns[userID]))
	for conn := range h.userConns[userID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	payload, _ := json.Marshal(event)
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Warn().Err(err).Int("user_id", userID).Msg("websocket write error")
		}
	}
}

// markSeen records an event id, reporting false when it was already
// delivered.
func (h *Hub) markSeen(eventID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.seenEvents[eventID]; ok {
		return false
	}
	h.seenEvents[eventID] = struct{}{}
	h.seenOrder = append(h.seenOrder, eventID)
	if len(h.seenOrder) > seenEventCap {
		oldest := h.seenOrder[0]
		h.seenOrder = h.seenOrder[1:]
		delete(h.seenEvents, oldest)
	}
	return true
}

func (h *Hub) publishWSError(roomID int, conn *websocket.Conn, err error) {
	if h.events == nil {
		return
	}
	info, ok := h.getConnInfo(roomID, conn)
	if !ok {
		return
	}

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"room_id":     roomID,
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = h.events.Publish(context.Background(), "ws_events.rooms", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent("room", "ws_error")
}

func (h *Hub) getConnInfo(roomID int, conn *websocket.Conn) (ConnInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if infos, ok := h.roomConnInfo[roomID]; ok {
		info, exists := infos[conn]
		return info, exists
	}
	return ConnInfo{}, false
}
