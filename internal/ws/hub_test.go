package ws

import (
	"strconv"
	"testing"

	"github.com/KallebyX/caris-chat-service/internal/models"
)

func TestHubAddAndRemoveRoomClient(t *testing.T) {
	hub := NewHub(nil)

	hub.AddRoomClient(1, nil, ConnInfo{UserID: 42})
	if len(hub.rooms) != 1 {
		t.Fatalf("expected room to be created")
	}
	if len(hub.userConns[42]) != 1 {
		t.Fatalf("expected connection to be indexed by user")
	}

	hub.RemoveRoomClient(1, nil)
	if len(hub.rooms) != 0 {
		t.Fatalf("expected room to be removed")
	}
	if len(hub.userConns) != 0 {
		t.Fatalf("expected user index to be cleaned up")
	}
}

func TestHubMarkSeenDeduplicates(t *testing.T) {
	hub := NewHub(nil)

	if !hub.markSeen("ev-1") {
		t.Fatalf("first delivery should pass")
	}
	if hub.markSeen("ev-1") {
		t.Fatalf("second delivery of the same event should be suppressed")
	}
	if !hub.markSeen("ev-2") {
		t.Fatalf("distinct event should pass")
	}
}

func TestHubMarkSeenEvictsOldest(t *testing.T) {
	hub := NewHub(nil)

	for i := 0; i < seenEventCap+1; i++ {
		hub.markSeen("ev-" + strconv.Itoa(i))
	}
	// ev-0 fell off the ring and counts as unseen again.
	if !hub.markSeen("ev-0") {
		t.Fatalf("evicted event should be deliverable again")
	}
	if hub.markSeen("ev-" + strconv.Itoa(seenEventCap)) {
		t.Fatalf("recent event should still be suppressed")
	}
}

func TestBroadcastRoomEventDedupesById(t *testing.T) {
	hub := NewHub(nil)

	event := models.RoomEvent{EventID: "ev-dup", Type: models.EventNewMessage, RoomID: 1}
	hub.BroadcastRoomEvent(event)
	hub.BroadcastRoomEvent(event)

	if _, ok := hub.seenEvents["ev-dup"]; !ok {
		t.Fatalf("event id should be recorded")
	}
	if len(hub.seenOrder) != 1 {
		t.Fatalf("duplicate broadcast should not grow the ring, got %d", len(hub.seenOrder))
	}
}

func TestSendUserEventWithoutConnections(t *testing.T) {
	hub := NewHub(nil)

	// No registered connections: delivery is a no-op but the id is kept.
	hub.SendUserEvent(7, models.UserEvent{EventID: "ev-user", Type: "new_message"})
	if _, ok := hub.seenEvents["ev-user"]; !ok {
		t.Fatalf("event id should be recorded")
	}
}
