package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/KallebyX/caris-chat-service/internal/models"
)

var ErrRoomNotFound = errors.New("room not found")

// RoomRepository abstracts room persistence.
type RoomRepository interface {
	CreateOrGetPrivateRoom(ctx context.Context, userID int, otherUserID int) (models.Room, error)
	CreateGroupRoom(ctx context.Context, creatorID int, name string, memberIDs []int) (models.Room, error)
	GetRoom(ctx context.Context, roomID int) (models.Room, error)
	IsParticipant(ctx context.Context, roomID int, userID int) (bool, error)
	Participants(ctx context.Context, roomID int) ([]int, error)
	ListRooms(ctx context.Context, userID int) ([]models.RoomSummary, error)
	HideRoomForUser(ctx context.Context, roomID int, userID int) error
	UnhideRoomForUser(ctx context.Context, roomID int, userID int) error
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// privatePairKey normalizes a user pair into the unique key stored on
// private rooms, so two concurrent first-contact requests collide on
// the rooms unique index instead of creating duplicates.
func privatePairKey(userID, otherUserID int) string {
	lo, hi := userID, otherUserID
	if lo > hi {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("%d:%d", lo, hi)
}

// CreateOrGetPrivateRoom returns the private room between two users,
// creating it on first contact. Creation races resolve through the
// pair_key unique index: the loser re-reads the winner's room.
func (r *RoomRepo) CreateOrGetPrivateRoom(ctx context.Context, userID int, otherUserID int) (models.Room, error) {
	if userID == otherUserID {
		return models.Room{}, errors.New("cannot create room with self")
	}
	pairKey := privatePairKey(userID, otherUserID)

	room, err := r.getRoomByPairKey(ctx, pairKey)
	if err == nil {
		if err := r.UnhideRoomForUser(ctx, room.ID, userID); err != nil {
			return models.Room{}, err
		}
		return room, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, err
	}

	room, err = r.createPrivateRoom(ctx, userID, otherUserID, pairKey)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			room, err = r.getRoomByPairKey(ctx, pairKey)
			if err != nil {
				return models.Room{}, err
			}
			if err := r.UnhideRoomForUser(ctx, room.ID, userID); err != nil {
				return models.Room{}, err
			}
			return room, nil
		}
		return models.Room{}, err
	}
	return room, nil
}

func (r *RoomRepo) getRoomByPairKey(ctx context.Context, pairKey string) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT id, room_type, name, encrypted, creator_id, created_at
        FROM rooms WHERE pair_key=$1`, pairKey)
	return room, err
}

func (r *RoomRepo) createPrivateRoom(ctx context.Context, userID, otherUserID int, pairKey string) (models.Room, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, err
	}
	defer tx.Rollback()

	var room models.Room
	if err := tx.QueryRowxContext(ctx, `INSERT INTO rooms (room_type, creator_id, pair_key) VALUES ('private', $1, $2)
        RETURNING id, room_type, name, encrypted, creator_id, created_at`, userID, pairKey).
		Scan(&room.ID, &room.Type, &room.Name, &room.Encrypted, &room.CreatorID, &room.CreatedAt); err != nil {
		return models.Room{}, err
	}
	participants := []int{userID, otherUserID}
	sort.Ints(participants)
	for _, member := range participants {
		if _, err := tx.ExecContext(ctx, `INSERT INTO room_members (room_id, user_id) VALUES ($1, $2)`, room.ID, member); err != nil {
			return models.Room{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return models.Room{}, err
	}
	return room, nil
}

// CreateGroupRoom creates a group room with the creator and members.
func (r *RoomRepo) CreateGroupRoom(ctx context.Context, creatorID int, name string, memberIDs []int) (models.Room, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, err
	}
	defer tx.Rollback()

	var room models.Room
	if err := tx.QueryRowxContext(ctx, `INSERT INTO rooms (room_type, name, creator_id) VALUES ('group', $1, $2)
        RETURNING id, room_type, name, encrypted, creator_id, created_at`, name, creatorID).
		Scan(&room.ID, &room.Type, &room.Name, &room.Encrypted, &room.CreatorID, &room.CreatedAt); err != nil {
		return models.Room{}, err
	}

	members := map[int]struct{}{creatorID: {}}
	for _, id := range memberIDs {
		members[id] = struct{}{}
	}
	for member := range members {
		if _, err := tx.ExecContext(ctx, `INSERT INTO room_members (room_id, user_id) VALUES ($1, $2)`, room.ID, member); err != nil {
			return models.Room{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return models.Room{}, err
	}
	return room, nil
}

// GetRoom fetches a room by id.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID int) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT id, room_type, name, encrypted, creator_id, created_at FROM rooms WHERE id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

// IsParticipant checks whether a user belongs to the room.
func (r *RoomRepo) IsParticipant(ctx context.Context, roomID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id=$1 AND user_id=$2)`, roomID, userID)
	return exists, err
}

// Participants returns the ordered participant ids of a room.
func (r *RoomRepo) Participants(ctx context.Context, roomID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM room_members WHERE room_id=$1 ORDER BY user_id`, roomID)
	return ids, err
}

// ListRooms returns rooms visible to the user.
func (r *RoomRepo) ListRooms(ctx context.Context, userID int) ([]models.RoomSummary, error) {
	query := `SELECT r.id, r.room_type, r.name, r.encrypted, r.created_at,
            (SELECT COUNT(*) FROM room_members mc WHERE mc.room_id = r.id) AS member_count
        FROM rooms r
        JOIN room_members m ON m.room_id = r.id AND m.user_id = $1
        WHERE m.hidden = FALSE
        ORDER BY r.created_at DESC`
	var result []models.RoomSummary
	if err := r.db.SelectContext(ctx, &result, query, userID); err != nil {
		return nil, err
	}

	for i, room := range result {
		if room.Type != models.RoomTypePrivate {
			continue
		}
		var otherID int
		err := r.db.GetContext(ctx, &otherID, `SELECT user_id FROM room_members WHERE room_id=$1 AND user_id<>$2 LIMIT 1`, room.RoomID, userID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		result[i].OtherUserID = otherID
	}
	return result, nil
}

// HideRoomForUser marks a room hidden for the user.
func (r *RoomRepo) HideRoomForUser(ctx context.Context, roomID int, userID int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE room_members SET hidden = TRUE WHERE room_id=$1 AND user_id=$2`, roomID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// UnhideRoomForUser clears the hidden flag for the user.
func (r *RoomRepo) UnhideRoomForUser(ctx context.Context, roomID int, userID int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE room_members SET hidden = FALSE WHERE room_id=$1 AND user_id=$2`, roomID, userID)
	return err
}
