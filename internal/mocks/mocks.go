package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/KallebyX/caris-chat-service/internal/antivirus"
	"github.com/KallebyX/caris-chat-service/internal/models"
	"github.com/KallebyX/caris-chat-service/internal/repositories"
)

type RoomRepositoryMock struct {
	mock.Mock
}

func (m *RoomRepositoryMock) CreateOrGetPrivateRoom(ctx context.Context, userID int, otherUserID int) (models.Room, error) {
	args := m.Called(ctx, userID, otherUserID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) CreateGroupRoom(ctx context.Context, creatorID int, name string, memberIDs []int) (models.Room, error) {
	args := m.Called(ctx, creatorID, name, memberIDs)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) GetRoom(ctx context.Context, roomID int) (models.Room, error) {
	args := m.Called(ctx, roomID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) IsParticipant(ctx context.Context, roomID int, userID int) (bool, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *RoomRepositoryMock) Participants(ctx context.Context, roomID int) ([]int, error) {
	args := m.Called(ctx, roomID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *RoomRepositoryMock) ListRooms(ctx context.Context, userID int) ([]models.RoomSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.RoomSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.RoomSummary)
	}
	return list, args.Error(1)
}

func (m *RoomRepositoryMock) HideRoomForUser(ctx context.Context, roomID int, userID int) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

func (m *RoomRepositoryMock) UnhideRoomForUser(ctx context.Context, roomID int, userID int) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, msg repositories.NewMessage) (models.Message, error) {
	args := m.Called(ctx, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) GetRoomMessages(ctx context.Context, roomID int) ([]models.Message, error) {
	args := m.Called(ctx, roomID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) EditMessage(ctx context.Context, messageID int, senderID int, content string) (models.Message, error) {
	args := m.Called(ctx, messageID, senderID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) SoftDeleteMessage(ctx context.Context, messageID int, senderID int) error {
	args := m.Called(ctx, messageID, senderID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type FileRepositoryMock struct {
	mock.Mock
}

func (m *FileRepositoryMock) CreateFile(ctx context.Context, file repositories.NewFile) (models.MessageFile, error) {
	args := m.Called(ctx, file)
	var out models.MessageFile
	if val := args.Get(0); val != nil {
		out = val.(models.MessageFile)
	}
	return out, args.Error(1)
}

func (m *FileRepositoryMock) GetFile(ctx context.Context, fileID int) (models.MessageFile, error) {
	args := m.Called(ctx, fileID)
	var file models.MessageFile
	if val := args.Get(0); val != nil {
		file = val.(models.MessageFile)
	}
	return file, args.Error(1)
}

func (m *FileRepositoryMock) SetScanStatus(ctx context.Context, fileID int, status string, result []byte) error {
	args := m.Called(ctx, fileID, status, result)
	return args.Error(0)
}

func (m *FileRepositoryMock) IncrementDownloads(ctx context.Context, fileID int) error {
	args := m.Called(ctx, fileID)
	return args.Error(0)
}

func (m *FileRepositoryMock) ListExpiredBlobs(ctx context.Context, cutoff time.Time) ([]string, error) {
	args := m.Called(ctx, cutoff)
	var names []string
	if val := args.Get(0); val != nil {
		names = val.([]string)
	}
	return names, args.Error(1)
}

func (m *FileRepositoryMock) ListPendingScans(ctx context.Context, olderThan time.Time, limit int) ([]models.MessageFile, error) {
	args := m.Called(ctx, olderThan, limit)
	var files []models.MessageFile
	if val := args.Get(0); val != nil {
		files = val.([]models.MessageFile)
	}
	return files, args.Error(1)
}

type ReceiptRepositoryMock struct {
	mock.Mock
}

func (m *ReceiptRepositoryMock) MarkDelivered(ctx context.Context, messageIDs []int, userID int) error {
	args := m.Called(ctx, messageIDs, userID)
	return args.Error(0)
}

func (m *ReceiptRepositoryMock) MarkRead(ctx context.Context, messageID int, userID int) error {
	args := m.Called(ctx, messageID, userID)
	return args.Error(0)
}

func (m *ReceiptRepositoryMock) ListForMessage(ctx context.Context, messageID int) ([]models.ReadReceipt, error) {
	args := m.Called(ctx, messageID)
	var receipts []models.ReadReceipt
	if val := args.Get(0); val != nil {
		receipts = val.([]models.ReadReceipt)
	}
	return receipts, args.Error(1)
}

type ScannerMock struct {
	mock.Mock
}

func (m *ScannerMock) Scan(ctx context.Context, data []byte) antivirus.Result {
	args := m.Called(ctx, data)
	return args.Get(0).(antivirus.Result)
}

type BlobStoreMock struct {
	mock.Mock
}

func (m *BlobStoreMock) Save(data []byte, extension string) (string, error) {
	args := m.Called(data, extension)
	return args.String(0), args.Error(1)
}

func (m *BlobStoreMock) Load(storedName string) ([]byte, error) {
	args := m.Called(storedName)
	var data []byte
	if val := args.Get(0); val != nil {
		data = val.([]byte)
	}
	return data, args.Error(1)
}

func (m *BlobStoreMock) Delete(storedName string) error {
	args := m.Called(storedName)
	return args.Error(0)
}

type EventPublisherMock struct {
	mock.Mock
}

func (m *EventPublisherMock) PublishRoomEvent(ctx context.Context, event models.RoomEvent) {
	m.Called(ctx, event)
}

func (m *EventPublisherMock) PublishUserEvent(ctx context.Context, userID int, event models.UserEvent) {
	m.Called(ctx, userID, event)
}
