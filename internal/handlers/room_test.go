package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/KallebyX/caris-chat-service/internal/mocks"
	"github.com/KallebyX/caris-chat-service/internal/models"
)

func setupRoomRouter(handler *RoomHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.GET("/chat/rooms", handler.ListRooms)
	r.POST("/chat/rooms", handler.StartRoom)
	r.GET("/chat/rooms/:room_id", handler.GetRoom)
	r.DELETE("/chat/rooms/:room_id", handler.HideRoom)
	return r
}

func TestStartPrivateRoom(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewRoomHandler(roomRepo, nil)
	router := setupRoomRouter(handler)

	roomRepo.On("CreateOrGetPrivateRoom", mock.Anything, 1, 2).Return(models.Room{ID: 9, Type: models.RoomTypePrivate, Encrypted: true}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chat/rooms", bytes.NewBufferString(`{"room_type":"private","other_user_id":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"room_id":9`)
	assert.Contains(t, rec.Body.String(), `"encrypted":true`)
	roomRepo.AssertExpectations(t)
}

func TestStartPrivateRoomWithSelf(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewRoomHandler(roomRepo, nil)
	router := setupRoomRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/chat/rooms", bytes.NewBufferString(`{"other_user_id":1}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	roomRepo.AssertNotCalled(t, "CreateOrGetPrivateRoom", mock.Anything, mock.Anything, mock.Anything)
}

func TestStartGroupRoomRequiresName(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewRoomHandler(roomRepo, nil)
	router := setupRoomRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/chat/rooms", bytes.NewBufferString(`{"room_type":"group","member_ids":[2,3]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	roomRepo.AssertNotCalled(t, "CreateGroupRoom", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStartGroupRoom(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewRoomHandler(roomRepo, nil)
	router := setupRoomRouter(handler)

	roomRepo.On("CreateGroupRoom", mock.Anything, 1, "care team", []int{2, 3}).Return(models.Room{ID: 11, Type: models.RoomTypeGroup, Name: "care team"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chat/rooms", bytes.NewBufferString(`{"room_type":"group","name":"care team","member_ids":[2,3]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	roomRepo.AssertExpectations(t)
}

func TestListRooms(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewRoomHandler(roomRepo, nil)
	router := setupRoomRouter(handler)

	roomRepo.On("ListRooms", mock.Anything, 1).Return([]models.RoomSummary{{RoomID: 9}, {RoomID: 11}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chat/rooms", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	roomRepo.AssertExpectations(t)
}

func TestGetRoomNonParticipantLeaksNothing(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewRoomHandler(roomRepo, nil)
	router := setupRoomRouter(handler)

	roomRepo.On("IsParticipant", mock.Anything, 9, 1).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chat/rooms/9", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Body.String(), "room_id")
	roomRepo.AssertNotCalled(t, "GetRoom", mock.Anything, mock.Anything)
}

func TestHideRoom(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewRoomHandler(roomRepo, nil)
	router := setupRoomRouter(handler)

	roomRepo.On("IsParticipant", mock.Anything, 9, 1).Return(true, nil).Once()
	roomRepo.On("HideRoomForUser", mock.Anything, 9, 1).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/chat/rooms/9", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	roomRepo.AssertExpectations(t)
}
