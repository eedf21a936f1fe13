package persistence

import (
	"chat-relay/domain"
	apperrors "chat-relay/errors"
	"chat-relay/internal/logs"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(logs.GetLoggerFromLevel(slog.LevelDebug), server.URL, "api-token", time.Second)
}

func TestClient_CreateMessage_Returns_The_Persisted_Record(t *testing.T) {
	req := require.New(t)
	created := domain.Message{
		ID:        "m1",
		Content:   "hello",
		AuthorID:  "alice",
		RoomID:    "r1",
		CreatedAt: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// Then the request is shaped and authorized as the API expects
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/rooms/r1/messages", r.URL.Path)
		require.Equal(t, "Bearer api-token", r.Header.Get("Authorization"))

		var body struct {
			Content string `json:"content"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "hello", body.Content)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(created)
	})

	// When a message is persisted
	message, err := client.CreateMessage(context.Background(), "r1", "hello")
	req.NoError(err)
	req.Equal(created, message)
}

func TestClient_CreateMessage_Rejects_Unexpected_Status(t *testing.T) {
	req := require.New(t)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	})

	_, err := client.CreateMessage(context.Background(), "r1", "hello")
	req.ErrorIs(err, apperrors.ErrUnexpectedStatus)
}

func TestClient_GetMessages_Fetches_The_History(t *testing.T) {
	req := require.New(t)
	history := []domain.Message{
		{ID: "m1", Content: "first", AuthorID: "alice", RoomID: "r1"},
		{ID: "m2", Content: "second", AuthorID: "bob", RoomID: "r1"},
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/rooms/r1/messages", r.URL.Path)
		_ = json.NewEncoder(w).Encode(history)
	})

	messages, err := client.GetMessages(context.Background(), "r1")
	req.NoError(err)
	req.Equal(history, messages)
}

func TestClient_ValidateJoin_Accepts_On_200(t *testing.T) {
	req := require.New(t)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rooms/r1", r.URL.Path)
		require.Equal(t, "alice", r.URL.Query().Get("userId"))
		w.WriteHeader(http.StatusOK)
	})

	req.NoError(client.ValidateJoin(context.Background(), "alice", "r1"))
}

func TestClient_ValidateJoin_Rejects_On_Other_Status(t *testing.T) {
	req := require.New(t)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not a member", http.StatusForbidden)
	})

	err := client.ValidateJoin(context.Background(), "alice", "r1")
	req.ErrorIs(err, apperrors.ErrRoomValidation)
}
