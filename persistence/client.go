// Package persistence is the boundary to the external Message Delivery
// API. Durable storage lives entirely behind it: the relay itself never
// persists. Clients call CreateMessage before emitting send-message; the
// relay only consumes ValidateJoin, and only when re-validation is
// enabled.
package persistence

import (
	"bytes"
	"chat-relay/domain"
	apperrors "chat-relay/errors"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

type Client struct {
	log     *slog.Logger
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(log *slog.Logger, baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		log:     log,
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type createMessageRequest struct {
	Content string `json:"content"`
}

// CreateMessage durably stores a message and returns the fully-formed
// record (identifier and timestamp assigned by the store).
func (c *Client) CreateMessage(ctx context.Context, room domain.RoomID, content string) (domain.Message, error) {
	body, err := json.Marshal(createMessageRequest{Content: content})
	if err != nil {
		return domain.Message{}, err
	}

	endpoint := fmt.Sprintf("%s/rooms/%s/messages", c.baseURL, url.PathEscape(string(room)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Message{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Message{}, fmt.Errorf("create message: %w", err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusCreated {
		return domain.Message{}, fmt.Errorf("create message: %w: %d", apperrors.ErrUnexpectedStatus, resp.StatusCode)
	}

	var message domain.Message
	if err := json.NewDecoder(resp.Body).Decode(&message); err != nil {
		return domain.Message{}, fmt.Errorf("create message: %w", err)
	}
	return message, nil
}

// GetMessages fetches the room history, newest-last, for merging with
// socket-delivered messages on room entry.
func (c *Client) GetMessages(ctx context.Context, room domain.RoomID) ([]domain.Message, error) {
	endpoint := fmt.Sprintf("%s/rooms/%s/messages", c.baseURL, url.PathEscape(string(room)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get messages: %w: %d", apperrors.ErrUnexpectedStatus, resp.StatusCode)
	}

	var messages []domain.Message
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	return messages, nil
}

// ValidateJoin re-checks room access with the collaborator before a join
// is applied. A non-200 answer rejects the join.
func (c *Client) ValidateJoin(ctx context.Context, user domain.UserID, room domain.RoomID) error {
	endpoint := fmt.Sprintf("%s/rooms/%s?userId=%s",
		c.baseURL, url.PathEscape(string(room)), url.QueryEscape(string(user)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("validate join: %w", err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", apperrors.ErrRoomValidation, resp.StatusCode)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
