// Package domain contains core concepts of the relay.
// This file defines the persisted message record. Messages are created by
// the external Message Delivery API; the relay treats them as opaque
// payload after persistence and never stores content itself.
package domain

import "time"

// Author is the denormalized sender embedded in a persisted record.
type Author struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
}

// Message is a fully-formed persisted message record.
type Message struct {
	ID        string    `json:"id" validate:"required"`
	Content   string    `json:"content" validate:"required"`
	AuthorID  string    `json:"authorId" validate:"required"`
	RoomID    string    `json:"roomId" validate:"required"`
	CreatedAt time.Time `json:"createdAt"`
	Author    *Author   `json:"author,omitempty"`
}
