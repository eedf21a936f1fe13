// Package domain contains core concepts of the relay.
// This file defines connection identity. A connection is one live
// transport session; other components reference it only by identifier.
package domain

import "github.com/google/uuid"

type ConnID string

// NewConnID assigns an opaque identifier at connect time.
func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}

type UserID string
