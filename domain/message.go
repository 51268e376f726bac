// Package domain contains core concepts of the relay.
// This file defines Message entities and related rules.
// Messages are immutable once created, except for the read flag
// which is mutated by the read path outside this core.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents one persisted chat message.
type Message struct {
	ID           uuid.UUID // unique identifier
	Conversation string
	SenderID     string
	Username     string
	Content      string
	Lang         string // ISO 639-1 code detected at ingestion, empty when undetected
	CreatedAt    time.Time
	Read         bool
}
