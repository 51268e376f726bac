package domain

import "time"

// PresenceRecord tracks online and typing state for one user.
// IsTyping and TypingConversation are always written together:
// IsTyping == false implies TypingConversation == nil.
type PresenceRecord struct {
	UserID             string
	Username           string
	IsOnline           bool
	IsTyping           bool
	TypingConversation *string
	LastActive         time.Time
}
