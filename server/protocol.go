package server

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// envelope is the minimal shape every inbound frame must have. Frames
// without a type are dropped without closing the session.
type envelope struct {
	Type string `json:"type" validate:"required"`
}

type joinFrame struct {
	UserID   string `json:"userId" validate:"required"`
	Username string `json:"username" validate:"required"`
}

// messageFrame tolerates an absent text field; the empty string is a valid
// message body and is persisted as such.
type messageFrame struct {
	UserID string `json:"userId"`
	Text   string `json:"text"`
}

type typingFrame struct {
	ConversationID *string `json:"conversation_id"`
	IsTyping       bool    `json:"is_typing"`
}

func decodeFrame[T any](raw []byte) (T, error) {
	var frame T
	if err := json.Unmarshal(raw, &frame); err != nil {
		return frame, err
	}
	if err := validate.Struct(&frame); err != nil {
		return frame, err
	}
	return frame, nil
}
