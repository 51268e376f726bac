// Package event defines the broadcast events exchanged between sessions
// through the registry. Events are transient and never persisted.
//
// Each event is a distinct variant tagged by Kind. Adding a kind means
// adding a variant and extending the Marshal dispatcher, which the compiler
// checks, instead of registering a handler under a magic string.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"chat-relay/domain"
)

type Kind int

const (
	KindHistory Kind = iota
	KindChatMessage
	KindUserJoined
	KindUserLeft
	KindUsersList
	KindPresenceChanged
	KindTypingChanged
	KindCallJoin
	KindCallLeave
	KindCallOffer
	KindCallAnswer
	KindIceCandidate
)

func (k Kind) String() string {
	switch k {
	case KindHistory:
		return "history"
	case KindChatMessage:
		return "chat-message"
	case KindUserJoined:
		return "user-join"
	case KindUserLeft:
		return "user-left"
	case KindUsersList:
		return "users"
	case KindPresenceChanged:
		return "user_status"
	case KindTypingChanged:
		return "typing_status"
	case KindCallJoin:
		return "join-call"
	case KindCallLeave:
		return "leave-call"
	case KindCallOffer:
		return "offer"
	case KindCallAnswer:
		return "answer"
	case KindIceCandidate:
		return "ice-candidate"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// BroadcastEvent is the tagged union consumed by topic members.
type BroadcastEvent interface {
	Kind() Kind
}

// WireMessage is the shape a chat message takes on the wire, both inside a
// history batch and as a live broadcast.
type WireMessage struct {
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// FromMessage maps a persisted message to its wire shape.
func FromMessage(m domain.Message) WireMessage {
	return WireMessage{
		Type:      "message",
		UserID:    m.SenderID,
		Username:  m.Username,
		Text:      m.Content,
		Timestamp: m.CreatedAt.Format(time.RFC3339Nano),
	}
}

// History carries the backlog sent to one freshly joined connection.
// It is delivered point to point, never published to a topic.
type History struct {
	Messages []WireMessage
}

func (History) Kind() Kind { return KindHistory }

// ChatMessage is a live message fan-out. It carries the persisted message
// so downstream sinks (search indexing) keep the stable id; the wire payload
// is the bare message object, not wrapped under a "type":"chat-message"
// envelope, so clients render history entries and live messages identically.
type ChatMessage struct {
	Stored domain.Message
}

func (ChatMessage) Kind() Kind { return KindChatMessage }

type UserJoined struct {
	UserID   string
	Username string
}

func (UserJoined) Kind() Kind { return KindUserJoined }

type UserLeft struct {
	UserID string
}

func (UserLeft) Kind() Kind { return KindUserLeft }

type UserRef struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// UsersList announces the current room membership after a join.
type UsersList struct {
	Users []UserRef
}

func (UsersList) Kind() Kind { return KindUsersList }

type PresenceChanged struct {
	UserID   string
	IsOnline bool
}

func (PresenceChanged) Kind() Kind { return KindPresenceChanged }

type TypingChanged struct {
	UserID         string
	IsTyping       bool
	ConversationID *string
}

func (TypingChanged) Kind() Kind { return KindTypingChanged }

// CallSignal relays WebRTC signaling verbatim. Payload is the original
// inbound frame; the relay never inspects SDP or ICE contents.
type CallSignal struct {
	SignalKind Kind
	Payload    json.RawMessage
}

func (s CallSignal) Kind() Kind { return s.SignalKind }

// ParseSignalKind maps an inbound frame type to its call-signal variant.
func ParseSignalKind(frameType string) (Kind, bool) {
	switch frameType {
	case "join-call":
		return KindCallJoin, true
	case "leave-call":
		return KindCallLeave, true
	case "offer":
		return KindCallOffer, true
	case "answer":
		return KindCallAnswer, true
	case "ice-candidate":
		return KindIceCandidate, true
	}
	return 0, false
}

// Marshal encodes an event into its outbound frame. The switch is total
// over every variant; an unknown dynamic type is a programming error.
func Marshal(e BroadcastEvent) ([]byte, error) {
	switch ev := e.(type) {
	case History:
		return json.Marshal(struct {
			Type     string        `json:"type"`
			Messages []WireMessage `json:"messages"`
		}{Type: "history", Messages: ev.Messages})
	case ChatMessage:
		return json.Marshal(FromMessage(ev.Stored))
	case UserJoined:
		return json.Marshal(struct {
			Type     string `json:"type"`
			UserID   string `json:"userId"`
			Username string `json:"username"`
		}{Type: "user-join", UserID: ev.UserID, Username: ev.Username})
	case UserLeft:
		return json.Marshal(struct {
			Type   string `json:"type"`
			UserID string `json:"userId"`
		}{Type: "user-left", UserID: ev.UserID})
	case UsersList:
		return json.Marshal(struct {
			Type  string    `json:"type"`
			Users []UserRef `json:"users"`
		}{Type: "users", Users: ev.Users})
	case PresenceChanged:
		return json.Marshal(struct {
			Type     string `json:"type"`
			UserID   string `json:"user_id"`
			IsOnline bool   `json:"is_online"`
		}{Type: "user_status", UserID: ev.UserID, IsOnline: ev.IsOnline})
	case TypingChanged:
		return json.Marshal(struct {
			Type           string  `json:"type"`
			UserID         string  `json:"user_id"`
			IsTyping       bool    `json:"is_typing"`
			ConversationID *string `json:"conversation_id"`
		}{Type: "typing_status", UserID: ev.UserID, IsTyping: ev.IsTyping, ConversationID: ev.ConversationID})
	case CallSignal:
		return ev.Payload, nil
	}
	return nil, fmt.Errorf("unknown event type %T", e)
}
