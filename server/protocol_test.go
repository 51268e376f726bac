package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeFrame_Envelope(t *testing.T) {
	req := require.New(t)

	env, err := decodeFrame[envelope]([]byte(`{"type":"join","userId":"u1"}`))
	req.NoError(err)
	req.Equal("join", env.Type)
}

func TestDecodeFrame_Rejects_Missing_Type(t *testing.T) {
	req := require.New(t)

	_, err := decodeFrame[envelope]([]byte(`{"userId":"u1"}`))
	req.Error(err)
}

func TestDecodeFrame_Rejects_Non_JSON(t *testing.T) {
	req := require.New(t)

	_, err := decodeFrame[envelope]([]byte(`not json at all`))
	req.Error(err)
}

func TestDecodeFrame_Join_Requires_Identity(t *testing.T) {
	req := require.New(t)

	_, err := decodeFrame[joinFrame]([]byte(`{"type":"join","userId":"u1"}`))
	req.Error(err)

	frame, err := decodeFrame[joinFrame]([]byte(`{"type":"join","userId":"u1","username":"alice"}`))
	req.NoError(err)
	req.Equal("u1", frame.UserID)
	req.Equal("alice", frame.Username)
}

func TestDecodeFrame_Message_Allows_Empty_Text(t *testing.T) {
	req := require.New(t)

	frame, err := decodeFrame[messageFrame]([]byte(`{"type":"message","userId":"u1"}`))
	req.NoError(err)
	req.Equal("", frame.Text)

	frame, err = decodeFrame[messageFrame]([]byte(`{"type":"message","userId":"u1","text":""}`))
	req.NoError(err)
	req.Equal("", frame.Text)
}

func TestDecodeFrame_Typing_Conversation_Is_Optional(t *testing.T) {
	req := require.New(t)

	frame, err := decodeFrame[typingFrame]([]byte(`{"type":"typing_status","is_typing":true}`))
	req.NoError(err)
	req.True(frame.IsTyping)
	req.Nil(frame.ConversationID)

	frame, err = decodeFrame[typingFrame]([]byte(`{"type":"typing_status","is_typing":true,"conversation_id":"room-7"}`))
	req.NoError(err)
	req.Equal("room-7", *frame.ConversationID)
}
