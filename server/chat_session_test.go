package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"chat-relay/domain"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/services"
)

type testRelay struct {
	registry *runtime.Registry
	gateway  *services.StoreGateway
	history  *HistoryBootstrapper
	monitor  *observability.Monitor
}

func newTestRelay(t *testing.T) *testRelay {
	t.Helper()

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	log := slog.Default()
	gateway := services.NewStoreGateway(log,
		repositories.NewMessageRepository(db, log),
		repositories.NewUserRepository(db, log),
		repositories.NewConversationRepository(db))
	monitor := observability.NewMonitor()

	return &testRelay{
		registry: runtime.NewRegistry(log),
		gateway:  gateway,
		history:  NewHistoryBootstrapper(log, gateway, monitor, 50),
		monitor:  monitor,
	}
}

// newSession wires a chat session to the relay the way Run does, without a
// real websocket underneath. Frames pile up in the connection's send queue.
func (r *testRelay) newSession(t *testing.T) *ChatSession {
	t.Helper()

	moderator, err := moderation.NewModerator([]string{"badword"}, '*')
	require.NoError(t, err)

	conn := NewConn(nil, slog.Default(), r.monitor, 64)
	session := NewChatSession(conn, slog.Default(), r.gateway, r.registry,
		r.history, &moderator, r.monitor)
	r.registry.Subscribe(session.topic, conn.ID, session)
	return session
}

func drainFrames(t *testing.T, session *ChatSession) []map[string]any {
	t.Helper()

	frames := make([]map[string]any, 0)
	for {
		select {
		case raw := <-session.conn.send:
			var frame map[string]any
			require.NoError(t, json.Unmarshal(raw, &frame))
			frames = append(frames, frame)
		default:
			return frames
		}
	}
}

func frameOfType(frames []map[string]any, frameType string) (map[string]any, bool) {
	for _, frame := range frames {
		if frame["type"] == frameType {
			return frame, true
		}
	}
	return nil, false
}

func joinRaw(userID, username string) []byte {
	return []byte(fmt.Sprintf(`{"type":"join","userId":%q,"username":%q}`, userID, username))
}

func messageRaw(userID, text string) []byte {
	return []byte(fmt.Sprintf(`{"type":"message","userId":%q,"text":%q}`, userID, text))
}

func TestChatSession_Join_Echoes_To_Everyone(t *testing.T) {
	req := require.New(t)
	relay := newTestRelay(t)
	ctx := context.Background()

	alice := relay.newSession(t)
	bob := relay.newSession(t)

	alice.handleFrame(ctx, joinRaw("u1", "alice"))

	for _, session := range []*ChatSession{alice, bob} {
		frames := drainFrames(t, session)

		join, ok := frameOfType(frames, "user-join")
		req.True(ok)
		req.Equal("u1", join["userId"])
		req.Equal("alice", join["username"])

		users, ok := frameOfType(frames, "users")
		req.True(ok)
		req.Len(users["users"], 1)
	}
}

func TestChatSession_Users_List_Grows_With_Joins(t *testing.T) {
	req := require.New(t)
	relay := newTestRelay(t)
	ctx := context.Background()

	alice := relay.newSession(t)
	bob := relay.newSession(t)

	alice.handleFrame(ctx, joinRaw("u1", "alice"))
	drainFrames(t, alice)
	drainFrames(t, bob)

	bob.handleFrame(ctx, joinRaw("u2", "bob"))

	frames := drainFrames(t, alice)
	users, ok := frameOfType(frames, "users")
	req.True(ok)
	req.Len(users["users"], 2)
}

func TestChatSession_Message_Round_Trip(t *testing.T) {
	req := require.New(t)
	relay := newTestRelay(t)
	ctx := context.Background()

	alice := relay.newSession(t)
	bob := relay.newSession(t)
	alice.handleFrame(ctx, joinRaw("u1", "alice"))
	drainFrames(t, alice)
	drainFrames(t, bob)

	alice.handleFrame(ctx, messageRaw("u1", "hi"))

	// Exactly one persisted message, attributed to the joined sender
	stored, err := relay.gateway.GetRecentMessages(ctx, string(domain.TopicGlobalChat), 50)
	req.NoError(err)
	req.Len(stored, 1)
	req.Equal("u1", stored[0].SenderID)
	req.Equal("hi", stored[0].Content)

	// Both members, sender included, see the broadcast unwrapped
	for _, session := range []*ChatSession{alice, bob} {
		frames := drainFrames(t, session)
		req.Len(frames, 1)
		req.Equal("message", frames[0]["type"])
		req.Equal("u1", frames[0]["userId"])
		req.Equal("alice", frames[0]["username"])
		req.Equal("hi", frames[0]["text"])
	}
}

func TestChatSession_Empty_Message_Is_Persisted(t *testing.T) {
	req := require.New(t)
	relay := newTestRelay(t)
	ctx := context.Background()

	alice := relay.newSession(t)
	alice.handleFrame(ctx, joinRaw("u1", "alice"))
	drainFrames(t, alice)

	alice.handleFrame(ctx, messageRaw("u1", ""))

	stored, err := relay.gateway.GetRecentMessages(ctx, string(domain.TopicGlobalChat), 50)
	req.NoError(err)
	req.Len(stored, 1)
	req.Equal("", stored[0].Content)

	frames := drainFrames(t, alice)
	req.Len(frames, 1)
	req.Equal("message", frames[0]["type"])
	req.Equal("", frames[0]["text"])
}

func TestChatSession_Message_From_Unknown_Sender_Is_Anonymous(t *testing.T) {
	req := require.New(t)
	relay := newTestRelay(t)
	ctx := context.Background()

	alice := relay.newSession(t)
	alice.handleFrame(ctx, messageRaw("never-joined", "hi"))

	stored, err := relay.gateway.GetRecentMessages(ctx, string(domain.TopicGlobalChat), 50)
	req.NoError(err)
	req.Len(stored, 1)
	req.Equal(repositories.AnonymousUserID, stored[0].SenderID)
}

func TestChatSession_Message_Is_Censored_Before_Store_And_Broadcast(t *testing.T) {
	req := require.New(t)
	relay := newTestRelay(t)
	ctx := context.Background()

	alice := relay.newSession(t)
	alice.handleFrame(ctx, joinRaw("u1", "alice"))
	drainFrames(t, alice)

	alice.handleFrame(ctx, messageRaw("u1", "what a badword here"))

	stored, err := relay.gateway.GetRecentMessages(ctx, string(domain.TopicGlobalChat), 50)
	req.NoError(err)
	req.Equal("what a ******* here", stored[0].Content)

	frames := drainFrames(t, alice)
	req.Equal("what a ******* here", frames[0]["text"])
}

func TestChatSession_Signaling_Relayed_Verbatim(t *testing.T) {
	req := require.New(t)
	relay := newTestRelay(t)
	ctx := context.Background()

	alice := relay.newSession(t)
	bob := relay.newSession(t)

	raw := `{"type":"offer","userId":"u1","sdp":"v=0 o=- 46117"}`
	alice.handleFrame(ctx, []byte(raw))

	for _, session := range []*ChatSession{alice, bob} {
		frames := drainFrames(t, session)
		req.Len(frames, 1)
		req.Equal("offer", frames[0]["type"])
		req.Equal("v=0 o=- 46117", frames[0]["sdp"])
	}
}

func TestChatSession_Malformed_Frames_Are_Dropped(t *testing.T) {
	req := require.New(t)
	relay := newTestRelay(t)
	ctx := context.Background()

	alice := relay.newSession(t)
	bob := relay.newSession(t)

	alice.handleFrame(ctx, []byte(`this is not json`))
	alice.handleFrame(ctx, []byte(`{"userId":"u1"}`))
	alice.handleFrame(ctx, []byte(`{"type":"teleport"}`))
	alice.handleFrame(ctx, []byte(`{"type":"join","userId":"u1"}`))

	req.Empty(drainFrames(t, alice))
	req.Empty(drainFrames(t, bob))
}

func TestChatSession_Disconnect_Notifies_Only_After_Join(t *testing.T) {
	req := require.New(t)
	relay := newTestRelay(t)
	ctx := context.Background()

	ghost := relay.newSession(t)
	bob := relay.newSession(t)

	// Leaving before any join handshake stays silent
	ghost.disconnect(ctx)
	req.Empty(drainFrames(t, bob))

	alice := relay.newSession(t)
	alice.handleFrame(ctx, joinRaw("u1", "alice"))
	drainFrames(t, alice)
	drainFrames(t, bob)

	alice.disconnect(ctx)

	frames := drainFrames(t, bob)
	left, ok := frameOfType(frames, "user-left")
	req.True(ok)
	req.Equal("u1", left["userId"])

	// The departed member never sees its own user-left echo
	req.Empty(drainFrames(t, alice))
}

// failingIdentityGateway delegates everything except RecordIdentity, which
// always reports a broken store.
type failingIdentityGateway struct {
	services.IStoreGateway
}

func (g *failingIdentityGateway) RecordIdentity(context.Context, string, string) (domain.PresenceRecord, error) {
	return domain.PresenceRecord{}, fmt.Errorf("store offline")
}

func TestChatSession_Join_Survives_Identity_Store_Failure(t *testing.T) {
	req := require.New(t)
	relay := newTestRelay(t)
	ctx := context.Background()

	alice := relay.newSession(t)
	bob := relay.newSession(t)
	alice.gateway = &failingIdentityGateway{IStoreGateway: relay.gateway}

	alice.handleFrame(ctx, joinRaw("u1", "alice"))

	// The join still announces the identity the frame carried
	frames := drainFrames(t, bob)
	join, ok := frameOfType(frames, "user-join")
	req.True(ok)
	req.Equal("u1", join["userId"])
	req.Equal("alice", join["username"])

	users, ok := frameOfType(frames, "users")
	req.True(ok)
	req.Len(users["users"], 1)

	// And the eventual departure is announced too
	drainFrames(t, alice)
	alice.disconnect(ctx)

	frames = drainFrames(t, bob)
	left, ok := frameOfType(frames, "user-left")
	req.True(ok)
	req.Equal("u1", left["userId"])
}

func TestChatSession_History_Catch_Up_For_Late_Joiner(t *testing.T) {
	req := require.New(t)
	relay := newTestRelay(t)
	ctx := context.Background()

	alice := relay.newSession(t)
	alice.handleFrame(ctx, joinRaw("u1", "alice"))
	drainFrames(t, alice)
	alice.handleFrame(ctx, messageRaw("u1", "first"))
	alice.handleFrame(ctx, messageRaw("u1", "hello"))
	drainFrames(t, alice)

	carol := relay.newSession(t)
	relay.history.Send(ctx, carol.topic, carol)

	frames := drainFrames(t, carol)
	req.Len(frames, 1)
	req.Equal("history", frames[0]["type"])

	messages := frames[0]["messages"].([]any)
	req.Len(messages, 2)
	first := messages[0].(map[string]any)
	last := messages[1].(map[string]any)
	req.Equal("first", first["text"])
	req.Equal("hello", last["text"])

	// Nobody else received the catch-up batch
	req.Empty(drainFrames(t, alice))
}
