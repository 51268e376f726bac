package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/abadojack/whatlanggo"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/services"
)

// ChatSession drives one room connection from accept to close. It is the
// topic member registered with the broadcaster, so Consume and Detach run
// on publisher goroutines while the frame handling runs on the read pump.
type ChatSession struct {
	conn        *Conn
	log         *slog.Logger
	gateway     services.IStoreGateway
	broadcaster contract.IBroadcaster
	history     *HistoryBootstrapper
	moderator   *moderation.Moderator
	monitor     *observability.Monitor
	topic       domain.Topic

	mu       sync.RWMutex
	userID   string
	username string
	joined   bool
}

func NewChatSession(conn *Conn, log *slog.Logger, gateway services.IStoreGateway,
	broadcaster contract.IBroadcaster, history *HistoryBootstrapper,
	moderator *moderation.Moderator, monitor *observability.Monitor) *ChatSession {
	return &ChatSession{
		conn:        conn,
		log:         log,
		gateway:     gateway,
		broadcaster: broadcaster,
		history:     history,
		moderator:   moderator,
		monitor:     monitor,
		topic:       domain.TopicGlobalChat,
	}
}

// Consume implements contract.EventSink by marshaling the event and handing
// it to the write pump. It never blocks the publisher.
func (s *ChatSession) Consume(_ context.Context, e event.BroadcastEvent) error {
	raw, err := event.Marshal(e)
	if err != nil {
		return err
	}
	return s.conn.Enqueue(raw)
}

// Detach implements contract.Detachable; the registry calls it after a
// failed delivery so the session runs its normal disconnect path.
func (s *ChatSession) Detach() {
	s.conn.Detach()
}

// Identity implements contract.Identified once a join frame was processed.
func (s *ChatSession) Identity() (string, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.username, s.joined
}

// Run blocks until the connection closes. Subscription happens before the
// history bootstrap so no live message published in between can be missed.
func (s *ChatSession) Run(ctx context.Context) {
	s.monitor.ConnectionOpened()
	defer s.monitor.ConnectionClosed()

	s.broadcaster.Subscribe(s.topic, s.conn.ID, s)

	go s.history.Send(ctx, s.topic, s)
	go s.conn.WritePump()

	s.conn.ReadPump(func(raw []byte) {
		s.handleFrame(ctx, raw)
	})

	s.disconnect(ctx)
}

func (s *ChatSession) handleFrame(ctx context.Context, raw []byte) {
	env, err := decodeFrame[envelope](raw)
	if err != nil {
		s.log.Debug("Dropping malformed frame", "conn_id", s.conn.ID, "err", err)
		return
	}

	switch env.Type {
	case "join":
		s.handleJoin(ctx, raw)
	case "message":
		s.handleMessage(ctx, raw)
	default:
		if kind, ok := event.ParseSignalKind(env.Type); ok {
			s.handleSignal(ctx, kind, raw)
			return
		}
		s.log.Debug("Dropping frame of unknown type", "conn_id", s.conn.ID, "type", env.Type)
	}
}

// handleJoin records the identity, announces the join to everyone including
// the joiner, then pushes the refreshed member list to the whole room.
func (s *ChatSession) handleJoin(ctx context.Context, raw []byte) {
	frame, err := decodeFrame[joinFrame](raw)
	if err != nil {
		s.log.Debug("Dropping malformed join frame", "conn_id", s.conn.ID, "err", err)
		return
	}

	// The session identity does not depend on storage: a failed write only
	// abandons the persistence effect, the join itself proceeds with the
	// identity the frame announced.
	userID, username := frame.UserID, frame.Username
	record, err := s.gateway.RecordIdentity(ctx, frame.UserID, frame.Username)
	if err != nil {
		s.log.Error("Error while recording identity", "user_id", frame.UserID, "err", err)
	} else {
		userID, username = record.UserID, record.Username
	}

	s.mu.Lock()
	s.userID = userID
	s.username = username
	s.joined = true
	s.mu.Unlock()

	s.broadcaster.Publish(ctx, s.topic,
		event.UserJoined{UserID: userID, Username: username}, "")
	s.broadcaster.Publish(ctx, s.topic, event.UsersList{Users: s.roomMembers()}, "")
	s.monitor.IncrBroadcasts()
}

// roomMembers collects the identities of every subscribed session that
// completed its join handshake, deduplicated per user.
func (s *ChatSession) roomMembers() []event.UserRef {
	seen := make(map[string]struct{})
	users := make([]event.UserRef, 0)
	for _, sink := range s.broadcaster.Snapshot(s.topic) {
		identified, ok := sink.(contract.Identified)
		if !ok {
			continue
		}
		userID, username, ok := identified.Identity()
		if !ok {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		users = append(users, event.UserRef{UserID: userID, Username: username})
	}
	return users
}

// handleMessage persists the (censored) text and fans the stored message out
// to every member, sender included. A failed store drops the frame without
// any broadcast, so history and live views never diverge.
func (s *ChatSession) handleMessage(ctx context.Context, raw []byte) {
	frame, err := decodeFrame[messageFrame](raw)
	if err != nil {
		s.log.Debug("Dropping malformed message frame", "conn_id", s.conn.ID, "err", err)
		return
	}

	censored := s.moderator.Censor(frame.Text)
	info := whatlanggo.Detect(censored)

	message, err := s.gateway.CreateMessage(ctx, string(s.topic), frame.UserID, censored, info.Lang.Iso6391())
	if err != nil {
		s.log.Error("Error while persisting message", "conn_id", s.conn.ID, "err", err)
		return
	}
	s.monitor.IncrMessagesPersisted()

	s.broadcaster.Publish(ctx, s.topic, event.ChatMessage{Stored: message}, "")
	s.monitor.IncrBroadcasts()
}

// handleSignal relays call signaling verbatim to every member.
func (s *ChatSession) handleSignal(ctx context.Context, kind event.Kind, raw []byte) {
	s.broadcaster.Publish(ctx, s.topic, event.CallSignal{SignalKind: kind, Payload: raw}, "")
	s.monitor.IncrBroadcasts()
}

// disconnect unsubscribes first, so the departing member can never receive
// its own user-left echo, then notifies the room if an identity was known.
func (s *ChatSession) disconnect(ctx context.Context) {
	s.broadcaster.Unsubscribe(s.topic, s.conn.ID)

	userID, _, joined := s.Identity()
	if !joined {
		return
	}
	s.broadcaster.Publish(ctx, s.topic, event.UserLeft{UserID: userID}, "")
	s.monitor.IncrBroadcasts()
}
