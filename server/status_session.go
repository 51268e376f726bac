package server

import (
	"context"
	"log/slog"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/observability"
	"chat-relay/presence"
)

// StatusSession drives one status socket. Every connection joins the status
// topic, authenticated or not, so the acceptance path stays uniform; inbound
// frames are ignored until an identity is established.
type StatusSession struct {
	conn        *Conn
	log         *slog.Logger
	coordinator presence.ICoordinator
	broadcaster contract.IBroadcaster
	monitor     *observability.Monitor
	topic       domain.Topic

	userID        string
	authenticated bool
}

func NewStatusSession(conn *Conn, log *slog.Logger, coordinator presence.ICoordinator,
	broadcaster contract.IBroadcaster, monitor *observability.Monitor, userID string) *StatusSession {
	return &StatusSession{
		conn:          conn,
		log:           log,
		coordinator:   coordinator,
		broadcaster:   broadcaster,
		monitor:       monitor,
		topic:         domain.TopicUserStatus,
		userID:        userID,
		authenticated: userID != "",
	}
}

func (s *StatusSession) Consume(_ context.Context, e event.BroadcastEvent) error {
	raw, err := event.Marshal(e)
	if err != nil {
		return err
	}
	return s.conn.Enqueue(raw)
}

func (s *StatusSession) Detach() {
	s.conn.Detach()
}

func (s *StatusSession) Run(ctx context.Context) {
	s.monitor.ConnectionOpened()
	defer s.monitor.ConnectionClosed()

	s.broadcaster.Subscribe(s.topic, s.conn.ID, s)
	if s.authenticated {
		s.coordinator.HandleConnect(ctx, s.userID)
	}

	go s.conn.WritePump()

	s.conn.ReadPump(func(raw []byte) {
		s.handleFrame(ctx, raw)
	})

	s.broadcaster.Unsubscribe(s.topic, s.conn.ID)
	if s.authenticated {
		s.coordinator.HandleDisconnect(ctx, s.userID)
	}
}

func (s *StatusSession) handleFrame(ctx context.Context, raw []byte) {
	if !s.authenticated {
		return
	}

	env, err := decodeFrame[envelope](raw)
	if err != nil {
		s.log.Debug("Dropping malformed frame", "conn_id", s.conn.ID, "err", err)
		return
	}
	if env.Type != "typing_status" {
		s.log.Debug("Dropping frame of unknown type", "conn_id", s.conn.ID, "type", env.Type)
		return
	}

	frame, err := decodeFrame[typingFrame](raw)
	if err != nil {
		s.log.Debug("Dropping malformed typing frame", "conn_id", s.conn.ID, "err", err)
		return
	}
	s.coordinator.HandleTyping(ctx, s.userID, frame.IsTyping, frame.ConversationID)
}
