//go:generate go run go.uber.org/mock/mockgen -source=coordinator.go -destination=../mocks/mock_presence_coordinator.go -package=mocks

// Package presence translates status socket lifecycle and typing frames
// into durable presence state plus broadcasts on the status topic.
package presence

import (
	"context"
	stderrors "errors"
	"hash/fnv"
	"log/slog"
	"sync"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/services"
)

type ICoordinator interface {
	HandleConnect(ctx context.Context, userID string)
	HandleDisconnect(ctx context.Context, userID string)
	HandleTyping(ctx context.Context, userID string, typing bool, conversationID *string)
}

// lockStripes bounds the lock set regardless of how many users connect.
const lockStripes = 64

// Coordinator serializes presence updates per user, so a typing frame racing
// a disconnect cannot interleave its store write and its broadcast with the
// other's. Locks are striped by user id hash; two users sharing a stripe
// serialize against each other, which is harmless.
type Coordinator struct {
	log         *slog.Logger
	gateway     services.IStoreGateway
	broadcaster contract.IBroadcaster

	locks [lockStripes]sync.Mutex
}

func NewCoordinator(log *slog.Logger, gateway services.IStoreGateway,
	broadcaster contract.IBroadcaster) *Coordinator {
	return &Coordinator{
		log:         log,
		gateway:     gateway,
		broadcaster: broadcaster,
	}
}

func (c *Coordinator) userLock(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &c.locks[h.Sum32()%lockStripes]
}

// HandleConnect marks the user online and announces it on the status topic.
// An unknown user is a no-op: the status socket may connect before the chat
// handshake ever registered the principal, and presence must not invent users.
func (c *Coordinator) HandleConnect(ctx context.Context, userID string) {
	lock := c.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := c.gateway.SetOnline(ctx, userID, true); err != nil {
		if stderrors.Is(err, errors.ErrUserNotFound) {
			c.log.Debug("presence connect for unknown user, skipping", "user_id", userID)
			return
		}
		c.log.Error("Error while marking user online", "user_id", userID, "err", err)
		return
	}

	c.broadcaster.Publish(ctx, domain.TopicUserStatus,
		event.PresenceChanged{UserID: userID, IsOnline: true}, "")
}

// HandleDisconnect marks the user offline, stamps last activity and
// announces the change. Store failures are logged and swallowed; the
// disconnect itself always completes.
func (c *Coordinator) HandleDisconnect(ctx context.Context, userID string) {
	lock := c.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := c.gateway.SetOnline(ctx, userID, false); err != nil {
		if stderrors.Is(err, errors.ErrUserNotFound) {
			c.log.Debug("presence disconnect for unknown user, skipping", "user_id", userID)
			return
		}
		c.log.Error("Error while marking user offline", "user_id", userID, "err", err)
		return
	}
	if err := c.gateway.TouchLastActive(ctx, userID); err != nil {
		c.log.Error("Error while stamping last activity", "user_id", userID, "err", err)
	}

	c.broadcaster.Publish(ctx, domain.TopicUserStatus,
		event.PresenceChanged{UserID: userID, IsOnline: false}, "")
}

// HandleTyping persists the typing flag and broadcasts it. A conversation id
// that does not resolve is demoted to nil in the store instead of failing
// the update; the broadcast still echoes the id the client supplied. When
// typing stops the stored target is always cleared, whatever the frame
// carried.
func (c *Coordinator) HandleTyping(ctx context.Context, userID string, typing bool, conversationID *string) {
	lock := c.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	target := conversationID
	if !typing {
		target = nil
	} else if target != nil {
		if err := c.gateway.ResolveConversation(ctx, *target); err != nil {
			if !stderrors.Is(err, errors.ErrConversationNotFound) {
				c.log.Error("Error while resolving typing target", "conversation_id", *target, "err", err)
				return
			}
			c.log.Debug("typing target does not resolve, dropping it", "conversation_id", *target)
			target = nil
		}
	}

	if err := c.gateway.SetTyping(ctx, userID, typing, target); err != nil {
		if stderrors.Is(err, errors.ErrUserNotFound) {
			c.log.Debug("typing update for unknown user, skipping", "user_id", userID)
			return
		}
		c.log.Error("Error while storing typing state", "user_id", userID, "err", err)
		return
	}

	c.broadcaster.Publish(ctx, domain.TopicUserStatus,
		event.TypingChanged{UserID: userID, IsTyping: typing, ConversationID: conversationID}, "")
}
