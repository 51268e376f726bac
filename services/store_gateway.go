//go:generate go run go.uber.org/mock/mockgen -source=store_gateway.go -destination=../mocks/mock_store_gateway.go -package=mocks
package services

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
)

// IStoreGateway is the narrow interface the sessions and the presence
// coordinator use to reach durable storage. Every call may fail with a
// not-found condition, which callers treat as non-fatal: the effect is
// dropped and the connection stays up.
type IStoreGateway interface {
	GetRecentMessages(ctx context.Context, conversation string, limit int) ([]domain.Message, error)
	CreateMessage(ctx context.Context, conversation, senderID, text, lang string) (domain.Message, error)
	ResolveOrCreateUser(ctx context.Context, id string) (domain.PresenceRecord, error)
	RecordIdentity(ctx context.Context, id, username string) (domain.PresenceRecord, error)
	SetOnline(ctx context.Context, userID string, online bool) error
	SetTyping(ctx context.Context, userID string, typing bool, conversation *string) error
	TouchLastActive(ctx context.Context, userID string) error
	ResolveConversation(ctx context.Context, id string) error
}

type StoreGateway struct {
	log           *slog.Logger
	messages      repositories.IMessageRepository
	users         repositories.IUserRepository
	conversations repositories.IConversationRepository
}

func NewStoreGateway(log *slog.Logger,
	messages repositories.IMessageRepository,
	users repositories.IUserRepository,
	conversations repositories.IConversationRepository) *StoreGateway {
	return &StoreGateway{
		log:           log,
		messages:      messages,
		users:         users,
		conversations: conversations,
	}
}

func (g *StoreGateway) GetRecentMessages(_ context.Context, conversation string, limit int) ([]domain.Message, error) {
	return g.messages.GetRecentMessages(conversation, limit)
}

// CreateMessage resolves the sender, lazily creates the conversation and
// persists the message. An unresolvable sender is replaced by the anonymous
// identity rather than rejected, so a stale client keeps working.
func (g *StoreGateway) CreateMessage(ctx context.Context, conversation, senderID, text, lang string) (domain.Message, error) {
	sender, err := g.ResolveOrCreateUser(ctx, senderID)
	if err != nil {
		return domain.Message{}, err
	}
	if _, err := g.conversations.GetOrCreateConversation(conversation); err != nil {
		return domain.Message{}, err
	}
	message := domain.Message{
		ID:           uuid.New(),
		Conversation: conversation,
		SenderID:     sender.UserID,
		Username:     sender.Username,
		Content:      text,
		Lang:         lang,
		CreatedAt:    time.Now().UTC(),
	}
	if err := g.messages.StoreMessage(message); err != nil {
		return domain.Message{}, err
	}
	return message, nil
}

// ResolveOrCreateUser falls back to the designated anonymous identity when
// the id does not resolve.
func (g *StoreGateway) ResolveOrCreateUser(_ context.Context, id string) (domain.PresenceRecord, error) {
	if id != "" {
		record, err := g.users.ResolveUser(id)
		if err == nil {
			return record, nil
		}
		if !stderrors.Is(err, errors.ErrUserNotFound) {
			return domain.PresenceRecord{}, err
		}
		g.log.Debug("unknown sender, substituting anonymous identity", "user_id", id)
	}
	return g.users.CreateUser(repositories.AnonymousUserID, repositories.AnonymousUsername)
}

// RecordIdentity makes a principal announced by a join handshake resolvable
// for later message persistence and presence writes. Creation is idempotent;
// an existing record keeps its stored username.
func (g *StoreGateway) RecordIdentity(_ context.Context, id, username string) (domain.PresenceRecord, error) {
	if id == "" {
		return g.users.CreateUser(repositories.AnonymousUserID, repositories.AnonymousUsername)
	}
	return g.users.CreateUser(id, username)
}

func (g *StoreGateway) SetOnline(_ context.Context, userID string, online bool) error {
	return g.users.SetOnline(userID, online)
}

func (g *StoreGateway) SetTyping(_ context.Context, userID string, typing bool, conversation *string) error {
	return g.users.SetTyping(userID, typing, conversation)
}

func (g *StoreGateway) TouchLastActive(_ context.Context, userID string) error {
	return g.users.TouchLastActive(userID)
}

func (g *StoreGateway) ResolveConversation(_ context.Context, id string) error {
	_, err := g.conversations.ResolveConversation(id)
	return err
}
