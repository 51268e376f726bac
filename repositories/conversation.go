//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"chat-relay/errors"
)

type IConversationRepository interface {
	ResolveConversation(id string) (Conversation, error)
	GetOrCreateConversation(id string) (Conversation, error)
}

type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

type ConversationRepository struct {
	db *badger.DB
}

func NewConversationRepository(db *badger.DB) ConversationRepository {
	return ConversationRepository{db: db}
}

func conversationKey(id string) []byte { return []byte("conv:" + id) }

func (c ConversationRepository) ResolveConversation(id string) (Conversation, error) {
	var conv Conversation
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(conversationKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &conv)
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return Conversation{}, errors.ErrConversationNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	return conv, nil
}

// GetOrCreateConversation lazily creates the well-known global room.
func (c ConversationRepository) GetOrCreateConversation(id string) (Conversation, error) {
	var conv Conversation
	err := c.db.Update(func(txn *badger.Txn) error {
		if item, err := txn.Get(conversationKey(id)); err == nil {
			return item.Value(func(val []byte) error {
				return json.Unmarshal(val, &conv)
			})
		}
		conv = Conversation{ID: id, CreatedAt: time.Now().UTC()}
		data, err := json.Marshal(conv)
		if err != nil {
			return err
		}
		return txn.Set(conversationKey(id), data)
	})
	return conv, err
}
