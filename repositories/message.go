//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"chat-relay/domain"
)

type IMessageRepository interface {
	StoreMessage(message domain.Message) error
	GetRecentMessages(conversation string, limit int) ([]domain.Message, error)
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

// diskMessage is the stored shape. Values are JSON so the inspector and the
// wire protocol share one codec.
type diskMessage struct {
	ID           string    `json:"id"`
	Conversation string    `json:"conversation"`
	SenderID     string    `json:"sender_id"`
	Username     string    `json:"username"`
	Content      string    `json:"content"`
	Lang         string    `json:"lang,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	Read         bool      `json:"read"`
}

func messageKey(conversation string, at time.Time, id uuid.UUID) []byte {
	// "msg:{conversation}:{timestamp_padded}:{uuid}" so that:
	//  1. A prefix scan per conversation yields chronological order
	//     (19-digit zero padding keeps lexicographic == numeric).
	//  2. The UUID disambiguates two messages created in the same nanosecond.
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", conversation, at.UnixNano(), id))
}

// StoreMessage persists a message in BadgerDB. The write order of keys is the
// authoritative message order for history replay.
func (m MessageRepository) StoreMessage(message domain.Message) error {
	bytes, err := json.Marshal(fromMessage(message))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message.Conversation, message.CreatedAt, message.ID), bytes)
	})
}

// GetRecentMessages returns up to limit messages of a conversation in
// chronological order, oldest first. A reverse scan from the newest key
// collects the tail, then the slice is flipped.
func (m MessageRepository) GetRecentMessages(conversation string, limit int) ([]domain.Message, error) {
	var raw [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", conversation))
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past every possible timestamp for this conversation,
		// then walk backwards.
		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(raw) == limit {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", limit))
				break
			}
			err := it.Item().Value(func(value []byte) error {
				raw = append(raw, append([]byte{}, value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var dm diskMessage
		if err := json.Unmarshal(raw[i], &dm); err != nil {
			return nil, err
		}
		message, err := toMessage(dm)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, nil
}

func fromMessage(message domain.Message) diskMessage {
	return diskMessage{
		ID:           message.ID.String(),
		Conversation: message.Conversation,
		SenderID:     message.SenderID,
		Username:     message.Username,
		Content:      message.Content,
		Lang:         message.Lang,
		CreatedAt:    message.CreatedAt.UTC(),
		Read:         message.Read,
	}
}

func toMessage(dm diskMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(dm.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:           parsedID,
		Conversation: dm.Conversation,
		SenderID:     dm.SenderID,
		Username:     dm.Username,
		Content:      dm.Content,
		Lang:         dm.Lang,
		CreatedAt:    dm.CreatedAt.UTC(),
		Read:         dm.Read,
	}, nil
}
