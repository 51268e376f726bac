//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"chat-relay/domain"
	"chat-relay/errors"
)

// AnonymousUserID is the designated identity substituted when a sender
// cannot be resolved.
const (
	AnonymousUserID   = "anonymous"
	AnonymousUsername = "Anonymous"
)

type IUserRepository interface {
	ResolveUser(id string) (domain.PresenceRecord, error)
	CreateUser(id, username string) (domain.PresenceRecord, error)
	SetOnline(id string, online bool) error
	SetTyping(id string, typing bool, conversation *string) error
	TouchLastActive(id string) error
}

type UserRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewUserRepository(db *badger.DB, log *slog.Logger) UserRepository {
	return UserRepository{db: db, log: log}
}

// diskUser carries identity and presence fields for one user.
// Presence mutations rewrite the whole value in a single transaction,
// which keeps is_typing and its target conversation atomic.
type diskUser struct {
	ID                 string    `json:"id"`
	Username           string    `json:"username"`
	IsOnline           bool      `json:"is_online"`
	IsTyping           bool      `json:"is_typing"`
	TypingConversation *string   `json:"typing_conversation,omitempty"`
	LastActive         time.Time `json:"last_active"`
	CreatedAt          time.Time `json:"created_at"`
}

func userKey(id string) []byte { return []byte("user:" + id) }

// ResolveUser fetches a user by id. A missing user maps to ErrUserNotFound,
// never to a badger error.
func (u UserRepository) ResolveUser(id string) (domain.PresenceRecord, error) {
	var du diskUser
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &du)
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.PresenceRecord{}, errors.ErrUserNotFound
	}
	if err != nil {
		return domain.PresenceRecord{}, err
	}
	return toPresenceRecord(du), nil
}

// CreateUser persists a user if absent and returns the stored record either way.
func (u UserRepository) CreateUser(id, username string) (domain.PresenceRecord, error) {
	var du diskUser
	err := u.db.Update(func(txn *badger.Txn) error {
		if item, err := txn.Get(userKey(id)); err == nil {
			return item.Value(func(val []byte) error {
				return json.Unmarshal(val, &du)
			})
		}
		du = diskUser{
			ID:        id,
			Username:  username,
			CreatedAt: time.Now().UTC(),
		}
		data, err := json.Marshal(du)
		if err != nil {
			return err
		}
		return txn.Set(userKey(id), data)
	})
	if err != nil {
		return domain.PresenceRecord{}, err
	}
	return toPresenceRecord(du), nil
}

// SetOnline flips the online flag. Missing users are not created here:
// presence is only ever written for resolvable identities.
func (u UserRepository) SetOnline(id string, online bool) error {
	return u.mutate(id, func(du *diskUser) {
		du.IsOnline = online
	})
}

// SetTyping writes the typing flag and its target conversation together.
// A false flag always clears the target, whatever the caller passed.
func (u UserRepository) SetTyping(id string, typing bool, conversation *string) error {
	if !typing {
		conversation = nil
	}
	return u.mutate(id, func(du *diskUser) {
		du.IsTyping = typing
		du.TypingConversation = conversation
	})
}

func (u UserRepository) TouchLastActive(id string) error {
	now := time.Now().UTC()
	return u.mutate(id, func(du *diskUser) {
		du.LastActive = now
	})
}

// mutate runs a read-modify-write on one user record inside a single
// badger transaction.
func (u UserRepository) mutate(id string, fn func(*diskUser)) error {
	err := u.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(id))
		if err != nil {
			return err
		}
		var du diskUser
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &du)
		}); err != nil {
			return err
		}
		fn(&du)
		data, err := json.Marshal(du)
		if err != nil {
			return err
		}
		return txn.Set(userKey(id), data)
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return errors.ErrUserNotFound
	}
	return err
}

func toPresenceRecord(du diskUser) domain.PresenceRecord {
	return domain.PresenceRecord{
		UserID:             du.ID,
		Username:           du.Username,
		IsOnline:           du.IsOnline,
		IsTyping:           du.IsTyping,
		TypingConversation: du.TypingConversation,
		LastActive:         du.LastActive.UTC(),
	}
}
