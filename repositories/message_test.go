package repositories

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chat-relay/domain"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func Test_Store_And_Fetch_Chronological(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	repository := NewMessageRepository(db, slog.Default())
	conversation := "global"
	at := time.Now().UTC().Truncate(time.Millisecond)
	messages := []domain.Message{
		{ID: uuid.New(), Conversation: conversation, SenderID: "u1", Username: "Alice", Content: "first", CreatedAt: at},
		{ID: uuid.New(), Conversation: conversation, SenderID: "u2", Username: "Bob", Content: "second", CreatedAt: at.Add(1 * time.Minute)},
		{ID: uuid.New(), Conversation: conversation, SenderID: "u3", Username: "Clara", Content: "third", CreatedAt: at.Add(2 * time.Minute)},
	}
	// Store out of order, the key scheme must restore chronology
	for _, i := range []int{2, 0, 1} {
		req.NoError(repository.StoreMessage(messages[i]))
	}

	fetched, err := repository.GetRecentMessages(conversation, 50)
	req.NoError(err)
	req.Len(fetched, len(messages))
	req.Equal(messages, fetched)
}

func Test_Fetch_Caps_At_Limit_Keeping_Newest(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	repository := NewMessageRepository(db, slog.Default())
	conversation := "global"
	at := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 5; i++ {
		req.NoError(repository.StoreMessage(domain.Message{
			ID:           uuid.New(),
			Conversation: conversation,
			SenderID:     "u1",
			Username:     "Alice",
			Content:      fmt.Sprintf("message %d", i),
			CreatedAt:    at.Add(time.Duration(i) * time.Second),
		}))
	}

	fetched, err := repository.GetRecentMessages(conversation, 3)
	req.NoError(err)
	req.Len(fetched, 3)
	// Oldest first, and the oldest two are gone
	req.Equal("message 2", fetched[0].Content)
	req.Equal("message 4", fetched[2].Content)
}

func Test_Fetch_Empty_Conversation(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	repository := NewMessageRepository(db, slog.Default())
	fetched, err := repository.GetRecentMessages("global", 50)
	req.NoError(err)
	req.Empty(fetched)
}

func Test_Conversations_Are_Isolated(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	repository := NewMessageRepository(db, slog.Default())
	at := time.Now().UTC().Truncate(time.Millisecond)
	req.NoError(repository.StoreMessage(domain.Message{
		ID: uuid.New(), Conversation: "global", SenderID: "u1", Username: "Alice", Content: "public", CreatedAt: at,
	}))
	req.NoError(repository.StoreMessage(domain.Message{
		ID: uuid.New(), Conversation: "private", SenderID: "u1", Username: "Alice", Content: "secret", CreatedAt: at,
	}))

	fetched, err := repository.GetRecentMessages("global", 50)
	req.NoError(err)
	req.Len(fetched, 1)
	req.Equal("public", fetched[0].Content)
}
