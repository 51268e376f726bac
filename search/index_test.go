package search

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chat-relay/domain"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()

	blugeCfg := bluge.DefaultConfig(t.TempDir())
	blugeWriter, err := bluge.OpenWriter(blugeCfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, blugeWriter.Close())
	})

	return NewIndex(blugeWriter, slog.Default())
}

func testMessage(content string) domain.Message {
	return domain.Message{
		ID:           uuid.New(),
		Conversation: "global_chat",
		SenderID:     "u1",
		Username:     "alice",
		Content:      content,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestIndex_Search_Finds_Indexed_Message(t *testing.T) {
	req := require.New(t)
	index := openTestIndex(t)

	stored := testMessage("deployment finished on the staging cluster")
	req.NoError(index.IndexMessage(stored))
	req.NoError(index.IndexMessage(testMessage("lunch at noon")))

	hits, err := index.Search(context.Background(), "deployment", 10)
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal(stored.ID.String(), hits[0].MessageID)
	req.Equal("alice", hits[0].Username)
	req.Equal(stored.Content, hits[0].Content)
}

func TestIndex_Search_No_Match(t *testing.T) {
	req := require.New(t)
	index := openTestIndex(t)

	req.NoError(index.IndexMessage(testMessage("hello world")))

	hits, err := index.Search(context.Background(), "nonexistent", 10)
	req.NoError(err)
	req.Empty(hits)
}

func TestIndex_Reindexing_Same_Message_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	index := openTestIndex(t)

	stored := testMessage("incident postmortem draft")
	req.NoError(index.IndexMessage(stored))
	req.NoError(index.IndexMessage(stored))

	hits, err := index.Search(context.Background(), "postmortem", 10)
	req.NoError(err)
	req.Len(hits, 1)
}
