// Package search maintains a full-text index over persisted chat messages.
package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/blugelabs/bluge"

	"chat-relay/domain"
)

type ISearchIndex interface {
	IndexMessage(m domain.Message) error
	Search(ctx context.Context, query string, limit int) ([]Hit, error)
}

// Hit is one search result, rebuilt from the stored fields of the index.
type Hit struct {
	MessageID    string `json:"message_id"`
	Conversation string `json:"conversation"`
	SenderID     string `json:"sender_id"`
	Username     string `json:"username"`
	Content      string `json:"content"`
	CreatedAt    string `json:"created_at"`
}

type Index struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewIndex(writer *bluge.Writer, log *slog.Logger) *Index {
	return &Index{writer: writer, log: log}
}

// IndexMessage upserts one message document, keyed by message id so a
// replayed broadcast never produces a duplicate hit.
func (i *Index) IndexMessage(m domain.Message) error {
	doc := bluge.NewDocument(m.ID.String()).
		AddField(bluge.NewTextField("content", m.Content).StoreValue()).
		AddField(bluge.NewKeywordField("conversation", m.Conversation).StoreValue()).
		AddField(bluge.NewKeywordField("sender_id", m.SenderID).StoreValue()).
		AddField(bluge.NewKeywordField("username", m.Username).StoreValue()).
		AddField(bluge.NewKeywordField("created_at", m.CreatedAt.Format(time.RFC3339Nano)).StoreValue())

	return i.writer.Update(doc.ID(), doc)
}

// Search runs a match query against message content and returns up to
// limit hits, best score first.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Error("Error while closing index reader", "err", err)
		}
	}()

	match := bluge.NewMatchQuery(query).SetField("content")
	request := bluge.NewTopNSearch(limit, match)

	iterator, err := reader.Search(ctx, request)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, limit)
	for {
		next, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if next == nil {
			break
		}

		var hit Hit
		err = next.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.MessageID = string(value)
			case "content":
				hit.Content = string(value)
			case "conversation":
				hit.Conversation = string(value)
			case "sender_id":
				hit.SenderID = string(value)
			case "username":
				hit.Username = string(value)
			case "created_at":
				hit.CreatedAt = string(value)
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
