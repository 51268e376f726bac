// Package sink holds passive topic members that consume broadcasts for
// side effects instead of pushing frames to a socket.
package sink

import (
	"context"
	"log/slog"

	"chat-relay/domain/event"
	"chat-relay/search"
)

// SearchMemberID is the reserved member id under which the search sink
// subscribes to the room topic. Connection ids are UUIDs and never collide
// with it.
const SearchMemberID = "search-index"

// SearchSink indexes every chat message broadcast on its topic.
type SearchSink struct {
	index search.ISearchIndex
	log   *slog.Logger
}

func NewSearchSink(index search.ISearchIndex, log *slog.Logger) SearchSink {
	return SearchSink{index: index, log: log}
}

func (s SearchSink) Consume(_ context.Context, e event.BroadcastEvent) error {
	switch evt := e.(type) {
	case event.ChatMessage:
		if err := s.index.IndexMessage(evt.Stored); err != nil {
			// Indexing failures must never detach the sink from the topic.
			s.log.Error("Error while indexing message", "message_id", evt.Stored.ID, "err", err)
		}
		return nil
	default:
		return nil
	}
}
