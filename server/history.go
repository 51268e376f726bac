package server

import (
	"context"
	"log/slog"

	"github.com/samber/lo"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/observability"
	"chat-relay/services"
)

// HistoryBootstrapper catches a fresh connection up with the recent backlog
// of the room. The batch goes to that one sink only, never through the
// registry.
type HistoryBootstrapper struct {
	log     *slog.Logger
	gateway services.IStoreGateway
	monitor *observability.Monitor
	limit   int
}

func NewHistoryBootstrapper(log *slog.Logger, gateway services.IStoreGateway,
	monitor *observability.Monitor, limit int) *HistoryBootstrapper {
	return &HistoryBootstrapper{log: log, gateway: gateway, monitor: monitor, limit: limit}
}

// Send delivers the backlog, oldest first, as a single history frame.
// An empty room sends nothing. Failures are logged and dropped; the
// connection stays up without a backlog.
func (h *HistoryBootstrapper) Send(ctx context.Context, topic domain.Topic, sink contract.EventSink) {
	messages, err := h.gateway.GetRecentMessages(ctx, string(topic), h.limit)
	if err != nil {
		h.log.Error("Error while loading history", "topic", topic, "err", err)
		return
	}
	if len(messages) == 0 {
		return
	}

	batch := event.History{Messages: lo.Map(messages, func(m domain.Message, _ int) event.WireMessage {
		return event.FromMessage(m)
	})}
	if err := sink.Consume(ctx, batch); err != nil {
		h.log.Debug("History delivery failed", "topic", topic, "err", err)
		return
	}
	h.monitor.IncrHistoriesServed()
}
