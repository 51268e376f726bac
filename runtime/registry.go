// Package runtime handles event propagation between connected sessions.
// It orchestrates fan-out without containing business logic or domain rules.
package runtime

import (
	"context"
	"log/slog"
	"sync"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
)

// Registry maps topics to their current member sinks.
//
// The table lock only guards topic creation and disposal; each topic guards
// its own member set, so publishing to one room never serializes against
// subscriptions on another.
type Registry struct {
	mu     sync.RWMutex
	log    *slog.Logger
	topics map[domain.Topic]*topicEntry
}

type topicEntry struct {
	mu      sync.RWMutex
	members map[string]contract.EventSink

	// dead is set when the GC in Unsubscribe removes this entry from the
	// table. A Subscribe still holding the stale pointer must retry on a
	// fresh entry instead of joining an unreachable member set.
	dead bool
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:    log,
		topics: make(map[domain.Topic]*topicEntry),
	}
}

func (r *Registry) entry(topic domain.Topic) *topicEntry {
	r.mu.RLock()
	e := r.topics[topic]
	r.mu.RUnlock()
	return e
}

// Subscribe idempotently adds a member to a topic, creating the topic on
// first use.
func (r *Registry) Subscribe(topic domain.Topic, memberID string, sink contract.EventSink) {
	for {
		e := r.entry(topic)
		if e == nil {
			r.mu.Lock()
			if e = r.topics[topic]; e == nil {
				e = &topicEntry{members: make(map[string]contract.EventSink)}
				r.topics[topic] = e
			}
			r.mu.Unlock()
		}

		e.mu.Lock()
		if e.dead {
			// Lost the race against the last member's departure; the
			// entry is already gone from the table.
			e.mu.Unlock()
			continue
		}
		if _, ok := e.members[memberID]; !ok {
			e.members[memberID] = sink
			r.log.Debug("member subscribed", "topic", topic, "member", memberID, "members", len(e.members))
		}
		e.mu.Unlock()
		return
	}
}

// Unsubscribe removes a member. A dynamic topic whose last member leaves is
// discarded entirely; well-known topics stay registered while empty.
func (r *Registry) Unsubscribe(topic domain.Topic, memberID string) {
	e := r.entry(topic)
	if e == nil {
		return
	}

	e.mu.Lock()
	delete(e.members, memberID)
	empty := len(e.members) == 0
	e.mu.Unlock()

	if empty && !topic.WellKnown() {
		r.mu.Lock()
		if cur := r.topics[topic]; cur == e {
			cur.mu.Lock()
			if len(cur.members) == 0 {
				cur.dead = true
				delete(r.topics, topic)
			}
			cur.mu.Unlock()
		}
		r.mu.Unlock()
	}
}

// Publish delivers an event to every member present in the topic when the
// call begins, except excludeID. Delivery happens outside the member lock:
// a member that joins or leaves mid fan-out may or may not see the event,
// but nobody sees it twice. A sink that refuses the event is detached and
// handed its own disconnect processing so one dead connection never stalls
// the rest of the room.
func (r *Registry) Publish(ctx context.Context, topic domain.Topic, e event.BroadcastEvent, excludeID string) {
	entry := r.entry(topic)
	if entry == nil {
		r.log.Debug("publish to unknown topic", "topic", topic, "kind", e.Kind())
		return
	}

	entry.mu.RLock()
	snapshot := make(map[string]contract.EventSink, len(entry.members))
	for id, sink := range entry.members {
		snapshot[id] = sink
	}
	entry.mu.RUnlock()

	for id, sink := range snapshot {
		if id == excludeID {
			continue
		}
		if err := sink.Consume(ctx, e); err != nil {
			r.log.Warn("member unreachable, detaching", "topic", topic, "member", id, "error", err)
			r.Unsubscribe(topic, id)
			if d, ok := sink.(contract.Detachable); ok {
				d.Detach()
			}
		}
	}
}

// Snapshot returns a copy of the current membership of a topic.
func (r *Registry) Snapshot(topic domain.Topic) map[string]contract.EventSink {
	entry := r.entry(topic)
	if entry == nil {
		return nil
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	snapshot := make(map[string]contract.EventSink, len(entry.members))
	for id, sink := range entry.members {
		snapshot[id] = sink
	}
	return snapshot
}

// CountMembers reports the membership size of one topic.
func (r *Registry) CountMembers(topic domain.Topic) int {
	entry := r.entry(topic)
	if entry == nil {
		return 0
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return len(entry.members)
}

// CountTopics reports how many topics currently exist.
func (r *Registry) CountTopics() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}
