//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-relay/domain"
	"chat-relay/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives one broadcast event. Consume must never block the
// publisher: a sink that cannot accept the event returns an error and is
// detached from the topic by the registry.
type EventSink interface {
	Consume(ctx context.Context, e event.BroadcastEvent) error
}

// Detachable sinks get told when the registry drops them after a failed
// delivery, so they can schedule their own disconnect processing.
type Detachable interface {
	Detach()
}

// Identified is implemented by sinks bound to a principal whose identity
// has been established. Sinks without an identity (pre-join chat sessions,
// internal sinks such as the search indexer) simply don't implement it,
// or return ok == false.
type Identified interface {
	Identity() (userID, username string, ok bool)
}

// IBroadcaster is the topic fan-out contract.
// Publish delivers to a snapshot of the membership taken at call time;
// excludeID suppresses delivery to the originating member when non-empty.
type IBroadcaster interface {
	Subscribe(topic domain.Topic, memberID string, sink EventSink)
	Unsubscribe(topic domain.Topic, memberID string)
	Publish(ctx context.Context, topic domain.Topic, e event.BroadcastEvent, excludeID string)
	Snapshot(topic domain.Topic) map[string]EventSink
}
