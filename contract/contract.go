//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"care-relay/domain"
	"care-relay/domain/event"
	"context"
)

// EventSink is a live connection handle able to receive relay events.
// Implementations must be cheap and non-blocking; a full buffer is an
// error, not a stall.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// IRegistry maps identities to connection handles. Register is a
// last-write-wins upsert; Unregister removes the entry only when the
// stored handle is the one disconnecting.
type IRegistry interface {
	Register(id domain.Identity, sink EventSink)
	Lookup(id domain.Identity) (EventSink, bool)
	Unregister(id domain.Identity, sink EventSink)
	UnregisterSink(sink EventSink)
	Online() int
}

// Push is the payload handed to the external push channel.
type Push struct {
	To    domain.Identity
	Title string
	Body  string
	Data  map[string]any
}

// IPushDispatcher is the external delivery collaborator. Failures are
// the caller's to log; they never gate the durable record.
type IPushDispatcher interface {
	Dispatch(ctx context.Context, p Push) error
}
