package resource

import "errors"

// Handle is an opaque reference to a resource in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

var (
	ErrClosed            = errors.New("resource table closed")
	ErrUnknownHandle     = errors.New("unknown handle")
	ErrWrongType         = errors.New("handle refers to a different resource type")
	ErrOutstandingBorrow = errors.New("cannot drop resource with outstanding borrows")
	ErrNotOwned          = errors.New("handle is a borrow, not an owned resource")
)

// Event types for resource lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

func (e EventType) String() string {
	switch e {
	case EventCreated:
		return "created"
	case EventDropped:
		return "dropped"
	}
	return "unknown"
}

// Event represents a resource lifecycle event.
type Event struct {
	Value  any
	Type   string
	Handle Handle
	Kind   EventType
}

// Observer receives notifications about resource lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }

// Dropper is implemented by host values that release state when their
// handle is dropped.
type Dropper interface {
	Drop()
}
