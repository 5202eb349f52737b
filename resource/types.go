package resource

import "errors"

// Handle is an index into a Table. Handle 0 is never issued.
type Handle uint32

var (
	ErrClosed            = errors.New("resource table closed")
	ErrInvalidHandle     = errors.New("invalid resource handle")
	ErrOutstandingBorrow = errors.New("cannot remove resource with outstanding borrows")
)

// EventType identifies a resource lifecycle event.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
	EventBorrowed
	EventBorrowReturned
)

func (e EventType) String() string {
	switch e {
	case EventCreated:
		return "created"
	case EventDropped:
		return "dropped"
	case EventBorrowed:
		return "borrowed"
	case EventBorrowReturned:
		return "borrow_returned"
	default:
		return "unknown"
	}
}

// Event describes a change in a table entry.
type Event[T any] struct {
	Value  T
	Handle Handle
	Type   EventType
	// Borrows is the borrow count after the event.
	Borrows uint32
}

// Observer receives lifecycle events.
type Observer[T any] interface {
	OnResourceEvent(Event[T])
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc[T any] func(Event[T])

func (f ObserverFunc[T]) OnResourceEvent(e Event[T]) { f(e) }
