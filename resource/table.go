package resource

import (
	"sync"
)

// Table maps handles to values with borrow tracking. A borrowed entry
// cannot be removed until every borrow is returned.
type Table[T any] struct {
	entries   []entry[T]
	freeList  []Handle
	observers []Observer[T]
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

type entry[T any] struct {
	value   T
	borrows uint32
	valid   bool
}

// NewTable creates an empty table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{
		entries:  make([]entry[T], 0, 16),
		freeList: make([]Handle, 0, 4),
	}
}

// Insert stores a value and returns its handle. Freed handles are reused.
func (t *Table[T]) Insert(value T) (Handle, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrClosed
	}
	e := entry[T]{value: value, valid: true}
	var h Handle
	if n := len(t.freeList); n > 0 {
		h = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.entries[h-1] = e
	} else {
		t.entries = append(t.entries, e)
		h = Handle(len(t.entries))
	}
	t.mu.Unlock()

	t.notify(Event[T]{Type: EventCreated, Handle: h, Value: value})
	return h, nil
}

// Get retrieves a value by handle.
func (t *Table[T]) Get(h Handle) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e := t.lookup(h)
	if e == nil {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Borrow increments the borrow count of h and returns its value.
func (t *Table[T]) Borrow(h Handle) (T, error) {
	t.mu.Lock()
	e := t.lookup(h)
	if e == nil {
		t.mu.Unlock()
		var zero T
		if t.isClosed() {
			return zero, ErrClosed
		}
		return zero, ErrInvalidHandle
	}
	e.borrows++
	ev := Event[T]{Type: EventBorrowed, Handle: h, Value: e.value, Borrows: e.borrows}
	t.mu.Unlock()

	t.notify(ev)
	return ev.Value, nil
}

// ReturnBorrow decrements the borrow count of h.
func (t *Table[T]) ReturnBorrow(h Handle) bool {
	t.mu.Lock()
	e := t.lookup(h)
	if e == nil || e.borrows == 0 {
		t.mu.Unlock()
		return false
	}
	e.borrows--
	ev := Event[T]{Type: EventBorrowReturned, Handle: h, Value: e.value, Borrows: e.borrows}
	t.mu.Unlock()

	t.notify(ev)
	return true
}

// Borrows returns the current borrow count of h.
func (t *Table[T]) Borrows(h Handle) uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e := t.lookup(h); e != nil {
		return e.borrows
	}
	return 0
}

// Remove drops the entry for h. Its handle goes back on the free list.
func (t *Table[T]) Remove(h Handle) (T, error) {
	var zero T
	t.mu.Lock()
	e := t.lookup(h)
	if e == nil {
		t.mu.Unlock()
		return zero, ErrInvalidHandle
	}
	if e.borrows > 0 {
		t.mu.Unlock()
		return zero, ErrOutstandingBorrow
	}
	value := e.value
	*e = entry[T]{}
	t.freeList = append(t.freeList, h)
	t.mu.Unlock()

	t.notify(Event[T]{Type: EventDropped, Handle: h, Value: value})
	return value, nil
}

// Len returns the number of live entries.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for i := range t.entries {
		if t.entries[i].valid {
			n++
		}
	}
	return n
}

// Subscribe adds an observer for lifecycle events.
func (t *Table[T]) Subscribe(o Observer[T]) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Close drops every entry regardless of borrows and rejects later inserts.
func (t *Table[T]) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	var dropped []Event[T]
	for i := range t.entries {
		if t.entries[i].valid {
			dropped = append(dropped, Event[T]{Type: EventDropped, Handle: Handle(i + 1), Value: t.entries[i].value})
		}
	}
	t.entries = nil
	t.freeList = nil
	t.mu.Unlock()

	for _, ev := range dropped {
		t.notify(ev)
	}
	return nil
}

func (t *Table[T]) lookup(h Handle) *entry[T] {
	if h == 0 || int(h) > len(t.entries) {
		return nil
	}
	e := &t.entries[h-1]
	if !e.valid {
		return nil
	}
	return e
}

func (t *Table[T]) isClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

func (t *Table[T]) notify(e Event[T]) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
