package indexing

import "sync"

// Mailbox is a single-slot channel whose sends never block: a value put
// before the previous one was taken replaces it.
type Mailbox[T any] struct {
	mu    sync.Mutex
	slot  T
	full  bool
	ready chan struct{}
}

// NewMailbox creates an empty mailbox
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{ready: make(chan struct{}, 1)}
}

// Put stores v, reporting whether an untaken value was dropped
func (m *Mailbox[T]) Put(v T) (replaced bool) {
	m.mu.Lock()
	replaced = m.full
	m.slot = v
	m.full = true
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return replaced
}

// Take empties the slot
func (m *Mailbox[T]) Take() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	if !m.full {
		return zero, false
	}
	v := m.slot
	m.slot = zero
	m.full = false
	return v, true
}

// Ready is signalled after a Put. A signal can outlive the value it
// announced, so Take may still find the slot empty.
func (m *Mailbox[T]) Ready() <-chan struct{} {
	return m.ready
}
