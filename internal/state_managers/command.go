package state_managers

import (
	"sync"
)

// OfferResult reports what a CommandSlot did with an offered message.
type OfferResult int

const (
	// OfferAccepted means the message was copied into the empty slot.
	OfferAccepted OfferResult = iota
	// OfferDroppedBusy means the slot already held a message.
	OfferDroppedBusy
	// OfferDroppedOversized means the message exceeded the slot capacity.
	OfferDroppedOversized
)

func (r OfferResult) String() string {
	switch r {
	case OfferAccepted:
		return "accepted"
	case OfferDroppedBusy:
		return "dropped_busy"
	case OfferDroppedOversized:
		return "dropped_oversized"
	default:
		return "unknown"
	}
}

// CommandSlot is a capacity-one handoff between the MQTT callback and the
// command processing loop. While occupied, newly offered messages are
// dropped rather than queued or overwritten.
type CommandSlot struct {
	mu       sync.Mutex
	buf      []byte
	occupied bool
	capacity int
	ready    chan struct{}
}

// NewCommandSlot creates an empty slot holding messages of at most capacity bytes.
func NewCommandSlot(capacity int) *CommandSlot {
	return &CommandSlot{
		buf:      make([]byte, 0, capacity),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

// Offer copies msg into the slot if it is empty. It never blocks and the
// caller keeps ownership of msg.
func (s *CommandSlot) Offer(msg []byte) OfferResult {
	if len(msg) > s.capacity {
		return OfferDroppedOversized
	}

	s.mu.Lock()
	if s.occupied {
		s.mu.Unlock()
		return OfferDroppedBusy
	}
	s.buf = append(s.buf[:0], msg...)
	s.occupied = true
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
	return OfferAccepted
}

// TakeIfPresent returns a copy of the held message and empties the slot.
// It returns false immediately when the slot is empty.
func (s *CommandSlot) TakeIfPresent() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.occupied {
		return nil, false
	}
	msg := make([]byte, len(s.buf))
	copy(msg, s.buf)
	s.buf = s.buf[:0]
	s.occupied = false
	return msg, true
}

// Ready is signalled after a message is accepted. A receive does not
// guarantee the message is still there; follow it with TakeIfPresent.
func (s *CommandSlot) Ready() <-chan struct{} {
	return s.ready
}

// Pending reports whether the slot currently holds a message.
func (s *CommandSlot) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.occupied
}
