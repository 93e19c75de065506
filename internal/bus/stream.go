package bus

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Stream is one live subscriber's private delivery queue. Events arrive in
// publish order; a stream that drains too slowly misses events rather than
// slowing producers or other streams.
type Stream struct {
	id      string
	ch      chan Event
	dropped atomic.Uint64
}

// ID returns the stream's unique identifier.
func (s *Stream) ID() string { return s.id }

// Events is the receive side of the stream. The channel is closed when the
// stream is closed.
func (s *Stream) Events() <-chan Event { return s.ch }

// Dropped reports how many events this stream has missed.
func (s *Stream) Dropped() uint64 { return s.dropped.Load() }

// OpenStream registers a new delivery stream with the bus.
func (b *Bus) OpenStream() *Stream {
	st := &Stream{
		id: uuid.New().String(),
		ch: make(chan Event, b.streamBuffer),
	}
	b.smu.Lock()
	b.streams[st.id] = st
	b.smu.Unlock()
	return st
}

// CloseStream detaches the stream and closes its channel. Safe to call while
// the distributor is dispatching; closing an already-closed stream is a no-op.
func (b *Bus) CloseStream(st *Stream) {
	if st == nil {
		return
	}
	b.smu.Lock()
	defer b.smu.Unlock()
	if _, ok := b.streams[st.id]; !ok {
		return
	}
	delete(b.streams, st.id)
	close(st.ch)
}

// StreamCount returns the number of open streams.
func (b *Bus) StreamCount() int {
	b.smu.Lock()
	defer b.smu.Unlock()
	return len(b.streams)
}
