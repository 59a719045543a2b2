// Package ringchan provides a bounded hand-off channel that never blocks the
// producer. The BLE backend delivers advertisements on its own goroutine; the
// proxy event loop drains them from a RingChannel so a slow broker can never
// stall the radio.
package ringchan

import "sync/atomic"

// RingChannel is a bounded channel-like buffer with overwrite-oldest semantics.
//
// Writers use Send, which always succeeds: if the buffer is full the oldest
// element is discarded and counted as dropped. Readers use C() like a normal
// receive-only channel.
//
//	rc := ringchan.New[int](3)
//	for i := 0; i < 10; i++ {
//	    rc.Send(i)
//	}
//	// only 7, 8 and 9 remain buffered
type RingChannel[T any] struct {
	ch      chan T
	sent    atomic.Int64
	dropped atomic.Int64
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts v, discarding the oldest element when the buffer is full.
// It reports whether an element was discarded. Concurrent producers may
// race for the freed slot; the loser retries.
func (rc *RingChannel[T]) Send(v T) bool {
	dropped := false
	for {
		select {
		case rc.ch <- v:
			rc.sent.Add(1)
			return dropped
		default:
		}

		select {
		case <-rc.ch:
			rc.dropped.Add(1)
			dropped = true
		default:
		}
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the channel capacity.
func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Stats is a snapshot of the channel counters.
type Stats struct {
	Sent    int64
	Dropped int64
}

// Stats returns the number of accepted and discarded elements so far.
func (rc *RingChannel[T]) Stats() Stats {
	return Stats{
		Sent:    rc.sent.Load(),
		Dropped: rc.dropped.Load(),
	}
}
