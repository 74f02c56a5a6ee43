package session

import (
	"context"
	"sync"
)

// inbox is a one-slot, latest-wins mailbox between the capture loop and the
// inference loop. put never blocks; a frame that was not taken yet is
// overwritten and counted as dropped.
type inbox struct {
	mu      sync.Mutex
	frame   Frame
	pending bool
	closed  bool
	drops   uint64
	ready   chan struct{}
}

func newInbox() *inbox {
	return &inbox{ready: make(chan struct{}, 1)}
}

// put stores f, replacing any pending frame. It reports whether a pending
// frame was overwritten.
func (b *inbox) put(f Frame) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	overwritten := b.pending
	if overwritten {
		b.drops++
	}
	b.frame = f
	b.pending = true
	b.mu.Unlock()

	select {
	case b.ready <- struct{}{}:
	default:
	}
	return overwritten
}

// take blocks until a frame is pending, the inbox is closed or ctx is done.
func (b *inbox) take(ctx context.Context) (Frame, bool) {
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return Frame{}, false
		}
		if b.pending {
			f := b.frame
			b.frame = Frame{}
			b.pending = false
			b.mu.Unlock()
			return f, true
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return Frame{}, false
		case <-b.ready:
		}
	}
}

// close wakes any waiting take and makes later puts no-ops.
func (b *inbox) close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// dropped returns how many frames were overwritten before being taken.
func (b *inbox) dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drops
}
