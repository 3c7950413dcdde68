package session

import "sync"

// outbox is an unbounded FIFO of encoded frames with many producers and a
// single consumer, the write loop. A push never blocks, so a slow peer only
// grows its own queue.
type outbox struct {
	mu     sync.Mutex
	queue  [][]byte
	closed bool
	notify chan struct{}
}

func newOutbox() *outbox {
	return &outbox{notify: make(chan struct{}, 1)}
}

// push appends msg and reports false if the outbox is already closed
func (o *outbox) push(msg []byte) bool {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	o.queue = append(o.queue, msg)
	o.mu.Unlock()

	o.wake()
	return true
}

// ready fires after a push or close since the last take
func (o *outbox) ready() <-chan struct{} {
	return o.notify
}

// take removes everything queued so far. open is false once close was called;
// the returned batch still has to be flushed in that case.
func (o *outbox) take() (batch [][]byte, open bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	batch, o.queue = o.queue, nil
	return batch, !o.closed
}

func (o *outbox) close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.wake()
}

func (o *outbox) wake() {
	select {
	case o.notify <- struct{}{}:
	default:
	}
}
