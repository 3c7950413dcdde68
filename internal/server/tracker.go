package server

import "sync"

// tracker counts live sessions. Unlike sync.WaitGroup it may gain new
// members while someone waits for it to drain.
type tracker struct {
	mu     sync.Mutex
	active int
	idle   chan struct{}
}

func newTracker() *tracker {
	idle := make(chan struct{})
	close(idle)
	return &tracker{idle: idle}
}

func (t *tracker) Add(delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == 0 && delta > 0 {
		t.idle = make(chan struct{})
	}
	t.active += delta
	if t.active < 0 {
		panic("server: negative session count")
	}
	if t.active == 0 && delta < 0 {
		close(t.idle)
	}
}

func (t *tracker) Done() {
	t.Add(-1)
}

// Idle is closed whenever no session is active
func (t *tracker) Idle() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.idle
}

func (t *tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}
