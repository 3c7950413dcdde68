package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestTracker(t *testing.T) {
	tr := newTracker()
	assert.True(t, isClosed(tr.Idle()))

	tr.Add(1)
	tr.Add(1)
	idle := tr.Idle()
	assert.False(t, isClosed(idle))
	assert.Equal(t, 2, tr.Active())

	tr.Done()
	assert.False(t, isClosed(idle))
	tr.Done()
	assert.True(t, isClosed(idle))
	assert.Equal(t, 0, tr.Active())

	tr.Add(1)
	assert.False(t, isClosed(tr.Idle()))
	assert.True(t, isClosed(idle), "earlier waiters stay released")
	tr.Done()
}

func TestTracker_NegativePanics(t *testing.T) {
	assert.Panics(t, func() { newTracker().Done() })
}
