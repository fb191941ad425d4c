package engine

import (
	"context"
	"sync"
)

// pauseGate blocks workers while paused. The open channel is closed to
// release every waiter at once.
type pauseGate struct {
	mu     sync.Mutex
	open   chan struct{}
	paused bool
}

func newPauseGate() *pauseGate {
	open := make(chan struct{})
	close(open)
	return &pauseGate{open: open}
}

func (g *pauseGate) pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return
	}
	g.paused = true
	g.open = make(chan struct{})
}

func (g *pauseGate) resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return
	}
	g.paused = false
	close(g.open)
}

func (g *pauseGate) isPaused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

func (g *pauseGate) wait(ctx context.Context) error {
	g.mu.Lock()
	open := g.open
	g.mu.Unlock()
	select {
	case <-open:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
