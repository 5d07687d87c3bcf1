package iqs269

import (
	"context"
	"sync"
	"time"
)

// completion is a one-shot, re-armable signal. Completing an already
// completed instance is a no-op; reinit re-arms it for the next cycle.
type completion struct {
	mx   sync.Mutex
	done chan struct{}
}

func newCompletion() *completion {
	return &completion{done: make(chan struct{})}
}

func (c *completion) complete() {
	c.mx.Lock()
	defer c.mx.Unlock()
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func (c *completion) completed() bool {
	c.mx.Lock()
	defer c.mx.Unlock()
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *completion) reinit() {
	c.mx.Lock()
	defer c.mx.Unlock()
	select {
	case <-c.done:
		c.done = make(chan struct{})
	default:
	}
}

// wait blocks until the signal fires, the timeout elapses or the context is
// cancelled. A timeout is reported as ErrATITimeout, distinct from bus errors.
func (c *completion) wait(ctx context.Context, timeout time.Duration) error {
	c.mx.Lock()
	ch := c.done
	c.mx.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return nil
	case <-timer.C:
		return ErrATITimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
