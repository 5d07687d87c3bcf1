package iqs269

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCompletion_CompleteIsIdempotent(t *testing.T) {
	c := newCompletion()
	assert.False(t, c.completed())

	c.complete()
	c.complete()
	assert.True(t, c.completed())

	assert.NoError(t, c.wait(context.Background(), time.Second))
}

func TestCompletion_WaitTimeout(t *testing.T) {
	c := newCompletion()
	err := c.wait(context.Background(), 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrATITimeout)
}

func TestCompletion_WaitContextCancelled(t *testing.T) {
	c := newCompletion()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.wait(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompletion_Reinit(t *testing.T) {
	c := newCompletion()
	c.complete()
	assert.True(t, c.completed())

	c.reinit()
	assert.False(t, c.completed())

	// reinit on an armed instance keeps the pending waiters' channel.
	done := make(chan error, 1)
	go func() { done <- c.wait(context.Background(), time.Second) }()
	time.Sleep(5 * time.Millisecond)
	c.reinit()
	c.complete()
	assert.NoError(t, <-done)
}
