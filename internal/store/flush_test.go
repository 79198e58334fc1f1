// ABOUTME: Tests for the periodic flush loop
// ABOUTME: Verifies ticking, cancellation and the disabled zero interval

package store

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingFlusher struct {
	calls atomic.Int32
	err   error
}

func (c *countingFlusher) Flush(ctx context.Context) error {
	c.calls.Add(1)
	return c.err
}

func TestPeriodicFlusher_FlushesUntilCancelled(t *testing.T) {
	target := &countingFlusher{}
	f := NewPeriodicFlusher(target, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return target.calls.Load() >= 3 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestPeriodicFlusher_KeepsGoingAfterErrors(t *testing.T) {
	target := &countingFlusher{err: errors.New("disk full")}
	f := NewPeriodicFlusher(target, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	assert.Eventually(t, func() bool { return target.calls.Load() >= 2 }, time.Second, time.Millisecond)
}

func TestPeriodicFlusher_ZeroIntervalIsDisabled(t *testing.T) {
	target := &countingFlusher{}
	f := NewPeriodicFlusher(target, 0, nil)

	done := make(chan struct{})
	go func() {
		f.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run with zero interval should return immediately")
	}
	assert.Zero(t, target.calls.Load())
}

func TestPeriodicFlusher_FileStore(t *testing.T) {
	s, path := newTestFileStore(t)
	f := NewPeriodicFlusher(s, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, time.Millisecond)

	cancel()
	<-done
}
