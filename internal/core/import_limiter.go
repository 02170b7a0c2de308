package core

// import_limiter.go bounds how many imports run concurrently.
//
// A buffered channel acts as a counting semaphore. Acquire blocks up to
// maxWait for a slot; WaitForDrain lets shutdown hold until in-flight
// imports finish committing.

import (
	"context"
	"sync"
	"time"
)

// ImportLimiter caps concurrent import transactions.
type ImportLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu     sync.Mutex
	active int
	idle   chan struct{}
}

// NewImportLimiter returns a limiter allowing maxConcurrent simultaneous
// imports. Acquire gives up after maxWait; zero maxWait means fail fast.
func NewImportLimiter(maxConcurrent int, maxWait time.Duration) *ImportLimiter {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &ImportLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire claims a slot, waiting up to the configured maximum. Returns
// ErrTooManyImports when no slot frees up in time, or ctx.Err() if the
// request is cancelled first.
func (l *ImportLimiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		l.noteAcquire()
		return nil
	default:
	}

	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.noteAcquire()
		return nil
	case <-timer.C:
		return ErrTooManyImports
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot claimed by Acquire.
func (l *ImportLimiter) Release() {
	<-l.slots

	l.mu.Lock()
	l.active--
	if l.active == 0 && l.idle != nil {
		close(l.idle)
		l.idle = nil
	}
	l.mu.Unlock()
}

// Active returns the number of imports currently holding a slot.
func (l *ImportLimiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// WaitForDrain blocks until every in-flight import has released its slot or
// the context expires.
func (l *ImportLimiter) WaitForDrain(ctx context.Context) error {
	l.mu.Lock()
	if l.active == 0 {
		l.mu.Unlock()
		return nil
	}
	if l.idle == nil {
		l.idle = make(chan struct{})
	}
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *ImportLimiter) noteAcquire() {
	l.mu.Lock()
	l.active++
	l.mu.Unlock()
}
