package pool

import (
	"context"
	"sync"
	"time"
)

// slots enforces active_connections <= size + overflow. It is a counting
// semaphore whose capacity can be resized while holders are in flight, which
// a plain buffered channel cannot do.
type slots struct {
	mu       sync.Mutex
	capacity int
	active   int
	waiters  []chan struct{}
}

func newSlots(capacity int) *slots {
	return &slots{capacity: capacity}
}

// acquire blocks until a slot frees up, the timeout fires, or ctx is
// cancelled. A timeout is surfaced as ErrPoolExhausted by the caller.
func (s *slots) acquire(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		s.mu.Lock()
		if s.active < s.capacity {
			s.active++
			s.mu.Unlock()
			return nil
		}
		w := make(chan struct{}, 1)
		s.waiters = append(s.waiters, w)
		s.mu.Unlock()

		select {
		case <-w:
			// A slot may have been taken by another waiter; retry.
		case <-timer.C:
			s.removeWaiter(w)
			return ErrPoolExhausted
		case <-ctx.Done():
			s.removeWaiter(w)
			return ctx.Err()
		}
	}
}

func (s *slots) release() {
	s.mu.Lock()
	if s.active > 0 {
		s.active--
	}
	s.wakeLocked()
	s.mu.Unlock()
}

// resize changes capacity. Shrinking never evicts holders; the count drains
// down naturally as connections are released.
func (s *slots) resize(capacity int) {
	s.mu.Lock()
	s.capacity = capacity
	s.wakeLocked()
	s.mu.Unlock()
}

func (s *slots) wakeLocked() {
	free := s.capacity - s.active
	for free > 0 && len(s.waiters) > 0 {
		w := s.waiters[0]
		s.waiters = s.waiters[1:]
		select {
		case w <- struct{}{}:
		default:
		}
		free--
	}
}

func (s *slots) removeWaiter(w chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, candidate := range s.waiters {
		if candidate == w {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			break
		}
	}
}

func (s *slots) inUse() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *slots) cap() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity
}
