package store

import (
	"context"
	"sync"
	"time"
)

// Sweeper runs [Store.SweepExpired] on a fixed interval. The sweep is
// advisory housekeeping; skipping a run never affects validity checks.
type Sweeper struct {
	store     Store
	interval  time.Duration
	onSweep   func(removed int, err error)
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewSweeper starts a background sweep loop against the given store.
// onSweep, when non-nil, is invoked after every pass with the removed count
// or the sweep error.
func NewSweeper(s Store, interval time.Duration, onSweep func(removed int, err error)) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}

	sw := &Sweeper{
		store:    s,
		interval: interval,
		onSweep:  onSweep,
		done:     make(chan struct{}),
	}

	sw.wg.Add(1)
	go sw.run()

	return sw
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, err := s.store.SweepExpired(context.Background(), time.Now())
			if s.onSweep != nil {
				s.onSweep(removed, err)
			}
		case <-s.done:
			return
		}
	}
}

// Close stops the sweep loop and waits for an in-flight pass to finish.
func (s *Sweeper) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}
