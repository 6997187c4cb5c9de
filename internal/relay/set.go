package relay

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/postalsys/radio-relay/internal/logging"
)

// Set is a group of relays brought up and torn down together, one per
// channel of a device.
type Set struct {
	relays []*Relay
	logger *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup

	failOnce sync.Once
	failedCh chan struct{}
	failErr  error // written once, read only after failedCh closes
}

// NewSet starts one relay per channel config. Bring-up is all or nothing:
// if any channel fails to start, the ones already running are stopped and
// only the error is returned.
func NewSet(channels []Config, logger *slog.Logger) (*Set, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}

	s := &Set{
		logger:   logger.With(slog.String(logging.KeyComponent, "relayset")),
		stopCh:   make(chan struct{}),
		failedCh: make(chan struct{}),
	}

	for _, cfg := range channels {
		r, err := New(cfg)
		if err != nil {
			s.stopRelays()
			return nil, err
		}
		s.relays = append(s.relays, r)
	}

	for _, r := range s.relays {
		s.wg.Add(1)
		go s.watch(r)
	}

	s.logger.Info("relay set started", logging.KeyCount, len(s.relays))
	return s, nil
}

// Stop stops every relay in the set, in reverse start order. It is safe to
// call more than once and returns the first relay error, if any.
func (s *Set) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopCh)
		err = s.stopRelays()
		s.wg.Wait()
		s.logger.Info("relay set stopped")
	})
	return err
}

// Failed returns a channel that is closed when any relay in the set breaks.
func (s *Set) Failed() <-chan struct{} {
	return s.failedCh
}

// Err returns the first relay failure, or nil while all channels are
// healthy.
func (s *Set) Err() error {
	select {
	case <-s.failedCh:
		return s.failErr
	default:
		return nil
	}
}

// Len returns the number of relays in the set.
func (s *Set) Len() int {
	return len(s.relays)
}

// Stats returns snapshots for every relay in channel order.
func (s *Set) Stats() []Stats {
	stats := make([]Stats, 0, len(s.relays))
	for _, r := range s.relays {
		stats = append(stats, r.Stats())
	}
	return stats
}

// watch propagates the first relay failure to the set.
func (s *Set) watch(r *Relay) {
	defer s.wg.Done()

	select {
	case <-r.Failed():
		s.failOnce.Do(func() {
			s.failErr = fmt.Errorf("channel %s: %w", r.Name(), r.Err())
			close(s.failedCh)
		})
	case <-s.stopCh:
	}
}

// stopRelays stops all relays in reverse order, keeping the first error.
func (s *Set) stopRelays() error {
	var firstErr error
	for i := len(s.relays) - 1; i >= 0; i-- {
		if err := s.relays[i].Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
