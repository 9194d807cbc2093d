package upload

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	DefaultTickInterval = 200 * time.Millisecond
	MinIncrement        = 10
	MaxIncrement        = 19
)

// ProgressFunc receives every simulated progress change. It must not call back into the simulator.
type ProgressFunc func(id string, progress int)

// Simulator animates per-entry progress on independent timers. The values are cosmetic and
// never reflect real transfer state.
type Simulator struct {
	batch      *Batch
	interval   time.Duration
	increment  func() int
	onProgress ProgressFunc

	mu       sync.Mutex
	timers   map[string]context.CancelFunc
	finished map[string]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func NewSimulator(batch *Batch, interval time.Duration, onProgress ProgressFunc) *Simulator {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if onProgress == nil {
		onProgress = func(string, int) {}
	}

	return &Simulator{
		batch:      batch,
		interval:   interval,
		increment:  randomIncrement,
		onProgress: onProgress,
		timers:     make(map[string]context.CancelFunc),
		finished:   make(map[string]struct{}),
	}
}

// WithIncrement overrides the random step, mostly for tests.
func (s *Simulator) WithIncrement(fn func() int) *Simulator {
	s.increment = fn
	return s
}

func randomIncrement() int {
	return MinIncrement + rand.IntN(MaxIncrement-MinIncrement+1)
}

// Track starts a timer for each entry that is not already running or finished.
func (s *Simulator) Track(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	for _, id := range ids {
		if _, running := s.timers[id]; running {
			continue
		}
		if _, done := s.finished[id]; done {
			continue
		}

		ctx, cancel := context.WithCancel(context.Background())
		s.timers[id] = cancel
		s.wg.Add(1)
		go s.run(ctx, id)
	}
}

func (s *Simulator) run(ctx context.Context, id string) {
	defer s.wg.Done()
	defer s.release(id)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			progress, ok := s.batch.Advance(id, s.increment())
			if !ok || ctx.Err() != nil {
				return
			}

			s.onProgress(id, progress)

			if progress >= MaxProgress {
				s.markFinished(id)
				return
			}
		}
	}
}

func (s *Simulator) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, ok := s.timers[id]; ok {
		cancel()
		delete(s.timers, id)
	}
}

func (s *Simulator) markFinished(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished[id] = struct{}{}
}

// Cancel stops the timer for a single entry, e.g. when it is removed from the batch.
func (s *Simulator) Cancel(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if cancel, ok := s.timers[id]; ok {
			cancel()
			delete(s.timers, id)
		}
		delete(s.finished, id)
	}
}

// Active reports how many timers are still running.
func (s *Simulator) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close cancels every outstanding timer and waits for them to exit. No progress callback
// fires after Close returns.
func (s *Simulator) Close() {
	s.mu.Lock()
	s.closed = true
	for id, cancel := range s.timers {
		cancel()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
}
