package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Recommended intervals. Orders poll faster because status visibility is what
// users wait on.
const (
	OrdersInterval  = 2 * time.Second
	CatalogInterval = 3 * time.Second
)

type subscription[T any] struct {
	name     string
	interval time.Duration
	fetch    func(ctx context.Context) ([]T, error)
	onData   func([]T)
	logger   *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc

	seq     atomic.Uint64
	stopped atomic.Bool
	// calling is set while onData runs. unsubscribe skips waiting on mutex
	// then, since it may be running inside onData.
	calling atomic.Bool

	mutex     sync.Mutex
	delivered uint64
}

// Subscribe fetches immediately, then again every interval, and hands each
// snapshot to onData until the returned unsubscribe function is called or ctx
// is cancelled. fetch decides where a snapshot comes from (remote store or
// local fallback); a failed fetch skips that tick.
//
// Ticks may overlap. Every tick carries a sequence number and a result is
// dropped when a newer tick has already been delivered, so onData never sees
// data older than what it saw before. onData calls are serialized.
//
// After unsubscribe returns no further onData call begins; in-flight fetches
// are cancelled through their context and their results discarded. A delivery
// that has not reached onData yet is waited for and then dropped. It is safe
// to call unsubscribe from inside onData, and more than once.
//
// Writes made elsewhere become visible only on a later tick. Callers that need
// immediate feedback must apply it to their own state.
func Subscribe[T any](ctx context.Context, logger *logrus.Logger, name string, interval time.Duration, fetch func(ctx context.Context) ([]T, error), onData func([]T)) (unsubscribe func()) {
	if interval <= 0 {
		interval = OrdersInterval
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &subscription[T]{
		name:     name,
		interval: interval,
		fetch:    fetch,
		onData:   onData,
		logger:   logger,
		ctx:      subCtx,
		cancel:   cancel,
	}

	logger.WithFields(logrus.Fields{
		"subscription": name,
		"interval":     interval.String(),
	}).Info("Subscription started")

	go s.tick(s.seq.Add(1))
	go s.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.stop()
			logger.WithField("subscription", name).Info("Subscription stopped")
		})
	}
}

func (s *subscription[T]) stop() {
	s.stopped.Store(true)
	s.cancel()
	if s.calling.Load() {
		return
	}
	// Wait out a deliver that passed its checks but has not called onData.
	s.mutex.Lock()
	s.mutex.Unlock()
}

func (s *subscription[T]) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.stopped.Store(true)
			return
		case <-ticker.C:
			if s.stopped.Load() {
				return
			}
			go s.tick(s.seq.Add(1))
		}
	}
}

func (s *subscription[T]) tick(seq uint64) {
	items, err := s.fetch(s.ctx)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		s.logger.WithError(err).WithFields(logrus.Fields{
			"subscription": s.name,
			"tick":         seq,
		}).Warn("Fetch failed, skipping tick")
		return
	}
	s.deliver(seq, items)
}

func (s *subscription[T]) deliver(seq uint64, items []T) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.stopped.Load() {
		return
	}
	if seq <= s.delivered {
		s.logger.WithFields(logrus.Fields{
			"subscription": s.name,
			"tick":         seq,
			"delivered":    s.delivered,
		}).Debug("Discarding out-of-order snapshot")
		return
	}

	s.delivered = seq
	s.calling.Store(true)
	defer s.calling.Store(false)
	if s.stopped.Load() {
		return
	}
	s.onData(items)
}
