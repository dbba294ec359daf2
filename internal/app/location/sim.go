package location

import (
	"context"
	"sync"
	"time"
)

// SimSource emits a synthetic ride: a point drifting north-east from the
// start coordinate at a steady pace. Best-available accuracy is assumed;
// the interval floor is 1s and stationary fixes are kept, matching the
// sampling configuration of the real app.
type SimSource struct {
	Lat      float64
	Lon      float64
	Interval time.Duration
}

type simSubscription struct {
	ch     chan Sample
	cancel context.CancelFunc
	once   sync.Once
}

func (s *simSubscription) Samples() <-chan Sample { return s.ch }
func (s *simSubscription) Err() error             { return nil }
func (s *simSubscription) Unsubscribe()           { s.once.Do(s.cancel) }

func (s *SimSource) Subscribe(ctx context.Context) (Subscription, error) {
	interval := s.Interval
	if interval < time.Second {
		interval = time.Second
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &simSubscription{
		ch:     make(chan Sample, 16),
		cancel: cancel,
	}

	go func() {
		defer close(sub.ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		lat, lon := s.Lat, s.Lon
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				lat += 0.0001
				lon += 0.0001
				spd := 5.5
				alt := 12.0
				select {
				case sub.ch <- Sample{Ts: now.UTC(), Lat: lat, Lon: lon, Alt: &alt, Spd: &spd}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return sub, nil
}
