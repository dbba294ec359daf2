package location

import (
	"context"
	"errors"
	"sync"
)

// ErrUnavailable is returned when the location stream cannot be started.
var ErrUnavailable = errors.New("location sampling unavailable")

// Subscription is a live location stream. Samples() closes when the stream
// ends; Err() reports why when the end was not requested.
type Subscription interface {
	Samples() <-chan Sample
	Err() error
	Unsubscribe()
}

// Source hands out location streams. Implementations wrap the platform
// location services; SimSource is the in-repo stand-in.
type Source interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// Collector subscribes to a Source for the lifetime of one recording session
// and buffers every sample in delivery order. The buffer is append-only while
// recording and only drained at session teardown.
type Collector struct {
	src Source

	mu       sync.Mutex
	samples  []Sample
	sub      Subscription
	stopping bool
	degraded bool

	done chan struct{}
}

func NewCollector(src Source) *Collector {
	return &Collector{src: src}
}

// Start subscribes to the source and begins buffering. A source that cannot
// start at all is fatal to the session and reported as ErrUnavailable.
func (c *Collector) Start(ctx context.Context) error {
	sub, err := c.src.Subscribe(ctx)
	if err != nil {
		return errors.Join(ErrUnavailable, err)
	}

	c.mu.Lock()
	c.sub = sub
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.consume(sub)
	return nil
}

func (c *Collector) consume(sub Subscription) {
	for s := range sub.Samples() {
		c.mu.Lock()
		c.samples = append(c.samples, s)
		c.mu.Unlock()
	}

	c.mu.Lock()
	// The stream closing on its own (permission revoked, hardware fault)
	// degrades the track but never aborts the session.
	if !c.stopping {
		c.degraded = true
	}
	c.mu.Unlock()
	close(c.done)
}

// Count reports how many samples have been buffered so far. Non-destructive;
// used for the live counter.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

// Stop tears down the subscription and waits for in-flight samples to be
// flushed into the buffer.
func (c *Collector) Stop() {
	c.mu.Lock()
	c.stopping = true
	sub := c.sub
	done := c.done
	c.mu.Unlock()

	if sub == nil {
		return
	}
	sub.Unsubscribe()
	<-done
}

// Drain returns the buffered samples in delivery order and releases the
// buffer. Call only at session teardown, after Stop.
func (c *Collector) Drain() []Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	samples := c.samples
	c.samples = nil
	return samples
}

// Degraded reports whether the stream died before Stop was requested.
// A degraded track is uploaded without the GPS metadata step.
func (c *Collector) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}
