package lending

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Clock supplies the host's monotonic counter (block height or ticks). The
// engine only reads it. Interest rates are charged per unit of this counter.
type Clock interface {
	Now() uint64
}

// ManualClock is a host-driven counter. It refuses to move backwards.
type ManualClock struct {
	mu  sync.Mutex
	now uint64
}

// NewManualClock starts a counter at the supplied value.
func NewManualClock(start uint64) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the counter to value. Values lower than the current reading are
// rejected.
func (c *ManualClock) Set(value uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if value < c.now {
		return fmt.Errorf("clock: cannot move from %d back to %d", c.now, value)
	}
	c.now = value
	return nil
}

// Advance moves the counter forward by delta and returns the new reading.
// The counter saturates at math.MaxUint64.
func (c *ManualClock) Advance(delta uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if delta > math.MaxUint64-c.now {
		c.now = math.MaxUint64
		return c.now
	}
	c.now += delta
	return c.now
}

// IntervalClock derives block heights from wall time: one unit per Interval
// since Genesis. Readings never decrease even if the wall clock does.
type IntervalClock struct {
	genesis  time.Time
	interval time.Duration
	nowFn    func() time.Time

	mu   sync.Mutex
	last uint64
}

// NewIntervalClock returns a clock ticking once per interval since genesis.
func NewIntervalClock(genesis time.Time, interval time.Duration) *IntervalClock {
	if interval <= 0 {
		interval = time.Second
	}
	return &IntervalClock{genesis: genesis, interval: interval, nowFn: time.Now}
}

func (c *IntervalClock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	elapsed := c.nowFn().Sub(c.genesis)
	var height uint64
	if elapsed > 0 {
		height = uint64(elapsed / c.interval)
	}
	if height < c.last {
		return c.last
	}
	c.last = height
	return height
}
