package poller

import (
	"sync"
	"time"
)

// manualClock is a Clock that only moves when Advance is called.
//
// Timer callbacks run synchronously inside Advance. Ticks are delivered with
// a blocking send, so when Advance returns the scheduler loop has received
// every tick that fell due.
type manualClock struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*manualTimer
	tickers []*manualTicker
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Unix(1700000000, 0)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTicker{
		clock:  c,
		every:  d,
		next:   c.now.Add(d),
		ch:     make(chan time.Time),
		stopCh: make(chan struct{}),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// activeTickers returns the number of tickers that have not been stopped.
func (c *manualClock) activeTickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.tickers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// pendingTimers returns the number of armed timers.
func (c *manualClock) pendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.done {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing timers and ticks in deadline order.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)

	for {
		var (
			nextTimer  *manualTimer
			nextTicker *manualTicker
			at         time.Time
		)
		for _, t := range c.timers {
			if !t.done && !t.at.After(target) && (nextTimer == nil || t.at.Before(at)) {
				nextTimer, at = t, t.at
			}
		}
		for _, t := range c.tickers {
			if t.stopped || t.next.After(target) {
				continue
			}
			if (nextTimer == nil && nextTicker == nil) || t.next.Before(at) {
				nextTimer, nextTicker, at = nil, t, t.next
			}
		}

		if nextTimer == nil && nextTicker == nil {
			break
		}
		c.now = at

		if nextTimer != nil {
			nextTimer.done = true
			c.mu.Unlock()
			nextTimer.f()
			c.mu.Lock()
			continue
		}

		nextTicker.next = nextTicker.next.Add(nextTicker.every)
		c.mu.Unlock()
		select {
		case nextTicker.ch <- at:
		case <-nextTicker.stopCh:
		}
		c.mu.Lock()
	}

	c.now = target
	c.mu.Unlock()
}

type manualTimer struct {
	clock *manualClock
	at    time.Time
	f     func()
	done  bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

type manualTicker struct {
	clock   *manualClock
	every   time.Duration
	next    time.Time
	ch      chan time.Time
	stopCh  chan struct{}
	stopped bool
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if !t.stopped {
		t.stopped = true
		close(t.stopCh)
	}
}
