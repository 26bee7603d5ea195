// Package timeutil lets the pipeline read time through an interface so
// tests can drive frame stamping and periodic stats deterministically.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the pipeline's source of time. Frames without a capture
// timestamp are stamped with Now.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker mirrors time.Ticker behind an interface.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock reads the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTicker(d time.Duration) Ticker { return wallTicker{time.NewTicker(d)} }

type wallTicker struct{ *time.Ticker }

func (w wallTicker) C() <-chan time.Time { return w.Ticker.C }

// MockClock only moves when told to. Tickers created from it fire during
// Advance once their period has elapsed.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*MockTicker
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set jumps to t without firing tickers.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and fires every due ticker once.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now, due := c.now, c.tickers
	c.mu.Unlock()

	for _, tk := range due {
		tk.fire(now)
	}
}

func (c *MockClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	tk := &MockTicker{ch: make(chan time.Time, 1), period: d, next: c.now.Add(d)}
	c.tickers = append(c.tickers, tk)
	return tk
}

// MockTicker is created by MockClock.NewTicker. Like time.Ticker it drops
// ticks the reader has not consumed.
type MockTicker struct {
	mu      sync.Mutex
	ch      chan time.Time
	period  time.Duration
	next    time.Time
	stopped bool
}

func (tk *MockTicker) C() <-chan time.Time { return tk.ch }

func (tk *MockTicker) Stop() {
	tk.mu.Lock()
	tk.stopped = true
	tk.mu.Unlock()
}

func (tk *MockTicker) fire(now time.Time) {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	if tk.stopped || now.Before(tk.next) {
		return
	}
	select {
	case tk.ch <- now:
	default:
	}
	tk.next = now.Add(tk.period)
}
