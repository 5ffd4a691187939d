// Package drdy turns a sensor's data-ready interrupt line into a channel of
// edge timestamps.
package drdy

import (
	"sync/atomic"
	"time"
)

// Line delivers one value per rising edge. Edges that arrive while the
// channel is full are counted and dropped; the sampler reads the freshest
// register contents anyway.
type Line struct {
	events  chan time.Duration
	dropped atomic.Uint64
	closeFn func() error
}

func newLine(depth int) *Line {
	if depth < 1 {
		depth = 1
	}
	return &Line{events: make(chan time.Duration, depth)}
}

func (l *Line) deliver(ts time.Duration) {
	select {
	case l.events <- ts:
	default:
		l.dropped.Add(1)
	}
}

// Events yields edge timestamps relative to the kernel's monotonic clock.
func (l *Line) Events() <-chan time.Duration { return l.events }

// Dropped reports how many edges were discarded.
func (l *Line) Dropped() uint64 { return l.dropped.Load() }

func (l *Line) Close() error {
	if l == nil || l.closeFn == nil {
		return nil
	}
	fn := l.closeFn
	l.closeFn = nil
	return fn()
}
