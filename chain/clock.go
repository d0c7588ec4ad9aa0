// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package chain

import (
	"sync/atomic"
	"time"
)

// Clock is the time source consumed by state transitions. The runtime
// supplies wall-clock time; tests substitute a manual clock.
type Clock interface {
	Now() int64
}

type systemClock struct{}

func (systemClock) Now() int64 {
	return time.Now().Unix()
}

func SystemClock() Clock {
	return systemClock{}
}

// ManualClock is a settable clock for tests.
type ManualClock struct {
	now int64
}

func NewManualClock(now int64) *ManualClock {
	return &ManualClock{now: now}
}

func (c *ManualClock) Now() int64 {
	return atomic.LoadInt64(&c.now)
}

func (c *ManualClock) Set(now int64) {
	atomic.StoreInt64(&c.now, now)
}

func (c *ManualClock) Advance(seconds int64) {
	atomic.AddInt64(&c.now, seconds)
}
