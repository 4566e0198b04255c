package util

import (
	"sync/atomic"
	"time"
)

type Clock interface {
	NowMs() int64
}

type RealClock struct{}

func (RealClock) NowMs() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

// ManualClock only moves when told to.
type ManualClock struct {
	ms atomic.Int64
}

func NewManualClock(startMs int64) *ManualClock {
	c := &ManualClock{}
	c.ms.Store(startMs)
	return c
}

func (c *ManualClock) NowMs() int64 {
	return c.ms.Load()
}

func (c *ManualClock) Advance(d time.Duration) {
	c.ms.Add(d.Milliseconds())
}
