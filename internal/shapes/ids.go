package shapes

import (
	"sync/atomic"
	"time"
)

// IDGenerator hands out wall-clock millisecond ids that never repeat within
// a process: when the clock has not advanced the previous id plus one is used.
type IDGenerator struct {
	last atomic.Int64
	now  func() time.Time
}

// NewIDGenerator returns a generator on the system clock.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

// Next returns a fresh id greater than every id returned or observed before.
func (g *IDGenerator) Next() int64 {
	for {
		prev := g.last.Load()
		id := g.now().UnixMilli()
		if id <= prev {
			id = prev + 1
		}
		if g.last.CompareAndSwap(prev, id) {
			return id
		}
	}
}

// Observe makes later ids exceed id. Controllers call it for every hydrated
// record so a clock that went backwards cannot reissue a stored id.
func (g *IDGenerator) Observe(id int64) {
	for {
		prev := g.last.Load()
		if id <= prev || g.last.CompareAndSwap(prev, id) {
			return
		}
	}
}
