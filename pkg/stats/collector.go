// Package stats provides atomic statistics collection for the table engine.
package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// OperationType defines the type of operation being tracked.
type OperationType string

// Operations tracked by the table engine.
const (
	OpRead       OperationType = "read"
	OpWrite      OperationType = "write"
	OpInsert     OperationType = "insert"
	OpDelete     OperationType = "delete"
	OpBlockRead  OperationType = "block_read"
	OpBlockWrite OperationType = "block_write"
	OpBlockAlloc OperationType = "block_alloc"
	OpFlush      OperationType = "flush"
)

// Collector gathers operation counts with minimal contention using
// atomic counters. The zero value is not usable; call NewCollector.
type Collector struct {
	counts   map[OperationType]*atomic.Uint64
	countsMu sync.RWMutex // only used when creating new counter entries

	totalBytesRead    atomic.Uint64
	totalBytesWritten atomic.Uint64

	startTime time.Time
}

// NewCollector creates a new statistics collector.
func NewCollector() *Collector {
	return &Collector{
		counts:    make(map[OperationType]*atomic.Uint64),
		startTime: time.Now(),
	}
}

// TrackOperation increments the counter for the given operation type.
func (c *Collector) TrackOperation(op OperationType) {
	c.counter(op).Add(1)
}

// TrackBytes adds to the total bytes read or written.
func (c *Collector) TrackBytes(read bool, bytes uint64) {
	if read {
		c.totalBytesRead.Add(bytes)
	} else {
		c.totalBytesWritten.Add(bytes)
	}
}

func (c *Collector) counter(op OperationType) *atomic.Uint64 {
	c.countsMu.RLock()
	counter, ok := c.counts[op]
	c.countsMu.RUnlock()
	if ok {
		return counter
	}

	c.countsMu.Lock()
	defer c.countsMu.Unlock()
	if counter, ok = c.counts[op]; !ok {
		counter = &atomic.Uint64{}
		c.counts[op] = counter
	}
	return counter
}

// Stats is a point-in-time snapshot of the collected statistics.
type Stats struct {
	Counts       map[OperationType]uint64
	BytesRead    uint64
	BytesWritten uint64
	Uptime       time.Duration
}

// GetStats returns a snapshot of all statistics.
func (c *Collector) GetStats() Stats {
	c.countsMu.RLock()
	counts := make(map[OperationType]uint64, len(c.counts))
	for op, counter := range c.counts {
		counts[op] = counter.Load()
	}
	c.countsMu.RUnlock()

	return Stats{
		Counts:       counts,
		BytesRead:    c.totalBytesRead.Load(),
		BytesWritten: c.totalBytesWritten.Load(),
		Uptime:       time.Since(c.startTime),
	}
}
