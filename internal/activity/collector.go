package activity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// BatchInserter is the interface used by Collector to persist entries.
type BatchInserter interface {
	BatchInsert(ctx context.Context, entries []Entry) error
}

// FlushObserver receives the outcome of each flush. It lets the metrics
// package watch the collector without this package importing it.
type FlushObserver func(count int, took time.Duration, err error)

// Collector buffers entries in memory and periodically flushes them to the
// store in batches. It is safe for concurrent use.
type Collector struct {
	store         BatchInserter
	buffer        []Entry
	mu            sync.Mutex
	batchSize     int
	flushInterval time.Duration
	now           func() time.Time
	observe       FlushObserver
	done          chan struct{}
	stopOnce      sync.Once
}

// NewCollector creates a new Collector that flushes to the given store when the
// buffer reaches batchSize or every flushInterval, whichever comes first.
func NewCollector(store BatchInserter, batchSize int, flushInterval time.Duration) *Collector {
	return &Collector{
		store:         store,
		buffer:        make([]Entry, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		now:           time.Now,
		done:          make(chan struct{}),
	}
}

// OnFlush installs an observer called after every non-empty flush.
func (c *Collector) OnFlush(fn FlushObserver) {
	c.observe = fn
}

// Start begins flushing buffered entries on a timer. It blocks until Stop is
// called or the context is cancelled.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-ctx.Done():
			c.flush()
			return
		case <-c.done:
			c.flush()
			return
		}
	}
}

// Record adds an entry to the buffer, stamping its time if unset. If the
// buffer reaches batchSize, a flush is triggered immediately.
func (c *Collector) Record(e Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = c.now()
	}

	c.mu.Lock()
	c.buffer = append(c.buffer, e)
	shouldFlush := len(c.buffer) >= c.batchSize
	c.mu.Unlock()

	if shouldFlush {
		c.flush()
	}
}

// Pending returns the number of buffered entries.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

// Flush writes all buffered entries now.
func (c *Collector) Flush() {
	c.flush()
}

// flush drains all buffered entries and writes them to the store. It logs
// errors rather than returning them so callers are not blocked.
func (c *Collector) flush() {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]Entry, 0, c.batchSize)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	err := c.store.BatchInsert(ctx, batch)
	if err != nil {
		slog.Error("failed to flush activity entries", "count", len(batch), "error", err)
	}
	if c.observe != nil {
		c.observe(len(batch), time.Since(start), err)
	}
}

// Stop signals the background goroutine to exit and performs a final flush.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}
