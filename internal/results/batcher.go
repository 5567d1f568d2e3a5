package results

import (
	"NWBBenchmarks/internal/core/model"
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Batcher buffers measurements and writes them when the batch is full or
// the flush interval elapses.
type Batcher struct {
	writer   model.Writer
	size     int
	interval time.Duration

	in   chan *model.Measurement
	done chan struct{}

	// mu orders Add against the final drain; stopped is set under it.
	mu      sync.Mutex
	stopped bool
}

// NewBatcher creates a batcher. Non-positive size or interval fall back to
// 100 measurements and 5 seconds.
func NewBatcher(w model.Writer, size int, interval time.Duration) *Batcher {
	if size <= 0 {
		size = 100
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Batcher{
		writer:   w,
		size:     size,
		interval: interval,
		in:       make(chan *model.Measurement, size),
		done:     make(chan struct{}),
	}
}

// Add queues a measurement. It returns false once the batcher has stopped;
// a measurement accepted with true is part of a flushed batch.
func (b *Batcher) Add(m *model.Measurement) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return false
	}
	select {
	case b.in <- m:
		return true
	case <-b.done:
		return false
	}
}

// Run flushes batches until ctx is cancelled, then writes what is left.
func (b *Batcher) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	batch := make([]*model.Measurement, 0, b.size)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := b.writer.Write(ctx, batch); err != nil {
			log.WithField("writer", b.writer.Name()).Errorf("Failed to write batch of %d: %v", len(batch), err)
		}
		batch = make([]*model.Measurement, 0, b.size)
	}

	for {
		select {
		case m := <-b.in:
			batch = append(batch, m)
			if len(batch) >= b.size {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			// Release blocked senders, then wait for in-flight Adds so
			// the drain below sees everything that was accepted.
			close(b.done)
			b.mu.Lock()
			b.stopped = true
			b.mu.Unlock()
			for {
				select {
				case m := <-b.in:
					batch = append(batch, m)
				default:
					flush(context.Background())
					return
				}
			}
		}
	}
}
