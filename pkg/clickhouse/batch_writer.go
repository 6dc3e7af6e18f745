// Package clickhouse provides a buffered writer for ClickHouse tables.
// ClickHouse wants wide inserts, not row-at-a-time traffic, so writers
// accumulate rows in memory and flush them either when the buffer
// fills or when the oldest row has waited long enough.
package clickhouse

import (
	"context"
	"sync"
	"time"

	"hermes/pkg/logger"
)

// FlushFunc performs the actual INSERT for one accumulated batch.
type FlushFunc[T any] func(ctx context.Context, rows []T) error

// BatchWriterConfig tunes buffering. Zero values get defaults.
type BatchWriterConfig struct {
	Table    string
	MaxBatch int           // flush when the buffer reaches this size
	Interval time.Duration // flush at least this often
	Timeout  time.Duration // per-flush deadline
}

// BatchWriter buffers rows of one table and flushes them in batches.
// Add never blocks on the database; a failed flush is logged and the
// rows are dropped rather than retried, history rows are reproducible.
type BatchWriter[T any] struct {
	cfg   BatchWriterConfig
	flush FlushFunc[T]
	log   *logger.Logger

	mu  sync.Mutex
	buf []T

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewBatchWriter[T any](cfg BatchWriterConfig, flush FlushFunc[T]) *BatchWriter[T] {
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 500
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &BatchWriter[T]{
		cfg:   cfg,
		flush: flush,
		log:   logger.Get().With("component", "batch_writer", "table", cfg.Table),
		buf:   make([]T, 0, cfg.MaxBatch),
		stop:  make(chan struct{}),
	}
}

// Start launches the interval flusher.
func (w *BatchWriter[T]) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(w.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.Flush()
			case <-w.stop:
				return
			}
		}
	}()
}

// Stop halts the flusher and drains whatever is buffered.
func (w *BatchWriter[T]) Stop() {
	close(w.stop)
	w.wg.Wait()
	w.Flush()
}

// Add buffers one row, flushing first if the buffer is full.
func (w *BatchWriter[T]) Add(row T) {
	w.mu.Lock()
	w.buf = append(w.buf, row)
	full := len(w.buf) >= w.cfg.MaxBatch
	w.mu.Unlock()

	if full {
		w.Flush()
	}
}

// Flush writes out the current buffer, if any.
func (w *BatchWriter[T]) Flush() {
	w.mu.Lock()
	if len(w.buf) == 0 {
		w.mu.Unlock()
		return
	}
	rows := w.buf
	w.buf = make([]T, 0, w.cfg.MaxBatch)
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.Timeout)
	defer cancel()

	if err := w.flush(ctx, rows); err != nil {
		w.log.Errorw("Batch flush failed, dropping rows",
			"rows", len(rows),
			"error", err,
		)
		return
	}
	w.log.Debugw("Flushed batch", "rows", len(rows))
}

// Pending reports how many rows wait in the buffer.
func (w *BatchWriter[T]) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buf)
}
