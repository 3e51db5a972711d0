package export

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/oicur0t/tracex/pkg/models"
)

// Batcher accumulates records and writes them to a sink in batches, one
// batch per session.
type Batcher struct {
	source  string
	loadID  string
	maxSize int
	maxWait time.Duration
	logger  *zap.Logger
	sink    Sink

	recordChan chan *models.Record
	mu         sync.Mutex
	batches    map[int][]*models.Record // session -> records
	order      []int
	sent       int
}

// NewBatcher creates a new record batcher
func NewBatcher(source, loadID string, maxSize int, maxWait time.Duration, queueSize int, logger *zap.Logger, sink Sink) *Batcher {
	return &Batcher{
		source:     source,
		loadID:     loadID,
		maxSize:    maxSize,
		maxWait:    maxWait,
		logger:     logger,
		sink:       sink,
		recordChan: make(chan *models.Record, queueSize),
		batches:    make(map[int][]*models.Record),
	}
}

// RecordChan returns the channel for receiving records. Close it to flush
// and stop the batcher.
func (b *Batcher) RecordChan() chan<- *models.Record {
	return b.recordChan
}

// Sent returns the number of records written to the sink.
func (b *Batcher) Sent() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sent
}

// Start begins the batching process. It returns nil once the record channel
// is closed and everything was flushed.
func (b *Batcher) Start(ctx context.Context) error {
	ticker := time.NewTicker(b.maxWait)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Flush remaining records before exiting
			if err := b.flush(context.WithoutCancel(ctx)); err != nil {
				b.logger.Error("Failed to flush final batch", zap.Error(err))
			}
			return ctx.Err()

		case rec, ok := <-b.recordChan:
			if !ok {
				return b.flush(ctx)
			}

			b.mu.Lock()
			if _, exists := b.batches[rec.Session]; !exists {
				b.batches[rec.Session] = make([]*models.Record, 0, b.maxSize)
				b.order = append(b.order, rec.Session)
			}
			b.batches[rec.Session] = append(b.batches[rec.Session], rec)
			shouldFlush := len(b.batches[rec.Session]) >= b.maxSize
			b.mu.Unlock()

			if shouldFlush {
				if err := b.flushSession(ctx, rec.Session); err != nil {
					return err
				}
				ticker.Reset(b.maxWait)
			}

		case <-ticker.C:
			// Time threshold reached
			if err := b.flush(ctx); err != nil {
				return err
			}
		}
	}
}

// flush writes all current batches
func (b *Batcher) flush(ctx context.Context) error {
	b.mu.Lock()
	sessions := make([]int, len(b.order))
	copy(sessions, b.order)
	b.mu.Unlock()

	for _, session := range sessions {
		if err := b.flushSession(ctx, session); err != nil {
			return err
		}
	}
	return nil
}

// flushSession writes the batch of one session
func (b *Batcher) flushSession(ctx context.Context, session int) error {
	b.mu.Lock()
	batch := b.batches[session]
	if len(batch) == 0 {
		b.mu.Unlock()
		return nil
	}

	toSend := models.RecordBatch{
		Source:  b.source,
		LoadID:  b.loadID,
		Records: make([]*models.Record, len(batch)),
	}
	copy(toSend.Records, batch)
	b.batches[session] = b.batches[session][:0]
	b.mu.Unlock()

	b.logger.Debug("Flushing batch",
		zap.Int("size", len(toSend.Records)),
		zap.Int("session", session))

	if err := b.sink.WriteBatch(ctx, toSend); err != nil {
		b.logger.Error("Failed to write batch",
			zap.Error(err),
			zap.Int("size", len(toSend.Records)),
			zap.Int("session", session))
		return err
	}

	b.mu.Lock()
	b.sent += len(toSend.Records)
	b.mu.Unlock()
	return nil
}
