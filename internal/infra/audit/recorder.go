// Package audit persists cost records asynchronously.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/brandcraft/server/internal/model"
	"github.com/brandcraft/server/internal/port/outbound"
	"go.uber.org/zap"
)

// Recorder implements outbound.AuditStorePort by queueing records for a
// background writer. Append never blocks on the underlying store.
type Recorder struct {
	store        outbound.AuditStorePort
	logger       *zap.Logger
	buffer       chan *model.CostRecord
	writeTimeout time.Duration
	onDrop       func()

	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithDropHook registers a callback invoked for every dropped record.
func WithDropHook(fn func()) Option {
	return func(r *Recorder) {
		r.onDrop = fn
	}
}

// WithWriteTimeout sets the timeout of a single store write.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		r.writeTimeout = d
	}
}

// NewRecorder creates a new audit recorder and starts its writer.
func NewRecorder(store outbound.AuditStorePort, logger *zap.Logger, bufferSize int, opts ...Option) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		store:        store,
		logger:       logger.Named("audit-recorder"),
		buffer:       make(chan *model.CostRecord, bufferSize),
		writeTimeout: 5 * time.Second,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.start()
	return r
}

// Append queues a cost record for persistence. A full buffer drops the record with a warning.
func (r *Recorder) Append(_ context.Context, record *model.CostRecord) error {
	cp := *record
	select {
	case r.buffer <- &cp:
	default:
		r.logger.Warn("audit buffer full, dropping cost record",
			zap.String("dispatch_id", record.DispatchID),
			zap.String("caller_id", record.CallerID),
			zap.Int64("amount_credits", record.AmountCredits))
		if r.onDrop != nil {
			r.onDrop()
		}
	}
	return nil
}

// Close stops the recorder and flushes remaining records.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}

func (r *Recorder) start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case record := <-r.buffer:
				r.persist(record)
			case <-r.done:
				// Flush remaining records
				for {
					select {
					case record := <-r.buffer:
						r.persist(record)
					default:
						return
					}
				}
			}
		}
	}()
}

func (r *Recorder) persist(record *model.CostRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	if err := r.store.Append(ctx, record); err != nil {
		r.logger.Error("failed to persist cost record",
			zap.Error(err),
			zap.String("dispatch_id", record.DispatchID),
		)
	}
}

// Compile-time check
var _ outbound.AuditStorePort = (*Recorder)(nil)
