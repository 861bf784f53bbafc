// Package batch accumulates low-priority tasks and releases them as bounded-concurrency batches.
package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/brandcraft/server/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotLowPriority is returned when a non-low priority task is enqueued.
	ErrNotLowPriority = errors.New("only low priority tasks can be batched")

	// ErrQueueFull is returned when the queue is at capacity.
	ErrQueueFull = errors.New("batch queue is full")

	// ErrStopped is returned when enqueueing after Stop.
	ErrStopped = errors.New("batch scheduler stopped")
)

// Item is a pending task together with the dispatch id issued at enqueue time.
type Item struct {
	DispatchID string
	Task       *model.Task
	QueuedAt   time.Time
}

// Dispatcher runs one drained item through the full dispatch pipeline.
type Dispatcher interface {
	DispatchQueued(ctx context.Context, dispatchID string, task *model.Task) (*model.DispatchResult, error)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, dispatchID string, task *model.Task) (*model.DispatchResult, error)

// DispatchQueued calls f.
func (f DispatcherFunc) DispatchQueued(ctx context.Context, dispatchID string, task *model.Task) (*model.DispatchResult, error) {
	return f(ctx, dispatchID, task)
}

// Config contains scheduler configuration.
type Config struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	Threshold     int           `mapstructure:"threshold" yaml:"threshold"`
	Concurrency   int           `mapstructure:"concurrency" yaml:"concurrency"`
	MaxQueue      int           `mapstructure:"max_queue" yaml:"max_queue"`
	FlushInterval time.Duration `mapstructure:"flush_interval" yaml:"flush_interval"`
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		Threshold:     5,
		Concurrency:   3,
		MaxQueue:      1000,
		FlushInterval: 30 * time.Second,
	}
}

// DrainReport summarizes one drain.
type DrainReport struct {
	Drained int
	Failed  int
}

// Scheduler holds the batch queue.
type Scheduler struct {
	mu      sync.Mutex
	queue   []*Item
	stopped bool

	dispatcher Dispatcher
	config     Config
	logger     *zap.Logger
	now        func() time.Time
	onDepth    func(int)

	stopCh  chan struct{}
	loopWg  sync.WaitGroup
	drainWg sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithDepthObserver registers a callback invoked with the queue depth after every change.
func WithDepthObserver(fn func(depth int)) Option {
	return func(s *Scheduler) {
		s.onDepth = fn
	}
}

// NewScheduler creates a new batch scheduler.
func NewScheduler(dispatcher Dispatcher, config *Config, logger *zap.Logger, opts ...Option) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg := *config
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}

	s := &Scheduler{
		dispatcher: dispatcher,
		config:     cfg,
		logger:     logger.Named("batch-scheduler"),
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether batching is enabled.
func (s *Scheduler) Enabled() bool {
	return s.config.Enabled
}

// Enqueue appends a low-priority task to the queue. It never blocks on I/O.
func (s *Scheduler) Enqueue(dispatchID string, task *model.Task) (*model.QueuedAck, error) {
	if task.Priority != model.PriorityLow {
		return nil, ErrNotLowPriority
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrStopped
	}
	if s.config.MaxQueue > 0 && len(s.queue) >= s.config.MaxQueue {
		s.mu.Unlock()
		return nil, ErrQueueFull
	}

	item := &Item{
		DispatchID: dispatchID,
		Task:       task,
		QueuedAt:   s.now(),
	}
	s.queue = append(s.queue, item)
	depth := len(s.queue)
	s.mu.Unlock()

	s.observe(depth)

	s.logger.Debug("task enqueued",
		zap.String("dispatch_id", dispatchID),
		zap.Int("position", depth))

	return &model.QueuedAck{
		DispatchID: dispatchID,
		Position:   depth,
		QueuedAt:   item.QueuedAt,
	}, nil
}

// Len returns the current queue length.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// ShouldDrain reports whether the queue reached the drain threshold.
func (s *Scheduler) ShouldDrain() bool {
	return s.Len() >= s.config.Threshold
}

// Drain swaps out the whole queue and dispatches every item with priority
// escalated to normal. Items run in chunks of Concurrency; a failed item does
// not affect the others.
func (s *Scheduler) Drain(ctx context.Context) DrainReport {
	s.mu.Lock()
	items := s.queue
	s.queue = nil
	s.mu.Unlock()

	var report DrainReport
	if len(items) == 0 {
		return report
	}
	s.observe(0)

	s.logger.Info("draining batch", zap.Int("size", len(items)))

	var mu sync.Mutex
	size := s.config.Concurrency
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))

		var g errgroup.Group
		for _, item := range items[start:end] {
			g.Go(func() error {
				task := item.Task.Clone()
				task.Priority = model.PriorityNormal

				ok := s.run(ctx, item, task)

				mu.Lock()
				report.Drained++
				if !ok {
					report.Failed++
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	s.logger.Info("batch drained",
		zap.Int("drained", report.Drained),
		zap.Int("failed", report.Failed))

	return report
}

// DrainAsync starts a drain in the background. The drain is detached from any
// request context and is awaited by Stop.
func (s *Scheduler) DrainAsync() {
	s.drainWg.Add(1)
	go func() {
		defer s.drainWg.Done()
		s.Drain(context.Background())
	}()
}

// Start runs the periodic flush that drains stragglers below the threshold.
func (s *Scheduler) Start() {
	if s.config.FlushInterval <= 0 {
		return
	}

	s.loopWg.Add(1)
	go func() {
		defer s.loopWg.Done()
		ticker := time.NewTicker(s.config.FlushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				if s.Len() > 0 {
					s.Drain(context.Background())
				}
			}
		}
	}()

	s.logger.Info("batch scheduler started",
		zap.Int("threshold", s.config.Threshold),
		zap.Int("concurrency", s.config.Concurrency),
		zap.Duration("flush_interval", s.config.FlushInterval))
}

// Stop rejects further enqueues, flushes the queue and waits for running drains.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)
	s.loopWg.Wait()

	s.Drain(ctx)
	s.drainWg.Wait()
	s.logger.Info("batch scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, item *Item, task *model.Task) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("batched dispatch panicked",
				zap.String("dispatch_id", item.DispatchID),
				zap.Any("panic", r))
			ok = false
		}
	}()

	result, err := s.dispatcher.DispatchQueued(ctx, item.DispatchID, task)
	if err != nil {
		s.logger.Warn("batched dispatch failed",
			zap.String("dispatch_id", item.DispatchID),
			zap.Error(err))
		return false
	}
	return result == nil || result.Status != model.DispatchStatusFailed
}

func (s *Scheduler) observe(depth int) {
	if s.onDepth != nil {
		s.onDepth(depth)
	}
}
