// Package orchestrator routes creative tasks through preflight, cache, batch or direct
// generation, validation, settlement and caching.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brandcraft/server/internal/domain/batch"
	"github.com/brandcraft/server/internal/domain/fingerprint"
	"github.com/brandcraft/server/internal/domain/ledger"
	"github.com/brandcraft/server/internal/domain/validator"
	"github.com/brandcraft/server/internal/model"
	"github.com/brandcraft/server/internal/port/outbound"
	"github.com/brandcraft/server/internal/utils/metrics"
	"github.com/brandcraft/server/internal/utils/requestctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const cacheName = "fingerprint"

// Config contains orchestrator configuration.
type Config struct {
	DefaultTimeout    time.Duration `mapstructure:"default_timeout"`
	SystemPrompt      string        `mapstructure:"system_prompt"`
	ResultTTL         time.Duration `mapstructure:"result_ttl"`
	MaxTrackedResults int           `mapstructure:"max_tracked_results"`
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() *Config {
	return &Config{
		DefaultTimeout:    60 * time.Second,
		SystemPrompt:      DefaultSystemPrompt,
		ResultTTL:         24 * time.Hour,
		MaxTrackedResults: 10000,
	}
}

// Orchestrator is the dispatch façade.
type Orchestrator struct {
	provider  outbound.GenerationProviderPort
	ledger    *ledger.Ledger
	cache     *fingerprint.Cache
	validator *validator.Validator
	scheduler *batch.Scheduler
	results   *resultRegistry
	metrics   *metrics.Metrics
	config    *Config
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics enables prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithIDGenerator overrides dispatch id generation.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) {
		o.newID = fn
	}
}

// NewOrchestrator creates a new orchestrator. It owns the batch scheduler built from batchConfig.
func NewOrchestrator(
	provider outbound.GenerationProviderPort,
	costLedger *ledger.Ledger,
	cache *fingerprint.Cache,
	contentValidator *validator.Validator,
	config *Config,
	batchConfig *batch.Config,
	logger *zap.Logger,
	opts ...Option,
) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = DefaultSystemPrompt
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if contentValidator == nil {
		contentValidator = validator.New(nil)
	}

	o := &Orchestrator{
		provider:  provider,
		ledger:    costLedger,
		cache:     cache,
		validator: contentValidator,
		config:    config,
		logger:    logger.Named("orchestrator"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}

	o.results = newResultRegistry(config.ResultTTL, config.MaxTrackedResults, o.now)

	var schedOpts []batch.Option
	if o.metrics != nil {
		schedOpts = append(schedOpts, batch.WithDepthObserver(o.metrics.SetBatchQueueDepth))
	}
	o.scheduler = batch.NewScheduler(o, batchConfig, logger, schedOpts...)

	return o
}

// Scheduler returns the batch scheduler owned by the orchestrator.
func (o *Orchestrator) Scheduler() *batch.Scheduler {
	return o.scheduler
}

// Start starts background batch flushing.
func (o *Orchestrator) Start() {
	o.scheduler.Start()
}

// Stop flushes pending batches and waits for them to finish.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.scheduler.Stop(ctx)
}

// Validate scores text with the configured validator.
func (o *Orchestrator) Validate(text string) model.ValidationResult {
	return o.validator.Score(text)
}

// Lookup returns the latest known result of a dispatch.
func (o *Orchestrator) Lookup(dispatchID string) (*model.DispatchResult, error) {
	result, ok := o.results.get(dispatchID)
	if !ok {
		return nil, ErrDispatchNotFound
	}
	return result, nil
}

// Dispatch runs a task through the state machine. A failed dispatch returns both
// its result (with trace) and the error.
func (o *Orchestrator) Dispatch(ctx context.Context, task *model.Task) (*model.DispatchResult, error) {
	if err := validateTask(task); err != nil {
		return nil, err
	}
	return o.run(ctx, o.newID(), task, false)
}

// DispatchQueued runs a drained batch item. The dispatch id is the one issued at enqueue.
func (o *Orchestrator) DispatchQueued(ctx context.Context, dispatchID string, task *model.Task) (*model.DispatchResult, error) {
	return o.run(ctx, dispatchID, task, true)
}

// dispatchRun is the mutable state of one dispatch.
type dispatchRun struct {
	task    *model.Task
	result  *model.DispatchResult
	started time.Time
}

func (r *dispatchRun) enter(state model.DispatchState) {
	r.result.Trace = append(r.result.Trace, state)
}

func (o *Orchestrator) run(ctx context.Context, dispatchID string, task *model.Task, batched bool) (*model.DispatchResult, error) {
	r := &dispatchRun{
		task:    task,
		started: o.now(),
		result: &model.DispatchResult{
			DispatchID: dispatchID,
			CallerID:   task.CallerID,
			Retryable:  task.Retryable,
			Trace:      make([]model.DispatchState, 0, 8),
		},
	}

	// PREFLIGHT
	r.enter(model.StatePreflight)
	if err := o.ledger.Preflight(ctx, task.CallerID, task.BudgetTier); err != nil {
		return o.fail(r, err)
	}

	// CACHE_CHECK
	r.enter(model.StateCacheCheck)
	fp, err := fingerprint.Compute(task)
	if err != nil {
		return o.fail(r, fmt.Errorf("%w: %v", ErrInvalidTask, err))
	}
	r.result.Fingerprint = fp

	if task.IsCacheable() && o.cache != nil {
		entry, err := o.cache.Lookup(ctx, fp)
		if err != nil {
			o.logger.Warn("cache lookup failed, treating as miss",
				zap.String("dispatch_id", dispatchID),
				zap.Error(err))
		}
		if entry != nil {
			o.recordCacheHit(true)
			return o.serveFromCache(ctx, r, entry)
		}
		o.recordCacheHit(false)
	}

	// BATCH_OR_DIRECT
	r.enter(model.StateBatchOrDirect)
	if !batched && task.Priority == model.PriorityLow && o.scheduler.Enabled() {
		ack, err := o.scheduler.Enqueue(dispatchID, task)
		if err == nil {
			return o.queued(r, ack), nil
		}
		o.logger.Warn("batch enqueue failed, dispatching directly",
			zap.String("dispatch_id", dispatchID),
			zap.Error(err))
	}

	// GENERATING
	r.enter(model.StateGenerating)
	gen, err := o.generate(ctx, task)
	if err != nil {
		return o.fail(r, err)
	}
	r.result.Text = gen.Text
	r.result.Usage = &gen.Usage
	r.result.ModelID = gen.ModelID

	// VALIDATING
	r.enter(model.StateValidating)
	validation := o.validator.Score(gen.Text)
	r.result.Validation = &validation
	if o.metrics != nil {
		o.metrics.RecordValidationScore(validation.Score)
	}
	if !validation.Passed {
		o.logger.Info("generated content below quality threshold",
			zap.String("dispatch_id", dispatchID),
			zap.Int("score", validation.Score),
			zap.Strings("issues", validation.Issues))
	}

	// SETTLING
	r.enter(model.StateSettling)
	kind := model.CostKindDirect
	if batched {
		kind = model.CostKindBatch
	}
	r.result.Path = kind

	amount := o.ledger.PriceDirect(gen.Usage, gen.ModelID)
	amount, qualityApplied := o.ledger.ApplyQualityDiscount(amount, validation)
	record, err := o.ledger.Settle(ctx, &ledger.SettleRequest{
		DispatchID:             dispatchID,
		CallerID:               task.CallerID,
		TaskKind:               task.Kind,
		AmountUSD:              amount,
		Kind:                   kind,
		QualityDiscountApplied: qualityApplied,
	})
	if err != nil {
		return o.fail(r, &SettlementError{
			DispatchID: dispatchID,
			CallerID:   task.CallerID,
			AmountUSD:  amount,
			Err:        err,
		})
	}
	r.result.Cost = record
	o.recordCredits(record)

	// CACHING
	if task.IsCacheable() && o.cache != nil {
		r.enter(model.StateCaching)
		if _, err := o.cache.Store(ctx, fp, gen.Text, validation, gen.Usage, gen.ModelID); err != nil {
			o.logger.Warn("cache write failed",
				zap.String("dispatch_id", dispatchID),
				zap.String("fingerprint", fp),
				zap.Error(err))
		}
	}

	return o.done(r), nil
}

func (o *Orchestrator) serveFromCache(ctx context.Context, r *dispatchRun, entry *model.CacheEntry) (*model.DispatchResult, error) {
	task := r.task
	r.result.Path = model.CostKindCacheHit
	r.result.Text = entry.Result
	validation := entry.Validation
	usage := entry.Usage
	r.result.Validation = &validation
	r.result.Usage = &usage
	r.result.ModelID = entry.ModelID

	// SETTLING
	r.enter(model.StateSettling)
	amount, err := o.ledger.PriceCacheHit(task.BudgetTier)
	if err != nil {
		return o.fail(r, err)
	}

	record, err := o.ledger.Settle(ctx, &ledger.SettleRequest{
		DispatchID:            r.result.DispatchID,
		CallerID:              task.CallerID,
		TaskKind:              task.Kind,
		AmountUSD:             amount,
		Kind:                  model.CostKindCacheHit,
		CachedDiscountApplied: true,
	})
	if err != nil {
		return o.fail(r, &SettlementError{
			DispatchID: r.result.DispatchID,
			CallerID:   task.CallerID,
			AmountUSD:  amount,
			Err:        err,
		})
	}
	r.result.Cost = record
	o.recordCredits(record)

	return o.done(r), nil
}

func (o *Orchestrator) generate(ctx context.Context, task *model.Task) (*model.Generation, error) {
	tier, err := o.ledger.Tier(task.BudgetTier)
	if err != nil {
		return nil, err
	}

	timeout := task.Timeout
	if timeout <= 0 {
		timeout = o.config.DefaultTimeout
	}
	genCtx := requestctx.WithCallerID(ctx, task.CallerID)
	if timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(genCtx, timeout)
		defer cancel()
	}

	req := &model.GenerationRequest{
		Prompt:       BuildPrompt(task),
		SystemPrompt: o.config.SystemPrompt,
		MaxTokens:    tier.MaxTokens,
		Temperature:  Temperature(task.EffectiveRiskProfile()),
	}

	start := o.now()
	gen, err := o.provider.Generate(genCtx, req)
	elapsed := o.now().Sub(start)

	if err == nil && genCtx.Err() == context.DeadlineExceeded {
		err = genCtx.Err()
	}
	if err != nil {
		o.recordGeneration("", "error", elapsed)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if gen == nil {
		o.recordGeneration("", "error", elapsed)
		return nil, fmt.Errorf("%w: empty response", ErrGenerationFailed)
	}

	o.recordGeneration(gen.ModelID, "success", elapsed)
	if o.metrics != nil {
		o.metrics.RecordTokens(gen.ModelID, gen.Usage.InputTokens, gen.Usage.OutputTokens)
	}
	return gen, nil
}

func (o *Orchestrator) queued(r *dispatchRun, ack *model.QueuedAck) *model.DispatchResult {
	r.result.Status = model.DispatchStatusQueued
	r.result.Path = model.CostKindBatch
	o.results.put(r.result)

	o.logger.Debug("dispatch queued",
		zap.String("dispatch_id", r.result.DispatchID),
		zap.Int("position", ack.Position))
	o.recordDispatch(r.result)

	if o.scheduler.ShouldDrain() {
		o.scheduler.DrainAsync()
	}
	return r.result
}

func (o *Orchestrator) done(r *dispatchRun) *model.DispatchResult {
	r.enter(model.StateDone)
	completed := o.now()
	r.result.Status = model.DispatchStatusDone
	r.result.CompletedAt = &completed
	o.results.put(r.result)

	o.logger.Debug("dispatch completed",
		zap.String("dispatch_id", r.result.DispatchID),
		zap.String("path", string(r.result.Path)),
		zap.Duration("elapsed", completed.Sub(r.started)))
	o.recordDispatch(r.result)
	return r.result
}

func (o *Orchestrator) fail(r *dispatchRun, err error) (*model.DispatchResult, error) {
	r.enter(model.StateFailed)
	completed := o.now()
	r.result.Status = model.DispatchStatusFailed
	r.result.Error = err.Error()
	r.result.CompletedAt = &completed
	o.results.put(r.result)

	fields := []zap.Field{
		zap.String("dispatch_id", r.result.DispatchID),
		zap.String("caller_id", r.task.CallerID),
		zap.Error(err),
	}
	var settleErr *SettlementError
	if errors.As(err, &settleErr) {
		o.logger.Error("dispatch settlement failed",
			append(fields, zap.Float64("unbilled_usd", settleErr.AmountUSD))...)
	} else {
		o.logger.Info("dispatch failed", fields...)
	}
	o.recordDispatch(r.result)
	return r.result, err
}

func (o *Orchestrator) recordDispatch(result *model.DispatchResult) {
	if o.metrics != nil {
		o.metrics.RecordDispatch(string(result.Path), string(result.Status))
	}
}

func (o *Orchestrator) recordCacheHit(hit bool) {
	if o.metrics == nil {
		return
	}
	if hit {
		o.metrics.RecordCacheHit(cacheName)
	} else {
		o.metrics.RecordCacheMiss(cacheName)
	}
}

func (o *Orchestrator) recordCredits(record *model.CostRecord) {
	if o.metrics != nil {
		o.metrics.RecordCredits(string(record.Kind), record.AmountCredits)
	}
}

func (o *Orchestrator) recordGeneration(modelID, status string, elapsed time.Duration) {
	if o.metrics != nil {
		o.metrics.RecordGeneration(modelID, status, elapsed)
	}
}

func validateTask(task *model.Task) error {
	switch {
	case task == nil:
		return fmt.Errorf("%w: task is required", ErrInvalidTask)
	case task.CallerID == "":
		return fmt.Errorf("%w: caller id is required", ErrInvalidTask)
	case task.Kind == "":
		return fmt.Errorf("%w: kind is required", ErrInvalidTask)
	case !task.BudgetTier.IsValid():
		return fmt.Errorf("%w: unknown budget tier %q", ErrInvalidTask, task.BudgetTier)
	case !task.Priority.IsValid():
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidTask, task.Priority)
	case task.RiskProfile != "" && !task.RiskProfile.IsValid():
		return fmt.Errorf("%w: unknown risk profile %q", ErrInvalidTask, task.RiskProfile)
	case task.Timeout < 0:
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidTask)
	}
	return nil
}
