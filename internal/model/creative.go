package model

import (
	"time"
)

// ===== Task Enums =====

// BudgetTier is the caller-selected cost/quality class of a task.
type BudgetTier string

const (
	BudgetTierLow    BudgetTier = "low"
	BudgetTierMedium BudgetTier = "medium"
	BudgetTierHigh   BudgetTier = "high"
)

// String returns the string representation of the tier.
func (t BudgetTier) String() string {
	return string(t)
}

// IsValid checks if the tier is valid.
func (t BudgetTier) IsValid() bool {
	switch t {
	case BudgetTierLow, BudgetTierMedium, BudgetTierHigh:
		return true
	}
	return false
}

// Priority is the scheduling priority of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// String returns the string representation of the priority.
func (p Priority) String() string {
	return string(p)
}

// IsValid checks if the priority is valid.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	}
	return false
}

// RiskProfile selects the sampling temperature used for generation.
type RiskProfile string

const (
	RiskProfileConservative RiskProfile = "conservative"
	RiskProfileModerate     RiskProfile = "moderate"
	RiskProfileAggressive   RiskProfile = "aggressive"
)

// IsValid checks if the risk profile is valid.
func (r RiskProfile) IsValid() bool {
	switch r {
	case RiskProfileConservative, RiskProfileModerate, RiskProfileAggressive:
		return true
	}
	return false
}

// ===== Task =====

// Task is a caller-submitted unit of work. It must not be mutated after submission;
// use Clone to derive a modified copy.
type Task struct {
	CallerID    string         `json:"caller_id"`
	Kind        string         `json:"kind" yaml:"kind"`
	BudgetTier  BudgetTier     `json:"budget_tier" yaml:"budget_tier"`
	Priority    Priority       `json:"priority" yaml:"priority"`
	RiskProfile RiskProfile    `json:"risk_profile,omitempty" yaml:"risk_profile,omitempty"`
	Cacheable   *bool          `json:"cacheable,omitempty" yaml:"cacheable,omitempty"`
	Retryable   bool           `json:"retryable" yaml:"retryable"`
	Timeout     time.Duration  `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Params      map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// IsCacheable reports whether the task may be served from or written to the cache.
// Cacheable defaults to true when unset.
func (t *Task) IsCacheable() bool {
	return t.Cacheable == nil || *t.Cacheable
}

// EffectiveRiskProfile returns the risk profile, defaulting to moderate.
func (t *Task) EffectiveRiskProfile() RiskProfile {
	if t.RiskProfile == "" {
		return RiskProfileModerate
	}
	return t.RiskProfile
}

// Clone returns a shallow copy of the task. Params are shared and must be treated as read-only.
func (t *Task) Clone() *Task {
	c := *t
	if t.Cacheable != nil {
		v := *t.Cacheable
		c.Cacheable = &v
	}
	return &c
}

// ===== Generation =====

// Usage holds token counts reported for a generation.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// TotalTokens returns input plus output tokens.
func (u Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// GenerationRequest is sent to the text-generation backend.
type GenerationRequest struct {
	Prompt       string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
}

// Generation is the backend's answer.
type Generation struct {
	Text    string
	Usage   Usage
	ModelID string
}

// ===== Validation =====

// ValidationResult is the outcome of scoring generated text.
type ValidationResult struct {
	Score  int      `json:"score"`
	Passed bool     `json:"passed"`
	Issues []string `json:"issues"`
}

// ===== Cache =====

// CacheEntry is a previously produced result keyed by fingerprint.
type CacheEntry struct {
	Result     string           `json:"result"`
	Validation ValidationResult `json:"validation"`
	Usage      Usage            `json:"usage"`
	ModelID    string           `json:"model_id,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	ExpiresAt  time.Time        `json:"expires_at"`
}

// IsLive reports whether the entry is still servable at now.
func (e *CacheEntry) IsLive(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// ===== Cost =====

// CostKind is the dispatch path a charge was computed from.
type CostKind string

const (
	CostKindDirect   CostKind = "direct"
	CostKindCacheHit CostKind = "cache_hit"
	CostKindBatch    CostKind = "batch"
)

// CostRecord is an append-only audit fact for one settled dispatch.
type CostRecord struct {
	DispatchID             string    `json:"dispatch_id" gorm:"primaryKey"`
	CallerID               string    `json:"caller_id" gorm:"index;not null"`
	TaskKind               string    `json:"task_kind"`
	AmountUSD              float64   `json:"amount_usd"`
	AmountCredits          int64     `json:"amount_credits"`
	Kind                   CostKind  `json:"kind" gorm:"not null"`
	CachedDiscountApplied  bool      `json:"cached_discount_applied"`
	QualityDiscountApplied bool      `json:"quality_discount_applied"`
	BalanceAfter           int64     `json:"balance_after"`
	CreatedAt              time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (CostRecord) TableName() string {
	return "cost_records"
}

// ===== Dispatch =====

// DispatchStatus is the externally visible status of a dispatch.
type DispatchStatus string

const (
	DispatchStatusDone   DispatchStatus = "done"
	DispatchStatusQueued DispatchStatus = "queued"
	DispatchStatusFailed DispatchStatus = "failed"
)

// DispatchState is a step of the per-dispatch state machine.
type DispatchState string

const (
	StatePreflight     DispatchState = "PREFLIGHT"
	StateCacheCheck    DispatchState = "CACHE_CHECK"
	StateBatchOrDirect DispatchState = "BATCH_OR_DIRECT"
	StateGenerating    DispatchState = "GENERATING"
	StateValidating    DispatchState = "VALIDATING"
	StateSettling      DispatchState = "SETTLING"
	StateCaching       DispatchState = "CACHING"
	StateDone          DispatchState = "DONE"
	StateFailed        DispatchState = "FAILED"
)

// DispatchResult is returned for every dispatch, including queued ones.
type DispatchResult struct {
	DispatchID  string            `json:"dispatch_id"`
	CallerID    string            `json:"caller_id"`
	Status      DispatchStatus    `json:"status"`
	Path        CostKind          `json:"path,omitempty"`
	Fingerprint string            `json:"fingerprint,omitempty"`
	Text        string            `json:"text,omitempty"`
	Validation  *ValidationResult `json:"validation,omitempty"`
	Usage       *Usage            `json:"usage,omitempty"`
	ModelID     string            `json:"model_id,omitempty"`
	Cost        *CostRecord       `json:"cost,omitempty"`
	Retryable   bool              `json:"retryable"`
	Trace       []DispatchState   `json:"trace"`
	Error       string            `json:"error,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// QueuedAck acknowledges a task accepted into the batch queue.
type QueuedAck struct {
	DispatchID string    `json:"dispatch_id"`
	Position   int       `json:"position"`
	QueuedAt   time.Time `json:"queued_at"`
}

// ===== Balance =====

// CallerBalance is the SQL row holding a caller's prepaid credits.
type CallerBalance struct {
	CallerID  string    `json:"caller_id" gorm:"primaryKey"`
	Credits   int64     `json:"credits" gorm:"not null;default:0;check:credits >= 0"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (CallerBalance) TableName() string {
	return "caller_balances"
}
