package config

import "time"

// LoopConfig configures the scheduling loop.
type LoopConfig struct {
	// IterationInterval is the delay between ticks while a goal is active.
	IterationInterval time.Duration `json:"iteration_interval" yaml:"iteration_interval"`

	// IdleInterval is the delay between ticks when the queue is empty.
	IdleInterval time.Duration `json:"idle_interval" yaml:"idle_interval"`

	// BackoffInterval is the delay applied after a planning failure.
	BackoffInterval time.Duration `json:"backoff_interval" yaml:"backoff_interval"`

	// RetryDelay is how far into the future a requeued goal becomes
	// eligible again. Fixed rather than exponential; kept configurable.
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay"`

	// MaxConsecutiveFailures is the tool-failure threshold after which
	// the active goal is escalated to terminal failed status.
	MaxConsecutiveFailures int `json:"max_consecutive_failures" yaml:"max_consecutive_failures"`

	// RetrievalK is how many context snippets to request per tick.
	RetrievalK int `json:"retrieval_k" yaml:"retrieval_k"`

	// ContextTokenBudget bounds the estimated token count of retrieved
	// snippets included in the planner prompt.
	ContextTokenBudget int `json:"context_token_budget" yaml:"context_token_budget"`

	// IndexOutcomes controls whether completions and action results are
	// written back into the retrieval index.
	IndexOutcomes bool `json:"index_outcomes" yaml:"index_outcomes"`

	// TickTimeout bounds a single tick; a collaborator that hangs past it
	// resolves to a failure instead of stalling the loop.
	TickTimeout time.Duration `json:"tick_timeout" yaml:"tick_timeout"`
}

// DefaultLoopConfig returns sensible defaults.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		IterationInterval:      15 * time.Second,
		IdleInterval:           60 * time.Second,
		BackoffInterval:        45 * time.Second,
		RetryDelay:             60 * time.Second,
		MaxConsecutiveFailures: 3,
		RetrievalK:             4,
		ContextTokenBudget:     1500,
		IndexOutcomes:          true,
		TickTimeout:            2 * time.Minute,
	}
}
