// Package goal implements the durable goal store: a queue of
// natural-language goals, the single active goal, bounded history and run
// metadata, persisted through the storage port after every mutation.
package goal

import (
	"errors"
	"time"
)

// Status represents the lifecycle state of a goal.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// StepType distinguishes the two kinds of step log entries.
type StepType string

const (
	StepPlanner StepType = "planner" // a planner decision
	StepAction  StepType = "action"  // an executed action and its outcome
)

// Step is one append-only entry in a goal's execution log.
type Step struct {
	Type      StepType               `json:"type"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Goal is a unit of natural-language work.
type Goal struct {
	ID              string            `json:"id"`
	Status          Status            `json:"status"`
	Title           string            `json:"title"`
	Prompt          string            `json:"prompt"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Context         string            `json:"context,omitempty"`
	ExpectedOutcome string            `json:"expected_outcome,omitempty"`
	Channel         string            `json:"channel,omitempty"`
	Steps           []Step            `json:"steps,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	DueAt           time.Time         `json:"due_at"`
	RunCount        int               `json:"run_count"`
	Result          string            `json:"result,omitempty"`
	Summary         string            `json:"summary,omitempty"`
}

// Meta tracks run statistics across all goals.
type Meta struct {
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalRuns           int       `json:"total_runs"`
	CompletedGoals      int       `json:"completed_goals"`
	LastRunAt           time.Time `json:"last_run_at,omitempty"`
	LastFailure         string    `json:"last_failure,omitempty"`
}

// Snapshot is the aggregate root persisted as a single blob.
type Snapshot struct {
	CurrentGoal *Goal  `json:"current_goal,omitempty"`
	Queue       []Goal `json:"queue"`
	History     []Goal `json:"history"`
	Meta        Meta   `json:"meta"`
}

// ErrValidation is returned for malformed enqueue payloads.
var ErrValidation = errors.New("goal: invalid payload")

// EnqueueRequest is the structured enqueue surface. At least one of
// Title, Prompt or Text must be non-empty; Prompt defaults to Title
// (or Text) when absent.
type EnqueueRequest struct {
	Title           string            `json:"title,omitempty"`
	Prompt          string            `json:"prompt,omitempty"`
	Text            string            `json:"text,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Channel         string            `json:"channel,omitempty"`
	Context         string            `json:"context,omitempty"`
	ExpectedOutcome string            `json:"expected_outcome,omitempty"`
	DueAt           *time.Time        `json:"due_at,omitempty"`
}

// PlannerDecision records what the planner chose for a goal.
type PlannerDecision struct {
	GoalID    string
	Action    map[string]interface{}
	Reasoning string
	Raw       string
}

// ActionResult records the outcome of one executed action.
type ActionResult struct {
	GoalID string
	Action map[string]interface{}
	Result interface{}
	Error  string
}

// Failure describes a failed planning or execution attempt.
type Failure struct {
	GoalID  string
	Err     string
	Requeue bool
	// CountTowardEscalation advances Meta.ConsecutiveFailures. Planning
	// failures leave it false; only tool failures feed the threshold.
	CountTowardEscalation bool
}

// clone returns a deep copy of the goal.
func (g *Goal) clone() *Goal {
	if g == nil {
		return nil
	}
	out := *g
	if g.Metadata != nil {
		out.Metadata = make(map[string]string, len(g.Metadata))
		for k, v := range g.Metadata {
			out.Metadata[k] = v
		}
	}
	if g.Steps != nil {
		out.Steps = make([]Step, len(g.Steps))
		for i, s := range g.Steps {
			out.Steps[i] = s.clone()
		}
	}
	return &out
}

func (s Step) clone() Step {
	out := s
	if s.Payload != nil {
		out.Payload = clonePayload(s.Payload)
	}
	return out
}

// clonePayload deep-copies the JSON-shaped payload maps used in steps.
func clonePayload(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		switch vv := v.(type) {
		case map[string]interface{}:
			out[k] = clonePayload(vv)
		case []interface{}:
			cp := make([]interface{}, len(vv))
			for i, e := range vv {
				if em, ok := e.(map[string]interface{}); ok {
					cp[i] = clonePayload(em)
				} else {
					cp[i] = e
				}
			}
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}
