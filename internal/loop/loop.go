// Package loop implements the scheduler that drives planning/execution
// cycles: pull a goal, gather retrieval context, ask the planner role
// for an action, execute it, record the outcome, re-arm. Exactly one
// tick is in flight at a time; the alarm is only re-armed after the
// previous tick settles.
package loop

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"goalpilot/internal/config"
	"goalpilot/internal/goal"
	"goalpilot/internal/logging"
	"goalpilot/internal/provider"
	"goalpilot/internal/retrieval"
	"goalpilot/internal/tools"
)

// State is the scheduler lifecycle state.
type State int32

const (
	// Stopped - not armed, no tick in flight.
	Stopped State = iota
	// Idle - armed, waiting for work to become due.
	Idle
	// Backoff - armed after a planning failure.
	Backoff
	// Ticking - a cycle is in flight.
	Ticking
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Idle:
		return "idle"
	case Backoff:
		return "backoff"
	case Ticking:
		return "ticking"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// plannerRole is the role the loop plans under.
const plannerRole = "planner"

// ToolExecutor is the collaborator that performs side-effecting actions.
// tools.Registry satisfies it.
type ToolExecutor interface {
	Run(ctx context.Context, name string, args map[string]any) (*tools.Result, error)
	Names() []string
}

// Deps are the collaborators the loop drives. Index may be nil;
// retrieval is best-effort. Alarm may be nil, in which case a TimerAlarm
// is used.
type Deps struct {
	Store  *goal.Store
	Router *provider.Router
	Tools  ToolExecutor
	Index  *retrieval.Index
	Alarm  Alarm

	// MinScore filters retrieval matches below this cosine similarity.
	MinScore float64
}

// Loop is the top-level driver. Start arms an immediate tick; Stop
// disarms future ticks and waits for the in-flight tick to complete
// (in-flight work is never cancelled mid-tick, so the final persisted
// state reflects a fully settled cycle).
type Loop struct {
	store  *goal.Store
	router *provider.Router
	tools  ToolExecutor
	index  *retrieval.Index
	alarm  Alarm
	cfg    config.LoopConfig

	minScore float64

	mu      sync.Mutex
	state   State
	stopped bool
	baseCtx context.Context

	inflight sync.WaitGroup

	// jitterFrac is swappable in tests; returns a value in [0,1).
	jitterFrac func() float64
}

// New creates a Loop. Zero-valued config fields fall back to defaults.
func New(deps Deps, cfg config.LoopConfig) *Loop {
	def := config.DefaultLoopConfig()
	if cfg.IterationInterval <= 0 {
		cfg.IterationInterval = def.IterationInterval
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = def.IdleInterval
	}
	if cfg.BackoffInterval <= 0 {
		cfg.BackoffInterval = def.BackoffInterval
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = def.MaxConsecutiveFailures
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = def.TickTimeout
	}

	alarm := deps.Alarm
	if alarm == nil {
		alarm = NewTimerAlarm()
	}

	return &Loop{
		store:      deps.Store,
		router:     deps.Router,
		tools:      deps.Tools,
		index:      deps.Index,
		alarm:      alarm,
		cfg:        cfg,
		minScore:   deps.MinScore,
		state:      Stopped,
		stopped:    true,
		jitterFrac: rand.Float64,
	}
}

// Start arms an immediate tick. Calling Start on a running loop is a
// no-op.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.stopped {
		return
	}
	l.stopped = false
	l.baseCtx = ctx
	l.state = Ticking
	l.alarm.Arm(0, l.fire)
	logging.Loop("scheduler started")
}

// Stop disarms future ticks and waits for the in-flight tick to settle.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.state = Stopped
	l.alarm.Disarm()
	l.mu.Unlock()

	l.inflight.Wait()
	logging.Loop("scheduler stopped")
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// fire is the alarm callback: run one tick, then re-arm.
func (l *Loop) fire() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.state = Ticking
	l.inflight.Add(1)
	ctx := l.baseCtx
	l.mu.Unlock()

	defer l.inflight.Done()

	tickCtx, cancel := context.WithTimeout(ctx, l.cfg.TickTimeout)
	delay, next := l.tick(tickCtx)
	cancel()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.state = next
	l.alarm.Arm(l.jitter(delay), l.fire)
}

// tick performs one full cycle and returns the base delay until the
// next one plus the state to settle into. No error escapes: every
// collaborator failure is converted into a recorded state transition.
func (l *Loop) tick(ctx context.Context) (time.Duration, State) {
	g, err := l.store.PullNextGoal(ctx)
	if err != nil {
		logging.Get(logging.CategoryLoop).Error("pull next goal: %v", err)
		return l.cfg.IdleInterval, Idle
	}
	if g == nil {
		logging.LoopDebug("no goal due, idling")
		return l.cfg.IdleInterval, Idle
	}

	logging.Loop("tick: goal %s (run %d): %q", g.ID, g.RunCount, g.Title)

	snippets := l.contextSnippets(ctx, g)
	messages := l.buildMessages(g, snippets)

	res, err := l.router.Invoke(ctx, plannerRole, messages, provider.InvokeOptions{ExpectJSON: true})
	if err != nil {
		l.planningFailure(ctx, g, fmt.Sprintf("planner invocation failed: %v", err))
		return l.cfg.BackoffInterval, Backoff
	}
	if res.Action == nil {
		l.planningFailure(ctx, g, "planner produced no parseable action")
		return l.cfg.BackoffInterval, Backoff
	}

	if err := l.store.RecordPlannerDecision(ctx, goal.PlannerDecision{
		GoalID:    g.ID,
		Action:    actionPayload(res.Action),
		Reasoning: res.Text,
		Raw:       res.Raw,
	}); err != nil {
		logging.Get(logging.CategoryLoop).Error("record planner decision: %v", err)
	}

	if res.Action.Name == "complete" {
		l.complete(ctx, g, res.Action)
		return l.cfg.IterationInterval, Idle
	}

	l.execute(ctx, g, res.Action)
	return l.cfg.IterationInterval, Idle
}

// planningFailure requeues the goal with the retry delay. Provider
// failure and malformed output are recoverable: the goal gets another
// attempt after backoff rather than counting toward escalation.
func (l *Loop) planningFailure(ctx context.Context, g *goal.Goal, msg string) {
	logging.Get(logging.CategoryLoop).Warn("goal %s: %s", g.ID, msg)
	if err := l.store.RecordFailure(ctx, goal.Failure{
		GoalID:  g.ID,
		Err:     msg,
		Requeue: true,
	}); err != nil {
		logging.Get(logging.CategoryLoop).Error("record planning failure: %v", err)
	}
}

// complete finishes the goal and optionally indexes a summary of it.
func (l *Loop) complete(ctx context.Context, g *goal.Goal, action *provider.Action) {
	result := stringParam(action.Params, "result")
	if result == "" {
		result = "done"
	}

	if err := l.store.CompleteGoal(ctx, g.ID, result); err != nil {
		logging.Get(logging.CategoryLoop).Error("complete goal %s: %v", g.ID, err)
		return
	}

	l.indexOutcome(ctx, fmt.Sprintf("Goal %q completed: %s", g.Title, result), map[string]string{
		"kind":    "completion",
		"goal_id": g.ID,
	})
}

// execute runs the planned action through the tool executor and records
// the outcome. Tool errors count toward the escalation threshold; past
// it the goal is failed terminally rather than retried forever against
// a broken tool.
func (l *Loop) execute(ctx context.Context, g *goal.Goal, action *provider.Action) {
	out, err := l.tools.Run(ctx, action.Name, action.Params)

	if err != nil {
		errMsg := err.Error()
		if recErr := l.store.RecordActionResult(ctx, goal.ActionResult{
			GoalID: g.ID,
			Action: actionPayload(action),
			Error:  errMsg,
		}); recErr != nil {
			logging.Get(logging.CategoryLoop).Error("record action error: %v", recErr)
		}

		meta := l.store.Meta()
		if meta.ConsecutiveFailures >= l.cfg.MaxConsecutiveFailures {
			logging.Get(logging.CategoryLoop).Warn("goal %s escalated after %d consecutive failures", g.ID, meta.ConsecutiveFailures)
			if recErr := l.store.RecordFailure(ctx, goal.Failure{
				GoalID:  g.ID,
				Err:     fmt.Sprintf("tool %q failed %d consecutive times: %v", action.Name, meta.ConsecutiveFailures, err),
				Requeue: false,
			}); recErr != nil {
				logging.Get(logging.CategoryLoop).Error("record escalation: %v", recErr)
			}
		}
		return
	}

	if recErr := l.store.RecordActionResult(ctx, goal.ActionResult{
		GoalID: g.ID,
		Action: actionPayload(action),
		Result: out.Result,
	}); recErr != nil {
		logging.Get(logging.CategoryLoop).Error("record action result: %v", recErr)
	}
	if err := l.store.ResetFailureCount(ctx); err != nil {
		logging.Get(logging.CategoryLoop).Error("reset failure count: %v", err)
	}

	l.indexOutcome(ctx, fmt.Sprintf("Action %s on goal %q succeeded: %v", action.Name, g.Title, out.Result), map[string]string{
		"kind":    "action",
		"goal_id": g.ID,
		"tool":    action.Name,
	})
}

// contextSnippets queries the retrieval index for historical context,
// trimmed to the configured token budget. Best-effort: any failure
// yields an empty context, never a tick failure.
func (l *Loop) contextSnippets(ctx context.Context, g *goal.Goal) []string {
	if l.index == nil || l.cfg.RetrievalK <= 0 {
		return nil
	}

	matches, err := l.index.Query(ctx, g.Prompt, retrieval.QueryOptions{
		K:        l.cfg.RetrievalK,
		MinScore: l.minScore,
	})
	if err != nil {
		logging.Get(logging.CategoryLoop).Warn("retrieval query failed, planning without context: %v", err)
		return nil
	}

	var snippets []string
	budget := l.cfg.ContextTokenBudget
	used := 0
	for _, m := range matches {
		cost := (len(m.Doc.Text) + 3) / 4
		if budget > 0 && used+cost > budget {
			break
		}
		used += cost
		snippets = append(snippets, m.Doc.Text)
	}
	return snippets
}

// buildMessages assembles the planner conversation: a system instruction
// carrying the goal, retrieved context and the action vocabulary, then
// the goal prompt as the user turn.
func (l *Loop) buildMessages(g *goal.Goal, snippets []string) []provider.Message {
	var sb strings.Builder
	sb.WriteString("You are an autonomous goal-execution planner.\n")
	fmt.Fprintf(&sb, "Current goal: %s\n", g.Title)
	if g.Context != "" {
		fmt.Fprintf(&sb, "Goal context: %s\n", g.Context)
	}
	if g.ExpectedOutcome != "" {
		fmt.Fprintf(&sb, "Expected outcome: %s\n", g.ExpectedOutcome)
	}

	names := l.tools.Names()
	fmt.Fprintf(&sb, "Available actions: %s, complete\n", strings.Join(names, ", "))
	sb.WriteString(`Reply with a JSON object {"action": {"name": ..., "params": {...}}}. ` +
		"Use the \"complete\" action with a \"result\" param when the goal is done.\n")

	if len(snippets) > 0 {
		sb.WriteString("Relevant history:\n")
		for _, s := range snippets {
			fmt.Fprintf(&sb, "- %s\n", s)
		}
	}

	return []provider.Message{
		{Role: "system", Content: sb.String()},
		{Role: "user", Content: g.Prompt},
	}
}

// indexOutcome writes a summary document back into the retrieval index
// when outcome indexing is enabled. Best-effort.
func (l *Loop) indexOutcome(ctx context.Context, text string, meta map[string]string) {
	if l.index == nil || !l.cfg.IndexOutcomes {
		return
	}
	if _, err := l.index.Add(ctx, text, meta); err != nil {
		logging.Get(logging.CategoryLoop).Warn("index outcome: %v", err)
	}
}

// jitter adds random(0, min(delay/10, 1s)) to delay, spreading re-arm
// times without materially delaying recovery.
func (l *Loop) jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	span := d / 10
	if span > time.Second {
		span = time.Second
	}
	return d + time.Duration(l.jitterFrac()*float64(span))
}

// actionPayload renders an action as the JSON-shaped map stored in step
// logs.
func actionPayload(a *provider.Action) map[string]interface{} {
	payload := map[string]interface{}{"name": a.Name}
	if len(a.Params) > 0 {
		params := make(map[string]interface{}, len(a.Params))
		for k, v := range a.Params {
			params[k] = v
		}
		payload["params"] = params
	}
	return payload
}

func stringParam(params map[string]interface{}, key string) string {
	if params == nil {
		return ""
	}
	if s, ok := params[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
