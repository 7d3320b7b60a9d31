package goal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"goalpilot/internal/logging"
	"goalpilot/internal/notify"
	"goalpilot/internal/storage"

	"github.com/google/uuid"
)

// snapshotKey is the storage key under which the aggregate snapshot lives.
const snapshotKey = "goal/snapshot"

// StoreConfig bounds and tunes the goal store.
type StoreConfig struct {
	// HistoryLimit bounds the completed/failed history; oldest evicted first.
	HistoryLimit int

	// RetryDelay is how far into the future a requeued goal becomes
	// eligible again.
	RetryDelay time.Duration
}

// DefaultStoreConfig returns sensible defaults.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		HistoryLimit: 50,
		RetryDelay:   60 * time.Second,
	}
}

// Store owns the goal state machine. All mutations happen under its lock
// and are persisted through the storage port before returning; persistence
// failures are logged and the in-memory mutation stands.
type Store struct {
	mu          sync.Mutex
	port        storage.Port
	broadcaster *notify.Broadcaster
	cfg         StoreConfig
	state       *Snapshot
	initialized bool

	// now is swappable in tests.
	now func() time.Time
}

// NewStore creates a Store over the given port. broadcaster may be nil.
func NewStore(port storage.Port, broadcaster *notify.Broadcaster, cfg StoreConfig) *Store {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultStoreConfig().HistoryLimit
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultStoreConfig().RetryDelay
	}
	return &Store{
		port:        port,
		broadcaster: broadcaster,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Init hydrates the store from the persisted snapshot, or creates an
// empty base state on first boot. Idempotent: subsequent calls are no-ops.
func (s *Store) Init(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return s.cloneSnapshotLocked(), nil
	}

	blob, ok, err := s.port.Get(ctx, snapshotKey)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	if !ok {
		s.state = &Snapshot{Queue: []Goal{}, History: []Goal{}}
		logging.Goal("initialized empty goal state")
	} else {
		var snap Snapshot
		if err := json.Unmarshal(blob, &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		if snap.Queue == nil {
			snap.Queue = []Goal{}
		}
		if snap.History == nil {
			snap.History = []Goal{}
		}
		s.state = &snap
		logging.Goal("hydrated goal state: queue=%d history=%d active=%v",
			len(snap.Queue), len(snap.History), snap.CurrentGoal != nil)
	}

	s.initialized = true
	return s.cloneSnapshotLocked(), nil
}

// EnqueueText enqueues a plain-string payload: the text becomes both
// title and prompt.
func (s *Store) EnqueueText(ctx context.Context, text string) (*Goal, error) {
	return s.Enqueue(ctx, EnqueueRequest{Text: text})
}

// Enqueue normalizes and validates the request, assigns a fresh id and
// appends the goal to the queue.
func (s *Store) Enqueue(ctx context.Context, req EnqueueRequest) (*Goal, error) {
	title := strings.TrimSpace(req.Title)
	prompt := strings.TrimSpace(req.Prompt)
	text := strings.TrimSpace(req.Text)

	if title == "" {
		title = firstNonEmpty(prompt, text)
	}
	if prompt == "" {
		prompt = firstNonEmpty(title, text)
	}
	if title == "" && prompt == "" {
		return nil, fmt.Errorf("%w: one of title, prompt or text is required", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInitLocked(); err != nil {
		return nil, err
	}

	now := s.now()
	dueAt := now
	if req.DueAt != nil {
		dueAt = *req.DueAt
	}

	channel := req.Channel
	if channel == "" {
		channel = "manual"
	}

	g := Goal{
		ID:              uuid.New().String(),
		Status:          StatusQueued,
		Title:           title,
		Prompt:          prompt,
		Metadata:        req.Metadata,
		Context:         req.Context,
		ExpectedOutcome: req.ExpectedOutcome,
		Channel:         channel,
		CreatedAt:       now,
		UpdatedAt:       now,
		DueAt:           dueAt,
		RunCount:        0,
	}

	s.state.Queue = append(s.state.Queue, g)
	s.persistLocked(ctx)
	s.broadcastLocked("goal-enqueued")

	logging.Goal("enqueued goal %s: %q (channel=%s)", g.ID, g.Title, g.Channel)
	return g.clone(), nil
}

// PullNextGoal returns the active goal, activating the due queued goal
// with the smallest DueAt if none is active. Returns nil when nothing is
// due. Idempotent while a goal remains active.
func (s *Store) PullNextGoal(ctx context.Context) (*Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInitLocked(); err != nil {
		return nil, err
	}

	if s.state.CurrentGoal != nil {
		return s.state.CurrentGoal.clone(), nil
	}

	now := s.now()
	best := -1
	for i := range s.state.Queue {
		g := &s.state.Queue[i]
		if g.DueAt.After(now) {
			continue
		}
		if best == -1 || g.DueAt.Before(s.state.Queue[best].DueAt) {
			best = i
		}
	}
	if best == -1 {
		return nil, nil
	}

	g := s.state.Queue[best]
	s.state.Queue = append(s.state.Queue[:best], s.state.Queue[best+1:]...)

	g.Status = StatusActive
	g.RunCount++
	g.UpdatedAt = now
	s.state.CurrentGoal = &g
	s.state.Meta.TotalRuns++
	s.state.Meta.LastRunAt = now

	s.persistLocked(ctx)
	s.broadcastLocked("goal-started")

	logging.Goal("goal %s started (run %d): %q", g.ID, g.RunCount, g.Title)
	return g.clone(), nil
}

// RecordPlannerDecision appends a planner step to the active goal.
// If the active goal has since changed this is a benign race: the call
// logs and returns without error.
func (s *Store) RecordPlannerDecision(ctx context.Context, dec PlannerDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInitLocked(); err != nil {
		return err
	}

	cur := s.state.CurrentGoal
	if cur == nil || cur.ID != dec.GoalID {
		logging.GoalDebug("planner decision for %s ignored: active goal changed", dec.GoalID)
		return nil
	}

	payload := map[string]interface{}{
		"action":    dec.Action,
		"reasoning": dec.Reasoning,
	}
	if dec.Raw != "" {
		payload["raw"] = dec.Raw
	}
	s.appendStepLocked(cur, StepPlanner, payload)
	s.persistLocked(ctx)
	return nil
}

// RecordActionResult appends an action step to the active goal, with the
// same benign-race rule as RecordPlannerDecision.
func (s *Store) RecordActionResult(ctx context.Context, res ActionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInitLocked(); err != nil {
		return err
	}

	cur := s.state.CurrentGoal
	if cur == nil || cur.ID != res.GoalID {
		logging.GoalDebug("action result for %s ignored: active goal changed", res.GoalID)
		return nil
	}

	payload := map[string]interface{}{
		"action": res.Action,
	}
	if res.Result != nil {
		payload["result"] = res.Result
	}
	if res.Error != "" {
		payload["error"] = res.Error
		// Tool failures feed the escalation counter; the goal stays
		// active for another attempt on the next tick.
		s.state.Meta.ConsecutiveFailures++
		s.state.Meta.LastFailure = res.Error
	}
	s.appendStepLocked(cur, StepAction, payload)
	s.persistLocked(ctx)
	return nil
}

// RecordFailure increments the consecutive-failure counter and either
// requeues the active goal with a retry delay or moves it to history as
// terminally failed.
func (s *Store) RecordFailure(ctx context.Context, f Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInitLocked(); err != nil {
		return err
	}

	if f.CountTowardEscalation {
		s.state.Meta.ConsecutiveFailures++
	}
	s.state.Meta.LastFailure = f.Err

	cur := s.state.CurrentGoal
	if cur == nil || cur.ID != f.GoalID {
		logging.GoalDebug("failure for %s recorded against meta only: active goal changed", f.GoalID)
		s.persistLocked(ctx)
		return nil
	}

	now := s.now()
	cur.UpdatedAt = now

	if f.Requeue {
		cur.Status = StatusQueued
		cur.DueAt = now.Add(s.cfg.RetryDelay)
		s.state.Queue = append(s.state.Queue, *cur)
		s.state.CurrentGoal = nil
		s.persistLocked(ctx)
		s.broadcastLocked("goal-requeued")
		logging.Goal("goal %s requeued after failure (due %s): %s", cur.ID, cur.DueAt.Format(time.RFC3339), f.Err)
		return nil
	}

	cur.Status = StatusFailed
	cur.Result = f.Err
	cur.Summary = fmt.Sprintf("failed after %d run(s): %s", cur.RunCount, f.Err)
	s.pushHistoryLocked(*cur)
	s.state.CurrentGoal = nil
	s.persistLocked(ctx)
	s.broadcastLocked("goal-failed")
	logging.Goal("goal %s failed terminally: %s", cur.ID, f.Err)
	return nil
}

// CompleteGoal marks the active goal completed and moves it to history.
// Resets the consecutive-failure counter.
func (s *Store) CompleteGoal(ctx context.Context, goalID, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInitLocked(); err != nil {
		return err
	}

	cur := s.state.CurrentGoal
	if cur == nil || cur.ID != goalID {
		logging.GoalDebug("completion for %s ignored: active goal changed", goalID)
		return nil
	}

	now := s.now()
	cur.Status = StatusCompleted
	cur.Result = result
	cur.Summary = fmt.Sprintf("completed after %d run(s)", cur.RunCount)
	cur.UpdatedAt = now

	s.state.Meta.ConsecutiveFailures = 0
	s.state.Meta.CompletedGoals++

	s.pushHistoryLocked(*cur)
	s.state.CurrentGoal = nil
	s.persistLocked(ctx)
	s.broadcastLocked("goal-completed")
	logging.Goal("goal %s completed: %q", goalID, result)
	return nil
}

// ResetFailureCount clears the consecutive-failure counter without
// touching any goal. Used after a successful action settles.
func (s *Store) ResetFailureCount(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInitLocked(); err != nil {
		return err
	}
	if s.state.Meta.ConsecutiveFailures == 0 {
		return nil
	}
	s.state.Meta.ConsecutiveFailures = 0
	s.persistLocked(ctx)
	return nil
}

// Snapshot returns a deep, independent copy of the current state.
func (s *Store) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return &Snapshot{Queue: []Goal{}, History: []Goal{}}
	}
	return s.cloneSnapshotLocked()
}

// Meta returns a copy of the run metadata.
func (s *Store) Meta() Meta {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return Meta{}
	}
	return s.state.Meta
}

// SetClock overrides the time source. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// --- internals (callers hold s.mu) ---

func (s *Store) requireInitLocked() error {
	if !s.initialized {
		return fmt.Errorf("goal store not initialized")
	}
	return nil
}

func (s *Store) appendStepLocked(g *Goal, t StepType, payload map[string]interface{}) {
	g.Steps = append(g.Steps, Step{
		Type:      t,
		Payload:   payload,
		Timestamp: s.now(),
	})
	g.UpdatedAt = s.now()
}

func (s *Store) pushHistoryLocked(g Goal) {
	s.state.History = append(s.state.History, g)
	if over := len(s.state.History) - s.cfg.HistoryLimit; over > 0 {
		s.state.History = s.state.History[over:]
	}
}

// persistLocked writes the snapshot through the port. A persistence error
// is logged and swallowed: state and durable copy may diverge until the
// next successful write.
func (s *Store) persistLocked(ctx context.Context) {
	blob, err := json.Marshal(s.state)
	if err != nil {
		logging.Get(logging.CategoryGoal).Error("marshal snapshot: %v", err)
		return
	}
	if err := s.port.Set(ctx, snapshotKey, blob); err != nil {
		logging.Get(logging.CategoryGoal).Error("persist snapshot: %v", err)
	}
}

func (s *Store) broadcastLocked(reason string) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Broadcast(notify.Event{
		Reason:  reason,
		Payload: s.cloneSnapshotLocked(),
	})
}

func (s *Store) cloneSnapshotLocked() *Snapshot {
	out := &Snapshot{
		CurrentGoal: s.state.CurrentGoal.clone(),
		Queue:       make([]Goal, len(s.state.Queue)),
		History:     make([]Goal, len(s.state.History)),
		Meta:        s.state.Meta,
	}
	for i := range s.state.Queue {
		out.Queue[i] = *s.state.Queue[i].clone()
	}
	for i := range s.state.History {
		out.History[i] = *s.state.History[i].clone()
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
