package loop

import (
	"sync"
	"time"
)

// Alarm is the timer abstraction the loop re-arms itself through. Arm
// replaces any pending firing; Disarm cancels it. The indirection exists
// so hosts with durable alarm primitives can substitute their own and so
// tests can drive ticks deterministically.
type Alarm interface {
	Arm(d time.Duration, fire func())
	Disarm()
}

// TimerAlarm backs Alarm with time.AfterFunc.
type TimerAlarm struct {
	mu    sync.Mutex
	timer *time.Timer
}

// NewTimerAlarm creates a disarmed TimerAlarm.
func NewTimerAlarm() *TimerAlarm {
	return &TimerAlarm{}
}

// Arm schedules fire after d, replacing any pending firing.
func (a *TimerAlarm) Arm(d time.Duration, fire func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(d, fire)
}

// Disarm cancels the pending firing, if any.
func (a *TimerAlarm) Disarm() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

var _ Alarm = (*TimerAlarm)(nil)
