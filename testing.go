package ringrt

import "sync"

// ScriptedFuture is a test double implementing Future whose Poll
// sequence is fixed in advance: it returns each entry of Steps in
// order, one per call, and tracks how many times it was polled for
// assertions. Useful for exercising Runtime scheduling without a real
// kernel-ring operation backing every tick.
type ScriptedFuture struct {
	Steps []PollResult

	mu       sync.Mutex
	pollCall int
}

// NewScriptedFuture creates a ScriptedFuture that returns Pending for
// every call except the last, which returns final.
func NewScriptedFuture(pendingTicks int, final PollResult) *ScriptedFuture {
	steps := make([]PollResult, 0, pendingTicks+1)
	for i := 0; i < pendingTicks; i++ {
		steps = append(steps, Pending)
	}
	steps = append(steps, final)
	return &ScriptedFuture{Steps: steps}
}

// Poll implements Future.
func (f *ScriptedFuture) Poll(ops *Ops) PollResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pollCall >= len(f.Steps) {
		return Done()
	}
	step := f.Steps[f.pollCall]
	f.pollCall++
	return step
}

// PollCount returns how many times Poll has been called.
func (f *ScriptedFuture) PollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pollCall
}

// MockStepFuture is a test double implementing StepFuture with a fixed
// number of Pending polls before resolving to Value or Err.
type MockStepFuture struct {
	PendingTicks int
	Value        int32
	Err          error

	mu       sync.Mutex
	pollCall int
}

// Poll implements StepFuture.
func (f *MockStepFuture) Poll(ops *Ops) (bool, int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pollCall < f.PendingTicks {
		f.pollCall++
		return false, 0, nil
	}
	f.pollCall++
	return true, f.Value, f.Err
}

// PollCount returns how many times Poll has been called.
func (f *MockStepFuture) PollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pollCall
}

// Compile-time interface checks.
var (
	_ Future     = (*ScriptedFuture)(nil)
	_ StepFuture = (*MockStepFuture)(nil)
)
