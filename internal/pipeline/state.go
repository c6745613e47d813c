package pipeline

import (
	"errors"
	"sync"
)

type State string

const (
	StateIdle       State = "idle"
	StateEncoding   State = "encoding"
	StateRequesting State = "requesting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

func (s State) String() string {
	return string(s)
}

// InFlight reports whether a flow is between trigger and completion.
func (s State) InFlight() bool {
	return s == StateEncoding || s == StateRequesting
}

var ErrBusy = errors.New("a generation is already in progress")

// tracker guards a single flow at a time and reports transitions to an
// optional hook. The hook runs outside the lock.
type tracker struct {
	mu       sync.Mutex
	state    State
	onChange func(State)
}

func newTracker(onChange func(State)) *tracker {
	return &tracker{state: StateIdle, onChange: onChange}
}

func (t *tracker) current() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// begin moves Idle to Encoding, or fails with ErrBusy while a flow runs.
func (t *tracker) begin() error {
	t.mu.Lock()
	if t.state.InFlight() {
		t.mu.Unlock()
		return ErrBusy
	}
	t.state = StateEncoding
	t.mu.Unlock()

	t.notify(StateEncoding)
	return nil
}

func (t *tracker) set(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
	t.notify(s)
}

// finish records the terminal state and returns to Idle.
func (t *tracker) finish(terminal State) {
	t.set(terminal)
	t.set(StateIdle)
}

func (t *tracker) notify(s State) {
	if t.onChange != nil {
		t.onChange(s)
	}
}
