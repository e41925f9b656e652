// Copyright 2024 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

package cyclic

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/binkynet/LocalGPIO/model"
)

const (
	// DefaultPeriod between two executions of a cyclic component.
	DefaultPeriod = time.Second * 5
)

// ComputationMethod selects the reference point of the next due time.
type ComputationMethod uint8

const (
	// RelativeToLastExecutionStart makes a component due one period after
	// its last execution started.
	RelativeToLastExecutionStart ComputationMethod = iota
	// RelativeToLastExecutionEnd makes a component due one period after
	// its last execution ended.
	RelativeToLastExecutionEnd
)

// String returns "start" or "end".
func (m ComputationMethod) String() string {
	if m == RelativeToLastExecutionEnd {
		return "end"
	}
	return "start"
}

// ParseComputationMethod parses "start" or "end".
// An empty string yields RelativeToLastExecutionStart.
func ParseComputationMethod(s string) (ComputationMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "start":
		return RelativeToLastExecutionStart, nil
	case "end":
		return RelativeToLastExecutionEnd, nil
	default:
		return RelativeToLastExecutionStart, errors.Errorf("unknown computation method '%s'", s)
	}
}

// Status is the outcome of a single Execute call.
type Status uint8

const (
	// StatusExecuted means the component ran a full cycle.
	StatusExecuted Status = iota
	// StatusNotExecutable means the component was not ready to execute.
	StatusNotExecutable
	// StatusBusy means a previous execution was still in progress.
	StatusBusy
)

// String returns the name of the status.
func (s Status) String() string {
	switch s {
	case StatusExecuted:
		return "executed"
	case StatusNotExecutable:
		return "not-executable"
	case StatusBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Executable is a component that can be run periodically.
type Executable interface {
	// ID returns the unique identifier of the component.
	ID() string
	// Cycle returns the cyclic state of the component.
	Cycle() *State
	// CanExecute returns true if the component is ready for execution.
	CanExecute() bool
	// Execute runs a single cycle.
	Execute(ctx context.Context) (Status, error)
}

// Info is a snapshot of a cyclic State.
type Info struct {
	Period             time.Duration     `json:"period"`
	ComputationMethod  ComputationMethod `json:"-"`
	Method             string            `json:"method"`
	StartedAt          time.Time         `json:"started_at"`
	LastExecutionStart time.Time         `json:"last_execution_start"`
	LastExecutionEnd   time.Time         `json:"last_execution_end"`
	CycleCount         int               `json:"cycle_count"`
	Busy               bool              `json:"busy"`
}

// State holds the scheduling state of a cyclic component.
type State struct {
	mutex              sync.Mutex
	period             time.Duration
	method             ComputationMethod
	startedAt          time.Time
	lastExecutionStart time.Time
	lastExecutionEnd   time.Time
	cycleCount         int
	busy               bool
}

// NewState creates a state with the given period.
// A non-positive period selects DefaultPeriod.
func NewState(period time.Duration, method ComputationMethod) *State {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &State{
		period: period,
		method: method,
	}
}

// Period returns the time between two executions.
func (s *State) Period() time.Duration {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.period
}

// SetPeriod changes the time between two executions.
func (s *State) SetPeriod(period time.Duration) error {
	if period <= 0 {
		return model.OutOfRange("period must be positive, got %s", period)
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.period = period
	return nil
}

// Method returns the computation method of the next due time.
func (s *State) Method() ComputationMethod {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.method
}

// SetMethod changes the computation method of the next due time.
func (s *State) SetMethod(method ComputationMethod) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.method = method
}

// Restart resets the cycle count and execution times.
func (s *State) Restart(now time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.startedAt = now
	s.lastExecutionStart = time.Time{}
	s.lastExecutionEnd = time.Time{}
	s.cycleCount = 0
}

// nextDue returns the time the next execution is due.
// A zero time means due immediately.
// Caller must hold the lock.
func (s *State) nextDue() time.Time {
	if s.lastExecutionStart.IsZero() {
		return time.Time{}
	}
	if s.method == RelativeToLastExecutionEnd {
		if s.lastExecutionEnd.IsZero() {
			return time.Time{}
		}
		return s.lastExecutionEnd.Add(s.period)
	}
	return s.lastExecutionStart.Add(s.period)
}

// NextDue returns the time the next execution is due.
// A zero time means the component has never executed.
func (s *State) NextDue() time.Time {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.nextDue()
}

// IsDue returns true if an execution is due at the given time.
func (s *State) IsDue(now time.Time) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.busy && s.method == RelativeToLastExecutionEnd {
		return false
	}
	next := s.nextDue()
	return next.IsZero() || !now.Before(next)
}

// IsBusy returns true while an execution is in progress.
func (s *State) IsBusy() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.busy
}

// TryBegin marks the start of an execution.
// Returns false, without changing anything, when an execution is in progress.
func (s *State) TryBegin(now time.Time) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	if s.startedAt.IsZero() {
		s.startedAt = now
	}
	s.lastExecutionStart = now
	return true
}

// End marks the end of an execution started with TryBegin.
func (s *State) End(now time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.busy {
		return
	}
	s.busy = false
	s.lastExecutionEnd = now
	s.cycleCount++
}

// Snapshot returns a copy of the state.
func (s *State) Snapshot() Info {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return Info{
		Period:             s.period,
		ComputationMethod:  s.method,
		Method:             s.method.String(),
		StartedAt:          s.startedAt,
		LastExecutionStart: s.lastExecutionStart,
		LastExecutionEnd:   s.lastExecutionEnd,
		CycleCount:         s.cycleCount,
		Busy:               s.busy,
	}
}
