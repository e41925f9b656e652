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
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binkynet/LocalGPIO/model"
)

func TestDueRelativeToStart(t *testing.T) {
	clk := clock.NewMock()
	s := NewState(5*time.Second, RelativeToLastExecutionStart)
	assert.True(t, s.IsDue(clk.Now()), "never executed")

	start := clk.Now()
	require.True(t, s.TryBegin(start))
	clk.Add(time.Second)
	s.End(clk.Now())
	assert.Equal(t, 1, s.Snapshot().CycleCount)

	assert.False(t, s.IsDue(start.Add(3*time.Second)))
	assert.True(t, s.IsDue(start.Add(5*time.Second)))
	assert.True(t, s.IsDue(start.Add(6*time.Second)))
	assert.Equal(t, start.Add(5*time.Second), s.NextDue())

	status, err := Guard(clk, s, func() bool { return true }, func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, status)
	assert.Equal(t, 2, s.Snapshot().CycleCount)
}

func TestDueRelativeToEnd(t *testing.T) {
	clk := clock.NewMock()
	s := NewState(5*time.Second, RelativeToLastExecutionEnd)

	start := clk.Now()
	require.True(t, s.TryBegin(start))
	assert.False(t, s.IsDue(start.Add(10*time.Second)), "busy is never due")
	s.End(start.Add(2 * time.Second))

	assert.False(t, s.IsDue(start.Add(6*time.Second)))
	assert.True(t, s.IsDue(start.Add(7*time.Second)))
}

func TestBusyGuard(t *testing.T) {
	clk := clock.NewMock()
	s := NewState(0, RelativeToLastExecutionStart)
	assert.Equal(t, DefaultPeriod, s.Period())

	require.True(t, s.TryBegin(clk.Now()))
	assert.True(t, s.IsBusy())
	assert.False(t, s.TryBegin(clk.Now()))

	status, err := Guard(clk, s, func() bool { return true }, func() error {
		t.Fatal("must not run while busy")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StatusBusy, status)
	assert.Equal(t, 0, s.Snapshot().CycleCount)

	s.End(clk.Now())
	assert.False(t, s.IsBusy())
	assert.Equal(t, 1, s.Snapshot().CycleCount)
	// End without begin is ignored
	s.End(clk.Now())
	assert.Equal(t, 1, s.Snapshot().CycleCount)
}

func TestGuardNotExecutable(t *testing.T) {
	clk := clock.NewMock()
	s := NewState(time.Second, RelativeToLastExecutionStart)
	status, err := Guard(clk, s, func() bool { return false }, func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StatusNotExecutable, status)
	assert.Equal(t, 0, s.Snapshot().CycleCount)
	assert.True(t, s.Snapshot().LastExecutionStart.IsZero())
}

func TestGuardCountsFailedCycles(t *testing.T) {
	clk := clock.NewMock()
	s := NewState(time.Second, RelativeToLastExecutionStart)
	status, err := Guard(clk, s, func() bool { return true }, func() error { return errors.New("boom") })
	assert.Error(t, err)
	assert.Equal(t, StatusExecuted, status)
	assert.Equal(t, 1, s.Snapshot().CycleCount)
	assert.False(t, s.IsBusy())
}

func TestRestartAndPeriod(t *testing.T) {
	clk := clock.NewMock()
	s := NewState(time.Second, RelativeToLastExecutionStart)
	require.True(t, s.TryBegin(clk.Now()))
	s.End(clk.Now())
	clk.Add(time.Minute)
	s.Restart(clk.Now())

	info := s.Snapshot()
	assert.Equal(t, 0, info.CycleCount)
	assert.Equal(t, clk.Now(), info.StartedAt)
	assert.True(t, s.IsDue(clk.Now()))

	assert.True(t, model.IsOutOfRange(s.SetPeriod(0)))
	require.NoError(t, s.SetPeriod(time.Minute))
	assert.Equal(t, time.Minute, s.Period())

	s.SetMethod(RelativeToLastExecutionEnd)
	assert.Equal(t, RelativeToLastExecutionEnd, s.Method())
	assert.Equal(t, "end", s.Snapshot().Method)
}

func TestParseComputationMethod(t *testing.T) {
	m, err := ParseComputationMethod("")
	require.NoError(t, err)
	assert.Equal(t, RelativeToLastExecutionStart, m)
	m, err = ParseComputationMethod("End")
	require.NoError(t, err)
	assert.Equal(t, RelativeToLastExecutionEnd, m)
	_, err = ParseComputationMethod("middle")
	assert.Error(t, err)
}
