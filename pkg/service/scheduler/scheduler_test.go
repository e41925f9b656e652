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

package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binkynet/LocalGPIO/model"
	"github.com/binkynet/LocalGPIO/pkg/service/cyclic"
)

type testTask struct {
	id         string
	clock      clock.Clock
	cycle      *cyclic.State
	executable atomic.Bool
	calls      atomic.Int32
	block      chan struct{}
	err        error
	panics     bool
}

func newTestTask(id string, clk clock.Clock, period time.Duration) *testTask {
	t := &testTask{
		id:    id,
		clock: clk,
		cycle: cyclic.NewState(period, cyclic.RelativeToLastExecutionStart),
	}
	t.executable.Store(true)
	return t
}

func (t *testTask) ID() string           { return t.id }
func (t *testTask) Cycle() *cyclic.State { return t.cycle }
func (t *testTask) CanExecute() bool     { return t.executable.Load() }

func (t *testTask) Execute(ctx context.Context) (cyclic.Status, error) {
	return cyclic.Guard(t.clock, t.cycle, t.CanExecute, func() error {
		t.calls.Add(1)
		if t.block != nil {
			<-t.block
		}
		if t.panics {
			panic("boom")
		}
		return t.err
	})
}

func newTestScheduler(clk clock.Clock, workers int) *Scheduler {
	return New(Config{TickInterval: time.Second, Workers: workers}, Dependencies{
		Log:   zerolog.Nop(),
		Clock: clk,
	})
}

func TestTickExecutesDueTasks(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	s := newTestScheduler(clk, 4)
	task := newTestTask("a", clk, 5*time.Second)
	require.NoError(t, s.Add(task))
	assert.True(t, model.IsInvalidState(s.Add(task)))

	// Never executed, so due immediately
	assert.Equal(t, 1, s.Tick(ctx))
	s.Wait()
	assert.Equal(t, int32(1), task.calls.Load())
	assert.Equal(t, 1, task.Cycle().Snapshot().CycleCount)

	clk.Add(3 * time.Second)
	assert.Equal(t, 0, s.Tick(ctx))
	clk.Add(3 * time.Second)
	assert.Equal(t, 1, s.Tick(ctx))
	s.Wait()
	assert.Equal(t, 2, task.Cycle().Snapshot().CycleCount)
}

func TestTickSkipsNotExecutable(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	s := newTestScheduler(clk, 4)
	task := newTestTask("a", clk, time.Second)
	task.executable.Store(false)
	require.NoError(t, s.Add(task))
	assert.Equal(t, 0, s.Tick(ctx))
	assert.Equal(t, int32(0), task.calls.Load())
}

func TestTickSkipsBusyTasks(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	s := newTestScheduler(clk, 4)
	task := newTestTask("slow", clk, time.Second)
	task.block = make(chan struct{})
	require.NoError(t, s.Add(task))

	assert.Equal(t, 1, s.Tick(ctx))
	require.Eventually(t, func() bool { return task.Cycle().IsBusy() }, time.Second, time.Millisecond)
	clk.Add(10 * time.Second)
	assert.Equal(t, 0, s.Tick(ctx))

	close(task.block)
	s.Wait()
	assert.Equal(t, int32(1), task.calls.Load())
	assert.Equal(t, 1, task.Cycle().Snapshot().CycleCount)
}

func TestTickHonoursWorkerLimit(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	s := newTestScheduler(clk, 1)
	block := make(chan struct{})
	a := newTestTask("a", clk, time.Second)
	a.block = block
	b := newTestTask("b", clk, time.Second)
	require.NoError(t, s.Add(a))
	require.NoError(t, s.Add(b))

	assert.Equal(t, 1, s.Tick(ctx))
	assert.Equal(t, 0, s.Tick(ctx), "pool saturated")
	close(block)
	s.Wait()
	assert.Equal(t, int32(0), b.calls.Load())

	assert.Equal(t, 1, s.Tick(ctx))
	s.Wait()
	assert.Equal(t, int32(1), b.calls.Load())
}

func TestTickResumesAtWaitingTask(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	s := newTestScheduler(clk, 1)
	tasks := make([]*testTask, 0, 3)
	for _, id := range []string{"a", "b", "c"} {
		task := newTestTask(id, clk, time.Second)
		task.block = make(chan struct{})
		require.NoError(t, s.Add(task))
		tasks = append(tasks, task)
	}

	// Every tick, the task left waiting by the previous tick goes first
	for i, task := range tasks {
		assert.Equal(t, 1, s.Tick(ctx), "tick %d", i)
		require.Eventually(t, func() bool { return task.calls.Load() == 1 }, time.Second, time.Millisecond)
		close(task.block)
		s.Wait()
		clk.Add(time.Second)
	}
	for _, task := range tasks {
		assert.Equal(t, int32(1), task.calls.Load(), task.id)
	}
}

func TestExecutionFailuresAreNotFatal(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	s := newTestScheduler(clk, 2)
	failing := newTestTask("failing", clk, time.Second)
	failing.err = errors.New("read failed")
	panicking := newTestTask("panicking", clk, time.Second)
	panicking.panics = true
	require.NoError(t, s.Add(failing))
	require.NoError(t, s.Add(panicking))

	assert.Equal(t, 2, s.Tick(ctx))
	s.Wait()
	assert.Equal(t, 1, failing.Cycle().Snapshot().CycleCount)
	assert.Equal(t, 1, panicking.Cycle().Snapshot().CycleCount)
	assert.False(t, panicking.Cycle().IsBusy())

	clk.Add(time.Second)
	assert.Equal(t, 2, s.Tick(ctx))
	s.Wait()
}

func TestRemove(t *testing.T) {
	clk := clock.NewMock()
	s := newTestScheduler(clk, 1)
	require.NoError(t, s.Add(newTestTask("a", clk, time.Second)))
	require.NoError(t, s.Add(newTestTask("b", clk, time.Second)))
	assert.True(t, s.Remove("a"))
	assert.False(t, s.Remove("a"))
	tasks := s.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "b", tasks[0].ID())
}

func TestRunUntilCanceled(t *testing.T) {
	clk := clock.NewMock()
	s := newTestScheduler(clk, 2)
	task := newTestTask("a", clk, time.Second)
	require.NoError(t, s.Add(task))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return task.Cycle().Snapshot().CycleCount == 1 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
