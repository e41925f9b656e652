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
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/semaphore"

	"github.com/binkynet/LocalGPIO/model"
	"github.com/binkynet/LocalGPIO/pkg/service/cyclic"
)

const (
	// DefaultTickInterval is the time between two checks for due tasks.
	DefaultTickInterval = time.Millisecond * 100
	// DefaultWorkers is the maximum number of concurrent executions.
	DefaultWorkers = 4
)

// Config of the scheduler.
type Config struct {
	TickInterval time.Duration
	Workers      int
}

// Dependencies of the scheduler.
type Dependencies struct {
	Log   zerolog.Logger
	Clock clock.Clock
}

// Scheduler executes cyclic tasks when they are due, on a bounded
// pool of workers.
type Scheduler struct {
	log          zerolog.Logger
	clock        clock.Clock
	tickInterval time.Duration
	workers      *semaphore.Weighted

	mutex   sync.Mutex
	tasks   map[string]cyclic.Executable
	pending map[string]struct{}

	// ID of the task that found the pool saturated; next tick starts there
	resumeAt string
	running  sync.WaitGroup
}

// New creates a scheduler without tasks.
func New(cfg Config, deps Dependencies) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		log:          deps.Log.With().Str("component", "scheduler").Logger(),
		clock:        clk,
		tickInterval: cfg.TickInterval,
		workers:      semaphore.NewWeighted(int64(cfg.Workers)),
		tasks:        make(map[string]cyclic.Executable),
		pending:      make(map[string]struct{}),
	}
}

// Add a task to the scheduler. Its cycle is restarted, so it is due
// on the next tick.
func (s *Scheduler) Add(task cyclic.Executable) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	id := task.ID()
	if _, found := s.tasks[id]; found {
		return model.InvalidState("task '%s' is already scheduled", id)
	}
	task.Cycle().Restart(s.clock.Now())
	s.tasks[id] = task
	tasksGauge.Set(float64(len(s.tasks)))
	return nil
}

// Remove the task with given ID. An execution in progress is not interrupted.
func (s *Scheduler) Remove(id string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, found := s.tasks[id]; !found {
		return false
	}
	delete(s.tasks, id)
	tasksGauge.Set(float64(len(s.tasks)))
	return true
}

// Tasks returns all scheduled tasks, sorted by ID.
func (s *Scheduler) Tasks() []cyclic.Executable {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	ids := lo.Keys(s.tasks)
	sort.Strings(ids)
	return lo.Map(ids, func(id string, _ int) cyclic.Executable { return s.tasks[id] })
}

// Run checks for due tasks every tick until the given context is canceled.
// It returns after all executions in progress have finished.
func (s *Scheduler) Run(ctx context.Context) error {
	log := s.log
	log.Info().Dur("interval", s.tickInterval).Msg("Running scheduler")
	defer func() {
		s.Wait()
		log.Info().Msg("Stopped scheduler")
	}()

	ticker := s.clock.Ticker(s.tickInterval)
	defer ticker.Stop()
	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			// Context canceled
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick dispatches all tasks that are due now and not running yet.
// Returns the number of dispatched executions.
// Tasks that cannot be dispatched because all workers are busy are
// tried first on the next tick.
func (s *Scheduler) Tick(ctx context.Context) int {
	ticksTotal.Inc()
	now := s.clock.Now()
	dispatched := 0
	for _, task := range s.dispatchOrder() {
		if ctx.Err() != nil {
			return dispatched
		}
		id := task.ID()
		cycle := task.Cycle()
		if cycle.IsBusy() || !cycle.IsDue(now) || !task.CanExecute() {
			continue
		}
		s.mutex.Lock()
		if _, found := s.pending[id]; found {
			s.mutex.Unlock()
			continue
		}
		if !s.workers.TryAcquire(1) {
			s.mutex.Unlock()
			s.resumeAt = id
			saturatedTotal.Inc()
			s.log.Debug().Str("id", id).Msg("All workers busy")
			return dispatched
		}
		s.pending[id] = struct{}{}
		s.running.Add(1)
		s.mutex.Unlock()

		dispatchedTotal.WithLabelValues(id).Inc()
		dispatched++
		go s.execute(ctx, task)
	}
	return dispatched
}

// dispatchOrder returns all tasks sorted by ID, rotated to start at
// the task that was left waiting by the previous tick.
func (s *Scheduler) dispatchOrder() []cyclic.Executable {
	tasks := s.Tasks()
	s.mutex.Lock()
	resumeAt := s.resumeAt
	s.resumeAt = ""
	s.mutex.Unlock()
	idx := sort.Search(len(tasks), func(i int) bool { return tasks[i].ID() >= resumeAt })
	if idx == 0 || idx == len(tasks) {
		return tasks
	}
	return append(append(make([]cyclic.Executable, 0, len(tasks)), tasks[idx:]...), tasks[:idx]...)
}

// Wait until all executions in progress have finished.
func (s *Scheduler) Wait() {
	s.running.Wait()
}

// execute runs a single cycle of the given task on a worker.
// Errors and panics are logged, never propagated.
func (s *Scheduler) execute(ctx context.Context, task cyclic.Executable) {
	id := task.ID()
	log := s.log.With().Str("id", id).Logger()
	start := s.clock.Now()
	defer func() {
		if err := recover(); err != nil {
			failuresTotal.WithLabelValues(id, "panic").Inc()
			log.Error().Interface("err", err).Msg("Recovered from panic in execution")
		}
		executionDuration.WithLabelValues(id).Observe(s.clock.Since(start).Seconds())
		s.mutex.Lock()
		delete(s.pending, id)
		s.mutex.Unlock()
		s.workers.Release(1)
		s.running.Done()
	}()

	status, err := task.Execute(ctx)
	if err != nil {
		failuresTotal.WithLabelValues(id, "error").Inc()
		log.Warn().Err(err).Str("status", status.String()).Msg("Execution failed")
		return
	}
	log.Debug().Str("status", status.String()).Msg("Executed")
}
