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
	"github.com/prometheus/client_golang/prometheus"

	"github.com/binkynet/LocalGPIO/pkg/metrics"
)

const (
	subSystem = "scheduler"
)

var (
	tasksGauge = metrics.MustRegisterGauge(subSystem,
		"tasks",
		"Number of scheduled tasks")
	ticksTotal = metrics.MustRegisterCounter(subSystem,
		"ticks_total",
		"Number of scheduler ticks")
	dispatchedTotal = metrics.MustRegisterCounterVec(subSystem,
		"dispatched_total",
		"Number of dispatched executions",
		"id")
	saturatedTotal = metrics.MustRegisterCounter(subSystem,
		"saturated_total",
		"Number of ticks that could not dispatch all due tasks because all workers were busy")
	failuresTotal = metrics.MustRegisterCounterVec(subSystem,
		"failures_total",
		"Number of failed executions",
		"id", "kind")
	executionDuration = metrics.MustRegisterHistogramVec(subSystem,
		"execution_duration_seconds",
		"Duration of executions",
		prometheus.DefBuckets,
		"id")
)
