// Copyright 2023 Ewout Prangsma
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

package components

import (
	"github.com/binkynet/LocalGPIO/pkg/metrics"
)

const (
	subSystem = "components"
)

var (
	// Number of created components
	componentsCreatedTotal = metrics.MustRegisterGauge(subSystem,
		"components_created_total",
		"Number of created components")

	// Number of configured components
	componentsConfiguredTotal = metrics.MustRegisterGauge(subSystem,
		"components_configured_total",
		"Number of configured components")

	// Execution metrics
	executionsTotal = metrics.MustRegisterCounterVec(subSystem,
		"executions_total",
		"Number of executions per outcome",
		"id", "status")
	executionErrorsTotal = metrics.MustRegisterCounterVec(subSystem,
		"execution_errors_total",
		"Number of failed executions",
		"id")

	// Input metrics
	inputChangesTotal = metrics.MustRegisterCounterVec(subSystem,
		"input_changes_total",
		"Number of times, the measured value of an input has changed",
		"id")
	pinReadErrorsTotal = metrics.MustRegisterCounterVec(subSystem,
		"pin_read_errors_total",
		"Number of read errors of an input",
		"id")

	// Output metrics
	outputRequestGauge = metrics.MustRegisterGaugeVec(subSystem,
		"output_request",
		"Requested value of output (0=LOW, 1=HIGH)",
		"id")
	outputWritesTotal = metrics.MustRegisterCounterVec(subSystem,
		"output_writes_total",
		"Number of writes of an output",
		"id")
)
