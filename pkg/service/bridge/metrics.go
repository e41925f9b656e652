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

package bridge

import (
	"github.com/binkynet/LocalGPIO/pkg/metrics"
)

const (
	subSystem = "bridge"
)

var (
	// Open state of GPIO pins (1=open)
	pinOpenGauge = metrics.MustRegisterGaugeVec(subSystem,
		"pin_open",
		"Open state of GPIO pins (0=closed, 1=open)",
		"pin")
	// Total number of failed pin operations
	pinErrorsTotal = metrics.MustRegisterCounterVec(subSystem,
		"pin_errors_total",
		"Total number of failed pin operations",
		"pin", "operation")
)
