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

package pwm

import (
	"github.com/binkynet/LocalGPIO/pkg/metrics"
)

const (
	subSystem = "pwm"
)

var (
	channelStateGauge = metrics.MustRegisterGaugeVec(subSystem,
		"channel_state",
		"State of PWM channel (1=configured, 2=running, 3=stopped, 4=disposed)",
		"channel")
	channelStartsTotal = metrics.MustRegisterCounterVec(subSystem,
		"channel_starts_total",
		"Number of times a PWM channel was started",
		"channel")
)
