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

package events

import (
	"github.com/binkynet/LocalGPIO/pkg/metrics"
)

const (
	subSystem = "events"
)

var (
	// Latest measured values
	measurementGauge = metrics.MustRegisterGaugeVec("",
		"measurement",
		"Latest measured value per component",
		"component", "name", "unit")
	publishedTotal = metrics.MustRegisterCounterVec(subSystem,
		"published_total",
		"Number of published measurement events",
		"component")
	hubDroppedTotal = metrics.MustRegisterCounter(subSystem,
		"dropped_total",
		"Number of events dropped because the hub queue was full")

	// MQTT metrics
	mqttConnectsTotal = metrics.MustRegisterCounter(subSystem,
		"mqtt_connects_total",
		"Number of connections made to the MQTT broker")
	mqttMessagesTotal = metrics.MustRegisterCounterVec(subSystem,
		"mqtt_messages_total",
		"Number of MQTT messages per outcome",
		"outcome")
	mqttDroppedTotal = metrics.MustRegisterCounter(subSystem,
		"mqtt_dropped_total",
		"Number of events dropped because the MQTT queue was full")
)
