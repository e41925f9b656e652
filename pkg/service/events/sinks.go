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
	"github.com/rs/zerolog"

	"github.com/binkynet/LocalGPIO/model"
)

// NewLogSink returns a sink that logs every event at debug level.
func NewLogSink(log zerolog.Logger) func(model.MeasurementEvent) {
	log = log.With().Str("component", "measurements").Logger()
	return func(evt model.MeasurementEvent) {
		e := log.Debug().Str("source", evt.Source)
		for _, m := range evt.Measurements {
			e = e.Float64(m.Name+"["+m.Unit+"]", m.Value)
		}
		e.Msg("measured")
	}
}

// NewMetricsSink returns a sink that exposes the latest value of every
// measurement as a gauge.
func NewMetricsSink() func(model.MeasurementEvent) {
	return func(evt model.MeasurementEvent) {
		for _, m := range evt.Measurements {
			measurementGauge.WithLabelValues(evt.Source, m.Name, m.Unit).Set(m.Value)
		}
	}
}
