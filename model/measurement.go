package model

import (
	"time"
)

// Units of measurements.
const (
	UnitState      = "state"
	UnitHertz      = "Hz"
	UnitRatio      = "ratio"
	UnitCelsius    = "C"
	UnitFahrenheit = "F"
	UnitKelvin     = "K"
)

// Measurement is a single named value produced by a component.
type Measurement struct {
	// Name of the measured quantity, e.g. "value" or "temperature"
	Name string `json:"name"`
	// Unit of the value
	Unit string `json:"unit"`
	// Time of measurement
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// MeasurementEvent is published when a component has new measurements.
type MeasurementEvent struct {
	// ID of the component that produced the measurements
	Source       string        `json:"source"`
	Timestamp    time.Time     `json:"timestamp"`
	Measurements []Measurement `json:"measurements"`
}

// Get returns the measurement with given name and unit.
// An empty unit matches any unit.
func (e MeasurementEvent) Get(name, unit string) (Measurement, bool) {
	for _, m := range e.Measurements {
		if m.Name == name && (unit == "" || m.Unit == unit) {
			return m, true
		}
	}
	return Measurement{}, false
}
