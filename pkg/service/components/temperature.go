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

package components

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	humanize "github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/binkynet/LocalGPIO/model"
	"github.com/binkynet/LocalGPIO/pkg/pins"
	"github.com/binkynet/LocalGPIO/pkg/service/cyclic"
)

const (
	measurementTemperature = "temperature"

	DefaultMinTemperature = 5.0
	DefaultMaxTemperature = 20.0
)

// TemperatureSimulator is a pinless cyclic sensor producing random
// temperatures. A non-zero acquisition time models a slow sensor.
type TemperatureSimulator struct {
	mutex       sync.Mutex
	id          string
	log         zerolog.Logger
	clock       clock.Clock
	cycle       *cyclic.State
	min, max    float64
	acquisition time.Duration
	random      *rand.Rand
	closed      bool
	inflight    sync.WaitGroup
	stopped     context.Context
	stop        context.CancelFunc
	lastRead    time.Time
	lastValue   float64
	// acquire produces a single temperature in Celsius.
	acquire func(ctx context.Context) (float64, error)
	*publisher
}

var _ Component = &TemperatureSimulator{}

// NewTemperatureSimulator creates a simulated temperature sensor producing
// values in [min, max]. If both are zero, 5..20 Celsius is used.
func NewTemperatureSimulator(id string, min, max float64, acquisition time.Duration, opts Options, log zerolog.Logger) *TemperatureSimulator {
	if min == 0 && max == 0 {
		min, max = DefaultMinTemperature, DefaultMaxTemperature
	}
	log = log.With().Str("sensor", id).Logger()
	c := &TemperatureSimulator{
		id:          id,
		log:         log,
		clock:       opts.clock(),
		cycle:       cyclic.NewState(opts.Period, opts.ComputationMethod),
		min:         min,
		max:         max,
		acquisition: acquisition,
		publisher:   newPublisher(id, opts.NotifyOnChangeOnly, log),
	}
	c.random = rand.New(rand.NewSource(c.clock.Now().UnixNano()))
	c.stopped, c.stop = context.WithCancel(context.Background())
	c.acquire = c.simulate
	return c
}

// simulate waits for the acquisition time and returns a random temperature.
func (c *TemperatureSimulator) simulate(ctx context.Context) (float64, error) {
	if c.acquisition > 0 {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-c.clock.After(c.acquisition):
		}
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.min + c.random.Float64()*(c.max-c.min), nil
}

// ID returns the unique identifier of the component.
func (c *TemperatureSimulator) ID() string {
	return c.id
}

// Role returns RoleSensor.
func (c *TemperatureSimulator) Role() Role {
	return RoleSensor
}

// Cycle returns the cyclic state of the component.
func (c *TemperatureSimulator) Cycle() *cyclic.State {
	return c.cycle
}

// Pin returns pins.None.
func (c *TemperatureSimulator) Pin() pins.ID {
	return pins.None
}

// SetPin fails for any pin, the simulator has no pin.
func (c *TemperatureSimulator) SetPin(pin pins.ID) error {
	if pin == pins.None {
		return nil
	}
	return model.IncompatibleCapability("component '%s' cannot be assigned to a pin", c.id)
}

// CanExecute returns true until the component is closed.
func (c *TemperatureSimulator) CanExecute() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return !c.closed
}

// Execute acquires a temperature as a single cycle.
func (c *TemperatureSimulator) Execute(ctx context.Context) (cyclic.Status, error) {
	if c.enter() {
		defer c.inflight.Done()
	}
	return execute(c.clock, c.id, c.cycle, c.CanExecute, func() error {
		return c.Measure(ctx)
	})
}

// Measure acquires a temperature and publishes it in Celsius,
// Fahrenheit and Kelvin.
func (c *TemperatureSimulator) Measure(ctx context.Context) error {
	if !c.enter() {
		return model.ObjectDisposed("component '%s' is closed", c.id)
	}
	defer c.inflight.Done()

	// Close cancels an acquisition in progress
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(c.stopped, cancel)()

	celsius, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	now := c.clock.Now()
	c.mutex.Lock()
	c.lastRead = now
	c.lastValue = celsius
	c.mutex.Unlock()

	c.publish([]model.Measurement{
		{Name: measurementTemperature, Unit: model.UnitCelsius, Timestamp: now, Value: celsius},
		{Name: measurementTemperature, Unit: model.UnitFahrenheit, Timestamp: now, Value: CelsiusToFahrenheit(celsius)},
		{Name: measurementTemperature, Unit: model.UnitKelvin, Timestamp: now, Value: CelsiusToKelvin(celsius)},
	}, now)
	return nil
}

// Status returns a snapshot of the component.
func (c *TemperatureSimulator) Status() Status {
	c.mutex.Lock()
	lastRead, lastValue := c.lastRead, c.lastValue
	c.mutex.Unlock()

	description := "no temperature read yet"
	if !lastRead.IsZero() {
		description = fmt.Sprintf("%.1f °C, read %s", lastValue,
			humanize.RelTime(lastRead, c.clock.Now(), "ago", "from now"))
	}
	if c.cycle.IsBusy() {
		description += " (measuring)"
	}
	return Status{
		ID:           c.id,
		Role:         RoleSensor,
		Pin:          pins.None.String(),
		Executable:   c.CanExecute(),
		Cycle:        c.cycle.Snapshot(),
		Measurements: c.Measurements(),
		Description:  description,
	}
}

// enter registers an execution or measurement in progress.
// Returns false once the component is closed.
func (c *TemperatureSimulator) enter() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return false
	}
	c.inflight.Add(1)
	return true
}

// Close stops further executions. An acquisition in progress is canceled
// and Close returns after it has finished.
func (c *TemperatureSimulator) Close() error {
	c.mutex.Lock()
	c.closed = true
	c.mutex.Unlock()
	c.stop()
	c.inflight.Wait()
	return nil
}

// CelsiusToFahrenheit converts a temperature.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

// CelsiusToKelvin converts a temperature.
func CelsiusToKelvin(c float64) float64 {
	return c + 273.15
}
