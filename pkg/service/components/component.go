// Copyright 2020 Ewout Prangsma
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
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/binkynet/LocalGPIO/model"
	"github.com/binkynet/LocalGPIO/pkg/pins"
	"github.com/binkynet/LocalGPIO/pkg/service/bridge"
	"github.com/binkynet/LocalGPIO/pkg/service/cyclic"
)

// Component contains the API supported by all types of components.
type Component interface {
	cyclic.Executable

	// Role returns the kind of component.
	Role() Role
	// Pin returns the assigned pin, or pins.None.
	Pin() pins.ID
	// SetPin assigns the component to another pin.
	// The pin must support the function required by the role.
	SetPin(pin pins.ID) error
	// Measure updates the measurements of the component.
	Measure(ctx context.Context) error
	// Measurements returns the latest measurements.
	Measurements() []model.Measurement
	// Subscribe adds a callback that is invoked synchronously with
	// new measurements. The returned function removes the callback.
	Subscribe(cb func(model.MeasurementEvent)) func()
	// Status returns a snapshot of the component.
	Status() Status
	// Close releases the pin and all other resources.
	Close() error
}

// Role of a component.
type Role string

const (
	RoleInput  Role = "input"
	RoleOutput Role = "output"
	RolePWM    Role = "pwm"
	RoleSensor Role = "sensor"
)

// Status is a read-only snapshot of a component.
type Status struct {
	ID           string              `json:"id"`
	Role         Role                `json:"role"`
	Pin          string              `json:"pin"`
	Executable   bool                `json:"executable"`
	Cycle        cyclic.Info         `json:"cycle"`
	Measurements []model.Measurement `json:"measurements"`
	Description  string              `json:"description,omitempty"`
}

// Options shared by all components.
type Options struct {
	// Time between two executions
	Period time.Duration
	// Reference point of the next due time
	ComputationMethod cyclic.ComputationMethod
	// Only notify subscribers when a measured value changed
	NotifyOnChangeOnly bool
	// Source of time, defaults to the wall clock
	Clock clock.Clock
}

func (o Options) clock() clock.Clock {
	if o.Clock != nil {
		return o.Clock
	}
	return clock.New()
}

// pinClaimer acquires and releases a pin for a specific role.
// Both methods are called with the core lock held.
type pinClaimer interface {
	claimPin(pin pins.ID) error
	releasePin(pin pins.ID) error
}

// gpioCore holds the pin assignment shared by all GPIO roles.
type gpioCore struct {
	mutex      sync.Mutex
	id         string
	log        zerolog.Logger
	controller bridge.Controller
	required   pins.Function
	claimer    pinClaimer
	pin        pins.ID
	closed     bool
	clock      clock.Clock
	cycle      *cyclic.State
	*publisher
}

// init prepares the core of a component that claims pins through claimer.
func (g *gpioCore) init(id string, required pins.Function, controller bridge.Controller, claimer pinClaimer, opts Options, log zerolog.Logger) {
	g.id = id
	g.log = log
	g.controller = controller
	g.required = required
	g.claimer = claimer
	g.pin = pins.None
	g.clock = opts.clock()
	g.cycle = cyclic.NewState(opts.Period, opts.ComputationMethod)
	g.publisher = newPublisher(id, opts.NotifyOnChangeOnly, log)
}

// ID returns the unique identifier of the component.
func (g *gpioCore) ID() string {
	return g.id
}

// Cycle returns the cyclic state of the component.
func (g *gpioCore) Cycle() *cyclic.State {
	return g.cycle
}

// Pin returns the assigned pin, or pins.None.
func (g *gpioCore) Pin() pins.ID {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.pin
}

// SetPin assigns the component to another pin.
// On failure the previous assignment is kept.
func (g *gpioCore) SetPin(pin pins.ID) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.closed {
		return model.ObjectDisposed("component '%s' is closed", g.id)
	}
	if !pins.Supports(pin, g.required) {
		return model.IncompatibleCapability("pin %s does not support %s (supports %s)", pin, g.required, pins.CapabilitiesOf(pin))
	}
	if pin == g.pin {
		return nil
	}
	if g.controller.IsPinInUse(pin) {
		return model.InvalidState("pin %s is already in use", pin)
	}
	old := g.pin
	if old != pins.None {
		if err := g.claimer.releasePin(old); err != nil {
			return errors.Wrapf(err, "failed to release pin %s", old)
		}
		g.pin = pins.None
	}
	if err := g.claimer.claimPin(pin); err != nil {
		if old != pins.None {
			if rerr := g.claimer.claimPin(old); rerr != nil {
				g.log.Error().Err(rerr).Str("pin", old.String()).Msg("Failed to reclaim previous pin")
				return errors.Wrapf(err, "failed to claim pin %s", pin)
			}
			g.pin = old
		}
		return errors.Wrapf(err, "failed to claim pin %s", pin)
	}
	g.pin = pin
	g.log.Debug().Str("pin", pin.String()).Msg("assigned pin")
	return nil
}

// executable returns true if a pin is assigned and the component is open.
// Caller must hold the lock.
func (g *gpioCore) executable() bool {
	return !g.closed && g.pin.IsValid()
}

// activePin returns the assigned pin, or an error when the component is
// closed or has no pin.
// Caller must hold the lock.
func (g *gpioCore) activePin() (pins.ID, error) {
	if g.closed {
		return pins.None, model.ObjectDisposed("component '%s' is closed", g.id)
	}
	if !g.pin.IsValid() {
		return pins.None, model.InvalidState("component '%s' has no pin", g.id)
	}
	return g.pin, nil
}

// close releases the pin.
// Returns false if the component was already closed.
func (g *gpioCore) close() (bool, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if g.closed {
		return false, nil
	}
	g.closed = true
	if g.pin == pins.None {
		return true, nil
	}
	pin := g.pin
	g.pin = pins.None
	if err := g.claimer.releasePin(pin); err != nil {
		return true, errors.Wrapf(err, "failed to release pin %s", pin)
	}
	return true, nil
}

// status returns the shared part of a status snapshot.
func (g *gpioCore) status(role Role, executable bool) Status {
	return Status{
		ID:           g.id,
		Role:         role,
		Pin:          g.Pin().String(),
		Executable:   executable,
		Cycle:        g.cycle.Snapshot(),
		Measurements: g.Measurements(),
	}
}

// execute runs a guarded cycle and records its outcome.
func execute(clk clock.Clock, id string, cycle *cyclic.State, canExecute func() bool, body func() error) (cyclic.Status, error) {
	status, err := cyclic.Guard(clk, cycle, canExecute, body)
	executionsTotal.WithLabelValues(id, status.String()).Inc()
	if err != nil {
		executionErrorsTotal.WithLabelValues(id).Inc()
	}
	return status, err
}
