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

	"github.com/rs/zerolog"

	"github.com/binkynet/LocalGPIO/model"
	"github.com/binkynet/LocalGPIO/pkg/pins"
	"github.com/binkynet/LocalGPIO/pkg/service/bridge"
	"github.com/binkynet/LocalGPIO/pkg/service/cyclic"
)

const (
	// Name of the measurement of digital components.
	measurementValue = "value"
)

// Input samples the level of a digital pin.
type Input struct {
	gpioCore
}

var _ Component = &Input{}

// NewInput creates an input component without a pin.
func NewInput(id string, controller bridge.Controller, opts Options, log zerolog.Logger) *Input {
	c := &Input{}
	c.init(id, pins.Digital, controller, c, opts, log.With().Str("input", id).Logger())
	return c
}

func (c *Input) claimPin(pin pins.ID) error {
	return c.controller.OpenPin(pin, bridge.Input)
}

func (c *Input) releasePin(pin pins.ID) error {
	return c.controller.ClosePin(pin)
}

// Role returns RoleInput.
func (c *Input) Role() Role {
	return RoleInput
}

// CanExecute returns true if a pin is assigned.
func (c *Input) CanExecute() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.executable()
}

// Execute samples the pin as a single cycle.
func (c *Input) Execute(ctx context.Context) (cyclic.Status, error) {
	return execute(c.clock, c.id, c.cycle, c.CanExecute, func() error {
		return c.Measure(ctx)
	})
}

// Measure reads the pin and publishes its level.
func (c *Input) Measure(ctx context.Context) error {
	c.mutex.Lock()
	pin, err := c.activePin()
	if err != nil {
		c.mutex.Unlock()
		return err
	}
	value, err := c.controller.Read(pin)
	c.mutex.Unlock()
	if err != nil {
		pinReadErrorsTotal.WithLabelValues(c.id).Inc()
		return err
	}

	now := c.clock.Now()
	if c.publish([]model.Measurement{{
		Name:      measurementValue,
		Unit:      model.UnitState,
		Timestamp: now,
		Value:     value.Float(),
	}}, now) {
		inputChangesTotal.WithLabelValues(c.id).Inc()
		c.log.Debug().Str("value", value.String()).Msg("input changed")
	}
	return nil
}

// Value returns the last measured level.
// Returns false if the pin was never sampled.
func (c *Input) Value() (bridge.PinValue, bool) {
	ms := c.Measurements()
	if len(ms) == 0 {
		return bridge.Low, false
	}
	return ms[0].Value != 0, true
}

// Status returns a snapshot of the component.
func (c *Input) Status() Status {
	return c.status(RoleInput, c.CanExecute())
}

// Close releases the pin.
func (c *Input) Close() error {
	_, err := c.close()
	return err
}
