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

// Output drives a digital pin to a requested level.
type Output struct {
	gpioCore
	value bridge.PinValue
}

var _ Component = &Output{}

// NewOutput creates an output component without a pin.
func NewOutput(id string, controller bridge.Controller, opts Options, log zerolog.Logger) *Output {
	c := &Output{}
	c.init(id, pins.Digital, controller, c, opts, log.With().Str("output", id).Logger())
	return c
}

func (c *Output) claimPin(pin pins.ID) error {
	return c.controller.OpenPin(pin, bridge.Output)
}

func (c *Output) releasePin(pin pins.ID) error {
	return c.controller.ClosePin(pin)
}

// Role returns RoleOutput.
func (c *Output) Role() Role {
	return RoleOutput
}

// Value returns the requested level.
func (c *Output) Value() bridge.PinValue {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.value
}

// SetValue changes the requested level.
// It is written to the pin on the next execution.
func (c *Output) SetValue(v bridge.PinValue) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.value = v
	outputRequestGauge.WithLabelValues(c.id).Set(v.Float())
}

// CanExecute returns true if a pin is assigned.
func (c *Output) CanExecute() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.executable()
}

// Execute writes the requested level to the pin as a single cycle.
func (c *Output) Execute(ctx context.Context) (cyclic.Status, error) {
	return execute(c.clock, c.id, c.cycle, c.CanExecute, func() error {
		c.mutex.Lock()
		pin, err := c.activePin()
		if err != nil {
			c.mutex.Unlock()
			return err
		}
		value := c.value
		err = c.controller.Write(pin, value)
		c.mutex.Unlock()
		if err != nil {
			return err
		}
		outputWritesTotal.WithLabelValues(c.id).Inc()
		c.publishValue(value)
		return nil
	})
}

// Measure publishes the requested level without touching the pin.
func (c *Output) Measure(ctx context.Context) error {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return model.ObjectDisposed("component '%s' is closed", c.id)
	}
	value := c.value
	c.mutex.Unlock()
	c.publishValue(value)
	return nil
}

func (c *Output) publishValue(value bridge.PinValue) {
	now := c.clock.Now()
	c.publish([]model.Measurement{{
		Name:      measurementValue,
		Unit:      model.UnitState,
		Timestamp: now,
		Value:     value.Float(),
	}}, now)
}

// Status returns a snapshot of the component.
func (c *Output) Status() Status {
	return c.status(RoleOutput, c.CanExecute())
}

// Close releases the pin.
func (c *Output) Close() error {
	_, err := c.close()
	return err
}
