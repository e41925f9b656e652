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

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/binkynet/LocalGPIO/model"
	"github.com/binkynet/LocalGPIO/pkg/pins"
	"github.com/binkynet/LocalGPIO/pkg/service/bridge"
	"github.com/binkynet/LocalGPIO/pkg/service/cyclic"
	"github.com/binkynet/LocalGPIO/pkg/service/pwm"
)

// Names of PWM measurements.
const (
	measurementFrequency = "frequency"
	measurementDutyCycle = "duty_cycle"
	measurementRunning   = "running"
)

// PWM drives a hardware PWM channel.
// Frequency, duty cycle and enabled flag survive a change of pin.
type PWM struct {
	gpioCore
	frequency int
	dutyCycle float64
	enabled   bool
	channel   *pwm.Channel
}

var _ Component = &PWM{}

// NewPWM creates a PWM component without a pin, with default frequency
// and duty cycle.
func NewPWM(id string, controller bridge.Controller, opts Options, log zerolog.Logger) *PWM {
	c := &PWM{
		frequency: pwm.DefaultFrequency,
		dutyCycle: pwm.DefaultDutyCycle,
	}
	c.init(id, pins.PWM, controller, c, opts, log.With().Str("pwm", id).Logger())
	return c
}

func (c *PWM) claimPin(pin pins.ID) error {
	drv, err := c.controller.OpenPWM(pin)
	if err != nil {
		return err
	}
	ch, err := pwm.NewChannel(drv, c.frequency, c.dutyCycle)
	if err != nil {
		if cerr := drv.Close(); cerr != nil {
			c.log.Warn().Err(cerr).Str("pin", pin.String()).Msg("Failed to close PWM driver")
		}
		return errors.Wrap(err, "NewChannel failed")
	}
	c.channel = ch
	return nil
}

func (c *PWM) releasePin(pin pins.ID) error {
	ch := c.channel
	if ch == nil {
		return nil
	}
	c.channel = nil
	return ch.Close()
}

// Role returns RolePWM.
func (c *PWM) Role() Role {
	return RolePWM
}

// Channel returns the PWM channel, or nil when no pin is assigned.
func (c *PWM) Channel() *pwm.Channel {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.channel
}

// Frequency returns the requested frequency in Hz.
func (c *PWM) Frequency() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.frequency
}

// SetFrequency changes the frequency in Hz.
func (c *PWM) SetFrequency(hz int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return model.ObjectDisposed("component '%s' is closed", c.id)
	}
	if hz <= 0 {
		return model.OutOfRange("frequency must be positive, got %d", hz)
	}
	if c.channel != nil {
		if err := c.channel.SetFrequency(hz); err != nil {
			return err
		}
	}
	c.frequency = hz
	return nil
}

// DutyCycle returns the requested duty cycle.
func (c *PWM) DutyCycle() float64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.dutyCycle
}

// SetDutyCycle changes the duty cycle, clamped to [0,1].
func (c *PWM) SetDutyCycle(d float64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return model.ObjectDisposed("component '%s' is closed", c.id)
	}
	d = pwm.ClampDutyCycle(d)
	if c.channel != nil {
		if err := c.channel.SetDutyCycle(d); err != nil {
			return err
		}
	}
	c.dutyCycle = d
	return nil
}

// Enabled returns true if the signal is requested to run.
func (c *PWM) Enabled() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.enabled
}

// SetEnabled requests the signal to run or stop on the next execution.
func (c *PWM) SetEnabled(enabled bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.enabled = enabled
}

// CanExecute returns true if a channel exists and its settings are valid.
func (c *PWM) CanExecute() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.executable() && c.channel != nil &&
		c.frequency > 0 && c.dutyCycle >= 0 && c.dutyCycle <= 1
}

// Execute starts or stops the channel as a single cycle.
func (c *PWM) Execute(ctx context.Context) (cyclic.Status, error) {
	return execute(c.clock, c.id, c.cycle, c.CanExecute, func() error {
		c.mutex.Lock()
		ch := c.channel
		if ch == nil {
			c.mutex.Unlock()
			return model.InvalidState("component '%s' has no PWM channel", c.id)
		}
		var err error
		if c.enabled {
			err = ch.Start()
		} else {
			err = ch.Stop()
		}
		c.mutex.Unlock()
		if err != nil {
			return err
		}
		return c.Measure(ctx)
	})
}

// Measure publishes the channel settings without touching the hardware.
func (c *PWM) Measure(ctx context.Context) error {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return model.ObjectDisposed("component '%s' is closed", c.id)
	}
	running := false
	if c.channel != nil {
		running = c.channel.State() == pwm.Running
	}
	freq, duty := c.frequency, c.dutyCycle
	c.mutex.Unlock()

	runningValue := 0.0
	if running {
		runningValue = 1
	}
	now := c.clock.Now()
	c.publish([]model.Measurement{
		{Name: measurementFrequency, Unit: model.UnitHertz, Timestamp: now, Value: float64(freq)},
		{Name: measurementDutyCycle, Unit: model.UnitRatio, Timestamp: now, Value: duty},
		{Name: measurementRunning, Unit: model.UnitState, Timestamp: now, Value: runningValue},
	}, now)
	return nil
}

// Status returns a snapshot of the component.
func (c *PWM) Status() Status {
	s := c.status(RolePWM, c.CanExecute())
	if ch := c.Channel(); ch != nil {
		s.Description = "channel " + ch.State().String()
	}
	return s
}

// Close stops and releases the channel.
func (c *PWM) Close() error {
	_, err := c.close()
	return err
}
