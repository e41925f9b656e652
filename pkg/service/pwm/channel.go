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
	"math"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/binkynet/LocalGPIO/model"
	"github.com/binkynet/LocalGPIO/pkg/service/bridge"
)

const (
	// DefaultFrequency of a new channel in Hz.
	DefaultFrequency = 400
	// DefaultDutyCycle of a new channel.
	DefaultDutyCycle = 0.5
)

// State of a PWM channel.
type State uint8

const (
	Uninitialized State = iota
	Configured
	Running
	Stopped
	Disposed
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Configured:
		return "configured"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Disposed:
		return "disposed"
	default:
		return "state-" + strconv.Itoa(int(s))
	}
}

// ClampDutyCycle limits the given duty cycle to [0,1].
// NaN is mapped to 0.
func ClampDutyCycle(d float64) float64 {
	if math.IsNaN(d) {
		return 0
	}
	return lo.Clamp(d, 0, 1)
}

// Channel drives a single hardware PWM channel through its lifecycle.
type Channel struct {
	mutex     sync.Mutex
	driver    bridge.PWMDriver
	frequency int
	dutyCycle float64
	state     State
}

// NewChannel creates a channel in Configured state using the given driver.
// The channel takes ownership of the driver.
func NewChannel(driver bridge.PWMDriver, frequency int, dutyCycle float64) (*Channel, error) {
	if frequency <= 0 {
		return nil, model.OutOfRange("frequency must be positive, got %d", frequency)
	}
	dutyCycle = ClampDutyCycle(dutyCycle)
	if err := driver.Configure(frequency, dutyCycle); err != nil {
		return nil, errors.Wrap(err, "Configure failed")
	}
	c := &Channel{
		driver:    driver,
		frequency: frequency,
		dutyCycle: dutyCycle,
		state:     Configured,
	}
	channelStateGauge.WithLabelValues(c.label()).Set(float64(Configured))
	return c, nil
}

func (c *Channel) label() string {
	return strconv.Itoa(c.driver.Chip()) + "/" + strconv.Itoa(c.driver.Channel())
}

// Chip returns the PWM chip number.
func (c *Channel) Chip() int {
	return c.driver.Chip()
}

// Channel returns the channel number on the chip.
func (c *Channel) Channel() int {
	return c.driver.Channel()
}

// State returns the current state.
func (c *Channel) State() State {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

// Frequency returns the frequency in Hz.
func (c *Channel) Frequency() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.frequency
}

// DutyCycle returns the duty cycle in [0,1].
func (c *Channel) DutyCycle() float64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.dutyCycle
}

// SetFrequency changes the frequency. A running channel is updated immediately.
func (c *Channel) SetFrequency(hz int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.state == Disposed {
		return model.ObjectDisposed("PWM channel %s is disposed", c.label())
	}
	if hz <= 0 {
		return model.OutOfRange("frequency must be positive, got %d", hz)
	}
	if c.state == Running {
		if err := c.driver.Configure(hz, c.dutyCycle); err != nil {
			return errors.Wrap(err, "Configure failed")
		}
	}
	c.frequency = hz
	return nil
}

// SetDutyCycle changes the duty cycle, clamped to [0,1].
// A running channel is updated immediately.
func (c *Channel) SetDutyCycle(d float64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.state == Disposed {
		return model.ObjectDisposed("PWM channel %s is disposed", c.label())
	}
	d = ClampDutyCycle(d)
	if c.state == Running {
		if err := c.driver.Configure(c.frequency, d); err != nil {
			return errors.Wrap(err, "Configure failed")
		}
	}
	c.dutyCycle = d
	return nil
}

// Start the output signal. Starting a running channel is a no-op.
func (c *Channel) Start() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	switch c.state {
	case Running:
		return nil
	case Disposed:
		return model.ObjectDisposed("PWM channel %s is disposed", c.label())
	case Configured, Stopped:
		if err := c.driver.Configure(c.frequency, c.dutyCycle); err != nil {
			return errors.Wrap(err, "Configure failed")
		}
		if err := c.driver.Enable(); err != nil {
			return errors.Wrap(err, "Enable failed")
		}
		c.setState(Running)
		channelStartsTotal.WithLabelValues(c.label()).Inc()
		return nil
	default:
		return model.InvalidState("cannot start PWM channel in state %s", c.state)
	}
}

// Stop the output signal. Stopping a channel that is not running is a no-op.
func (c *Channel) Stop() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	switch c.state {
	case Running:
		if err := c.driver.Disable(); err != nil {
			return errors.Wrap(err, "Disable failed")
		}
		c.setState(Stopped)
		return nil
	case Disposed:
		return model.ObjectDisposed("PWM channel %s is disposed", c.label())
	default:
		return nil
	}
}

// Close stops the channel when needed and releases the driver.
// Closing a closed channel is a no-op.
func (c *Channel) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.state == Disposed {
		return nil
	}
	var stopErr error
	if c.state == Running {
		stopErr = c.driver.Disable()
	}
	c.setState(Disposed)
	if err := c.driver.Close(); err != nil {
		return errors.Wrap(err, "Close failed")
	}
	if stopErr != nil {
		return errors.Wrap(stopErr, "Disable failed")
	}
	return nil
}

// setState changes the state.
// Caller must hold the lock.
func (c *Channel) setState(s State) {
	c.state = s
	channelStateGauge.WithLabelValues(c.label()).Set(float64(s))
}
