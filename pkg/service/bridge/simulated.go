//    Copyright 2017 Ewout Prangsma
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package bridge

import (
	"sync"
	"sync/atomic"
	"time"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/rs/zerolog"

	"github.com/binkynet/LocalGPIO/model"
	"github.com/binkynet/LocalGPIO/pkg/pins"
)

type simulatedPin struct {
	mutex    sync.Mutex
	open     bool
	pwm      bool
	mode     PinMode
	value    PinValue
	hasValue bool
}

// SimulatedController is an in-memory Controller.
// Pin values start Low and can be driven externally with SetInput.
type SimulatedController struct {
	log       zerolog.Logger
	closed    int32
	pins      [pins.Count]simulatedPin
	callbacks callbackRegistry

	pwmMutex    sync.Mutex
	pwmChannels map[pwmKey]*SimulatedPWM
}

var _ Controller = &SimulatedController{}

// NewSimulatedController implements the controller for boards without GPIO hardware.
func NewSimulatedController(log zerolog.Logger) *SimulatedController {
	return &SimulatedController{
		log:         log.With().Str("component", "simulated-controller").Logger(),
		pwmChannels: make(map[pwmKey]*SimulatedPWM),
	}
}

// pin returns the state of the given pin, or an error if the
// controller is closed or the pin is out of range.
func (c *SimulatedController) pin(pin pins.ID) (*simulatedPin, error) {
	if atomic.LoadInt32(&c.closed) != 0 {
		return nil, model.ObjectDisposed("controller is closed")
	}
	if !pin.IsValid() {
		return nil, model.OutOfRange("pin %d is not a GPIO line", int(pin))
	}
	return &c.pins[pin], nil
}

// OpenPin marks the pin open in the given mode.
func (c *SimulatedController) OpenPin(pin pins.ID, mode PinMode) error {
	p, err := c.pin(pin)
	if err != nil {
		return err
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.pwm {
		return model.InvalidState("pin %s is claimed by a PWM channel", pin)
	}
	if !p.hasValue {
		p.value = Low
		p.hasValue = true
	}
	p.open = true
	p.mode = mode
	pinOpenGauge.WithLabelValues(pin.String()).Set(1)
	return nil
}

// ClosePin closes the pin and forgets its last value.
func (c *SimulatedController) ClosePin(pin pins.ID) error {
	p, err := c.pin(pin)
	if err != nil {
		return err
	}
	c.closePin(pin, p)
	return nil
}

func (c *SimulatedController) closePin(pin pins.ID, p *simulatedPin) {
	p.mutex.Lock()
	wasOpen := p.open
	p.open = false
	p.hasValue = false
	p.value = Low
	p.mutex.Unlock()
	if wasOpen {
		c.callbacks.removeAll(pin)
		pinOpenGauge.WithLabelValues(pin.String()).Set(0)
	}
}

// IsPinOpen returns true if the pin is open as GPIO line.
func (c *SimulatedController) IsPinOpen(pin pins.ID) bool {
	p, err := c.pin(pin)
	if err != nil {
		return false
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.open
}

// IsPinInUse returns true if the pin is open or claimed by a PWM driver.
func (c *SimulatedController) IsPinInUse(pin pins.ID) bool {
	p, err := c.pin(pin)
	if err != nil {
		return false
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.open || p.pwm
}

// OpenPins returns all pins that are currently open.
func (c *SimulatedController) OpenPins() []pins.ID {
	var result []pins.ID
	for _, id := range pins.All() {
		if c.IsPinOpen(id) {
			result = append(result, id)
		}
	}
	return result
}

// withOpenPin calls the given function while holding the lock of an open pin.
func (c *SimulatedController) withOpenPin(pin pins.ID, op string, cb func(p *simulatedPin) error) error {
	p, err := c.pin(pin)
	if err != nil {
		return err
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if !p.open {
		pinErrorsTotal.WithLabelValues(pin.String(), op).Inc()
		return model.InvalidState("cannot %s pin %s; pin is not open", op, pin)
	}
	return cb(p)
}

// SetPinMode changes the mode of an open pin.
func (c *SimulatedController) SetPinMode(pin pins.ID, mode PinMode) error {
	return c.withOpenPin(pin, "set mode of", func(p *simulatedPin) error {
		p.mode = mode
		return nil
	})
}

// GetPinMode returns the mode of an open pin.
func (c *SimulatedController) GetPinMode(pin pins.ID) (PinMode, error) {
	var result PinMode
	err := c.withOpenPin(pin, "get mode of", func(p *simulatedPin) error {
		result = p.mode
		return nil
	})
	return result, err
}

// Read the value of an open pin.
func (c *SimulatedController) Read(pin pins.ID) (PinValue, error) {
	var result PinValue
	err := c.withOpenPin(pin, "read", func(p *simulatedPin) error {
		result = p.value
		return nil
	})
	return result, err
}

// Write the value of an open pin.
func (c *SimulatedController) Write(pin pins.ID, value PinValue) error {
	return c.setValue(pin, "write", func(PinValue) PinValue { return value })
}

// Toggle inverts the value of an open pin.
func (c *SimulatedController) Toggle(pin pins.ID) error {
	return c.setValue(pin, "toggle", PinValue.Invert)
}

// SetInput simulates an external level change on an open pin.
func (c *SimulatedController) SetInput(pin pins.ID, value PinValue) error {
	return c.setValue(pin, "drive", func(PinValue) PinValue { return value })
}

func (c *SimulatedController) setValue(pin pins.ID, op string, update func(PinValue) PinValue) error {
	var evt PinChangeEvent
	if err := c.withOpenPin(pin, op, func(p *simulatedPin) error {
		old := p.value
		p.value = update(old)
		evt = PinChangeEvent{
			Pin:       pin,
			Type:      edgeOf(old, p.value),
			Value:     p.value,
			Timestamp: time.Now(),
		}
		return nil
	}); err != nil {
		return err
	}
	c.callbacks.fire(c.log, evt)
	return nil
}

// RegisterPinChangeCallback registers a callback for value changes of an open pin.
func (c *SimulatedController) RegisterPinChangeCallback(pin pins.ID, events PinEventType, cb PinChangeCallback) (func(), error) {
	var cancel func()
	err := c.withOpenPin(pin, "watch", func(p *simulatedPin) error {
		cancel = c.callbacks.add(pin, events, cb)
		return nil
	})
	return cancel, err
}

// OpenPWM claims the simulated PWM channel that drives the given pin.
func (c *SimulatedController) OpenPWM(pin pins.ID) (PWMDriver, error) {
	p, err := c.pin(pin)
	if err != nil {
		return nil, err
	}
	key, err := pwmKeyOf(pin)
	if err != nil {
		return nil, err
	}
	c.pwmMutex.Lock()
	defer c.pwmMutex.Unlock()
	if _, found := c.pwmChannels[key]; found {
		return nil, model.InvalidState("PWM channel %d of chip %d is already in use", key.channel, key.chip)
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.open {
		return nil, model.InvalidState("pin %s is open as GPIO line", pin)
	}
	p.pwm = true
	drv := &SimulatedPWM{
		key: key,
		release: func() {
			c.pwmMutex.Lock()
			delete(c.pwmChannels, key)
			c.pwmMutex.Unlock()
			p.mutex.Lock()
			p.pwm = false
			p.mutex.Unlock()
		},
	}
	c.pwmChannels[key] = drv
	return drv, nil
}

// PWM returns the simulated PWM channel with given coordinates, if claimed.
func (c *SimulatedController) PWM(chip, channel int) (*SimulatedPWM, bool) {
	c.pwmMutex.Lock()
	defer c.pwmMutex.Unlock()
	drv, found := c.pwmChannels[pwmKey{chip: chip, channel: channel}]
	return drv, found
}

// Close all pins and PWM channels.
func (c *SimulatedController) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	var ae aerr.AggregateError
	c.pwmMutex.Lock()
	drivers := make([]*SimulatedPWM, 0, len(c.pwmChannels))
	for _, drv := range c.pwmChannels {
		drivers = append(drivers, drv)
	}
	c.pwmMutex.Unlock()
	for _, drv := range drivers {
		if err := drv.Close(); err != nil {
			ae.Add(err)
		}
	}
	for _, id := range pins.All() {
		c.closePin(id, &c.pins[id])
	}
	return ae.AsError()
}
