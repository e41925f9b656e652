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
	"context"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ecc1/gpio"
	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/binkynet/LocalGPIO/model"
	"github.com/binkynet/LocalGPIO/pkg/pins"
)

const (
	gpioUnexportPath = "/sys/class/gpio/unexport"
	// Interval between two samples of watched pins.
	defaultPollInterval = time.Millisecond * 10
)

// inputLine is the interface satisfied by GPIO input lines.
type inputLine interface {
	Read() (bool, error)
}

// outputLine is the interface satisfied by GPIO output lines.
type outputLine interface {
	Write(bool) error
}

// gpioDriver configures GPIO lines of the board.
type gpioDriver interface {
	Input(pin int) (inputLine, error)
	Output(pin int, initialValue bool) (outputLine, error)
	Unexport(pin int) error
}

// sysfsGPIO implements gpioDriver using the sysfs GPIO interface.
type sysfsGPIO struct{}

func (sysfsGPIO) Input(pin int) (inputLine, error) {
	activeLow := false
	return gpio.Input(pin, activeLow)
}

func (sysfsGPIO) Output(pin int, initialValue bool) (outputLine, error) {
	activeLow := false
	return gpio.Output(pin, activeLow, initialValue)
}

func (sysfsGPIO) Unexport(pin int) error {
	if err := os.WriteFile(gpioUnexportPath, []byte(strconv.Itoa(pin)), 0644); err != nil {
		return errors.Wrapf(err, "failed to unexport pin %d", pin)
	}
	return nil
}

type piPin struct {
	mutex sync.Mutex
	open  bool
	pwm   bool
	mode  PinMode
	// Last written value. Latched while the pin is an input.
	value PinValue
	in    inputLine
	out   outputLine
	// Last value seen by the watcher.
	polled      PinValue
	polledValid bool
}

// RaspberryPiController is a Controller for the GPIO header of a Raspberry Pi.
type RaspberryPiController struct {
	log          zerolog.Logger
	driver       gpioDriver
	pwmRoot      string
	pollInterval time.Duration
	closed       int32
	pins         [pins.Count]piPin
	callbacks    callbackRegistry

	pwmMutex    sync.Mutex
	pwmChannels map[pwmKey]PWMDriver

	watchOnce   sync.Once
	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

var _ Controller = &RaspberryPiController{}

// NewRaspberryPiController implements the controller for Raspberry PI's.
func NewRaspberryPiController(log zerolog.Logger) *RaspberryPiController {
	return newRaspberryPiController(log, sysfsGPIO{}, pwmRootPath)
}

func newRaspberryPiController(log zerolog.Logger, driver gpioDriver, pwmRoot string) *RaspberryPiController {
	return &RaspberryPiController{
		log:          log.With().Str("component", "rpi-controller").Logger(),
		driver:       driver,
		pwmRoot:      pwmRoot,
		pollInterval: defaultPollInterval,
		pwmChannels:  make(map[pwmKey]PWMDriver),
	}
}

func (c *RaspberryPiController) pin(pin pins.ID) (*piPin, error) {
	if atomic.LoadInt32(&c.closed) != 0 {
		return nil, model.ObjectDisposed("controller is closed")
	}
	if !pin.IsValid() {
		return nil, model.OutOfRange("pin %d is not a GPIO line", int(pin))
	}
	return &c.pins[pin], nil
}

// configureLine sets the direction of the line.
// Caller must hold the pin lock.
func (c *RaspberryPiController) configureLine(pin pins.ID, p *piPin, mode PinMode) error {
	switch mode {
	case Input:
		in, err := c.driver.Input(int(pin))
		if err != nil {
			return errors.Wrapf(err, "Input[%s] failed", pin)
		}
		p.in, p.out = in, nil
	case Output:
		out, err := c.driver.Output(int(pin), bool(p.value))
		if err != nil {
			return errors.Wrapf(err, "Output[%s] failed", pin)
		}
		p.in, p.out = nil, out
	default:
		return model.OutOfRange("unknown pin mode %d", int(mode))
	}
	p.mode = mode
	return nil
}

// OpenPin exports the line and sets its direction.
func (c *RaspberryPiController) OpenPin(pin pins.ID, mode PinMode) error {
	p, err := c.pin(pin)
	if err != nil {
		return err
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.pwm {
		return model.InvalidState("pin %s is claimed by a PWM channel", pin)
	}
	if p.open && p.mode == mode {
		return nil
	}
	if !p.open {
		p.value = Low
	}
	if err := c.configureLine(pin, p, mode); err != nil {
		pinErrorsTotal.WithLabelValues(pin.String(), "open").Inc()
		return err
	}
	p.open = true
	pinOpenGauge.WithLabelValues(pin.String()).Set(1)
	return nil
}

// ClosePin unexports the line.
func (c *RaspberryPiController) ClosePin(pin pins.ID) error {
	p, err := c.pin(pin)
	if err != nil {
		return err
	}
	return c.closePin(pin, p)
}

func (c *RaspberryPiController) closePin(pin pins.ID, p *piPin) error {
	p.mutex.Lock()
	if !p.open {
		p.mutex.Unlock()
		return nil
	}
	p.open = false
	p.in, p.out = nil, nil
	p.value = Low
	p.polledValid = false
	p.mutex.Unlock()

	c.callbacks.removeAll(pin)
	pinOpenGauge.WithLabelValues(pin.String()).Set(0)
	if err := c.driver.Unexport(int(pin)); err != nil {
		pinErrorsTotal.WithLabelValues(pin.String(), "close").Inc()
		return err
	}
	return nil
}

// IsPinOpen returns true if the pin is open as GPIO line.
func (c *RaspberryPiController) IsPinOpen(pin pins.ID) bool {
	p, err := c.pin(pin)
	if err != nil {
		return false
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.open
}

// IsPinInUse returns true if the pin is open or claimed by a PWM driver.
func (c *RaspberryPiController) IsPinInUse(pin pins.ID) bool {
	p, err := c.pin(pin)
	if err != nil {
		return false
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.open || p.pwm
}

// OpenPins returns all pins that are currently open.
func (c *RaspberryPiController) OpenPins() []pins.ID {
	var result []pins.ID
	for _, id := range pins.All() {
		if c.IsPinOpen(id) {
			result = append(result, id)
		}
	}
	return result
}

func (c *RaspberryPiController) withOpenPin(pin pins.ID, op string, cb func(p *piPin) error) error {
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
	if err := cb(p); err != nil {
		pinErrorsTotal.WithLabelValues(pin.String(), op).Inc()
		return err
	}
	return nil
}

// SetPinMode changes the direction of an open line.
func (c *RaspberryPiController) SetPinMode(pin pins.ID, mode PinMode) error {
	return c.withOpenPin(pin, "set mode of", func(p *piPin) error {
		if p.mode == mode {
			return nil
		}
		return c.configureLine(pin, p, mode)
	})
}

// GetPinMode returns the direction of an open line.
func (c *RaspberryPiController) GetPinMode(pin pins.ID) (PinMode, error) {
	var result PinMode
	err := c.withOpenPin(pin, "get mode of", func(p *piPin) error {
		result = p.mode
		return nil
	})
	return result, err
}

// readLine returns the level of the line.
// Caller must hold the pin lock.
func readLine(p *piPin) (PinValue, error) {
	if p.mode == Input && p.in != nil {
		v, err := p.in.Read()
		if err != nil {
			return Low, errors.Wrap(err, "Read failed")
		}
		return PinValue(v), nil
	}
	return p.value, nil
}

// Read the level of an open line.
func (c *RaspberryPiController) Read(pin pins.ID) (PinValue, error) {
	var result PinValue
	err := c.withOpenPin(pin, "read", func(p *piPin) error {
		v, err := readLine(p)
		result = v
		return err
	})
	return result, err
}

// Write drives an output line, or latches the value of an input line.
func (c *RaspberryPiController) Write(pin pins.ID, value PinValue) error {
	return c.withOpenPin(pin, "write", func(p *piPin) error {
		return writeLine(p, value)
	})
}

// Toggle inverts the last written value.
func (c *RaspberryPiController) Toggle(pin pins.ID) error {
	return c.withOpenPin(pin, "toggle", func(p *piPin) error {
		return writeLine(p, p.value.Invert())
	})
}

// writeLine stores the value and drives it when the line is an output.
// Caller must hold the pin lock.
func writeLine(p *piPin, value PinValue) error {
	if p.mode == Output && p.out != nil {
		if err := p.out.Write(bool(value)); err != nil {
			return errors.Wrap(err, "Write failed")
		}
	}
	p.value = value
	return nil
}

// RegisterPinChangeCallback registers a callback for value changes of an open pin.
// Changes are detected by sampling the line.
func (c *RaspberryPiController) RegisterPinChangeCallback(pin pins.ID, events PinEventType, cb PinChangeCallback) (func(), error) {
	var cancel func()
	if err := c.withOpenPin(pin, "watch", func(p *piPin) error {
		cancel = c.callbacks.add(pin, events, cb)
		return nil
	}); err != nil {
		return nil, err
	}
	c.watchOnce.Do(c.startWatcher)
	return cancel, nil
}

func (c *RaspberryPiController) startWatcher() {
	ctx, cancel := context.WithCancel(context.Background())
	c.watchCancel = cancel
	c.watchDone = make(chan struct{})
	go c.watch(ctx, c.watchDone)
}

// watch samples all watched pins until the given context is canceled.
func (c *RaspberryPiController) watch(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, pin := range c.callbacks.watched() {
			if evt, ok := c.sample(pin); ok {
				c.callbacks.fire(c.log, evt)
			}
		}
	}
}

// sample reads a watched pin and returns a change event if its level changed.
func (c *RaspberryPiController) sample(pin pins.ID) (PinChangeEvent, bool) {
	p, err := c.pin(pin)
	if err != nil {
		return PinChangeEvent{}, false
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if !p.open {
		return PinChangeEvent{}, false
	}
	v, err := readLine(p)
	if err != nil {
		c.log.Debug().Err(err).Str("pin", pin.String()).Msg("Sample watched pin failed")
		return PinChangeEvent{}, false
	}
	old, valid := p.polled, p.polledValid
	p.polled, p.polledValid = v, true
	if !valid || old == v {
		return PinChangeEvent{}, false
	}
	return PinChangeEvent{
		Pin:       pin,
		Type:      edgeOf(old, v),
		Value:     v,
		Timestamp: time.Now(),
	}, true
}

// OpenPWM exports the hardware PWM channel that drives the given pin.
func (c *RaspberryPiController) OpenPWM(pin pins.ID) (PWMDriver, error) {
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
	drv, err := newSysfsPWM(c.pwmRoot, key, func() {
		c.pwmMutex.Lock()
		delete(c.pwmChannels, key)
		c.pwmMutex.Unlock()
		p.mutex.Lock()
		p.pwm = false
		p.mutex.Unlock()
	})
	if err != nil {
		return nil, errors.Wrapf(err, "OpenPWM[%s] failed", pin)
	}
	p.pwm = true
	c.pwmChannels[key] = drv
	return drv, nil
}

// Close all lines and PWM channels and stop the watcher.
func (c *RaspberryPiController) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	// Prevent a watcher from being started after this point.
	c.watchOnce.Do(func() {})
	if c.watchCancel != nil {
		c.watchCancel()
		<-c.watchDone
	}

	var ae aerr.AggregateError
	c.pwmMutex.Lock()
	drivers := make([]PWMDriver, 0, len(c.pwmChannels))
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
		if err := c.closePin(id, &c.pins[id]); err != nil {
			ae.Add(err)
		}
	}
	return ae.AsError()
}
