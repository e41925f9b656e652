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
	"time"

	"github.com/binkynet/LocalGPIO/pkg/pins"
)

// Controller is the device access boundary for the GPIO lines of the board.
// All implementations share the same preconditions, so code that runs
// against the simulated controller behaves the same on hardware.
type Controller interface {
	// OpenPin marks the pin open in the given mode.
	// Opening an open pin only changes its mode.
	OpenPin(pin pins.ID, mode PinMode) error
	// ClosePin closes the pin and forgets its last value.
	// Closing a closed pin is a no-op.
	ClosePin(pin pins.ID) error
	// IsPinOpen returns true if the pin is open as GPIO line.
	IsPinOpen(pin pins.ID) bool
	// IsPinInUse returns true if the pin is open or claimed by a PWM driver.
	IsPinInUse(pin pins.ID) bool
	// OpenPins returns all pins that are currently open.
	OpenPins() []pins.ID

	// SetPinMode changes the mode of an open pin.
	SetPinMode(pin pins.ID, mode PinMode) error
	// GetPinMode returns the mode of an open pin.
	GetPinMode(pin pins.ID) (PinMode, error)

	// Read the value of an open pin.
	Read(pin pins.ID) (PinValue, error)
	// Write the value of an open pin.
	Write(pin pins.ID, value PinValue) error
	// Toggle inverts the value of an open pin.
	Toggle(pin pins.ID) error

	// RegisterPinChangeCallback registers a callback that is invoked when the
	// value of the given pin changes in one of the given directions.
	// The returned function removes the callback.
	RegisterPinChangeCallback(pin pins.ID, events PinEventType, cb PinChangeCallback) (func(), error)

	// OpenPWM claims the hardware PWM channel that drives the given pin.
	OpenPWM(pin pins.ID) (PWMDriver, error)

	// Close all pins and PWM drivers. Afterwards every operation fails.
	Close() error
}

// PWMDriver is the interface satisfied by a claimed hardware PWM channel.
type PWMDriver interface {
	// Chip returns the PWM chip number.
	Chip() int
	// Channel returns the channel number on the chip.
	Channel() int
	// Configure the period and duty cycle of the signal.
	Configure(frequency int, dutyCycle float64) error
	// Enable the output signal.
	Enable() error
	// Disable the output signal.
	Disable() error
	// Close releases the channel.
	Close() error
}

// PinMode is the direction of a GPIO line.
type PinMode uint8

const (
	Input PinMode = iota
	Output
)

// String returns "input" or "output".
func (m PinMode) String() string {
	switch m {
	case Input:
		return "input"
	case Output:
		return "output"
	default:
		return "unknown"
	}
}

// PinValue is the logical level of a GPIO line.
type PinValue bool

const (
	Low  PinValue = false
	High PinValue = true
)

// Invert returns the opposite value.
func (v PinValue) Invert() PinValue {
	return !v
}

// Float returns 1 for High and 0 for Low.
func (v PinValue) Float() float64 {
	if v {
		return 1
	}
	return 0
}

// String returns "high" or "low".
func (v PinValue) String() string {
	if v {
		return "high"
	}
	return "low"
}

// PinEventType is a set of edge directions.
type PinEventType uint8

const (
	Rising PinEventType = 1 << iota
	Falling

	BothEdges = Rising | Falling
)

// PinChangeEvent describes a single value change of a pin.
type PinChangeEvent struct {
	Pin       pins.ID
	Type      PinEventType
	Value     PinValue
	Timestamp time.Time
}

// PinChangeCallback is invoked for every matching pin change.
type PinChangeCallback func(PinChangeEvent)

// edgeOf returns the edge for a change from old to new.
// Returns 0 when the value did not change.
func edgeOf(old, new PinValue) PinEventType {
	switch {
	case old == new:
		return 0
	case new == High:
		return Rising
	default:
		return Falling
	}
}
