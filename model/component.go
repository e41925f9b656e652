package model

import (
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/binkynet/LocalGPIO/pkg/pins"
)

// Component holds the configuration of a single component.
type Component struct {
	// Unique identifier of the component
	ID string `yaml:"id"`
	// Type of component
	Type ComponentType `yaml:"type"`
	// GPIO pin of the component (e.g. GPIO18)
	Pin string `yaml:"pin,omitempty"`
	// Time between two executions
	Period time.Duration `yaml:"period,omitempty"`
	// "start" (default) or "end"
	ComputationMethod string `yaml:"computation_method,omitempty"`
	// If set, measurement events are only published when a value changes
	NotifyOnChangeOnly bool `yaml:"notify_on_change_only,omitempty"`

	// Output: initial value to write
	Value bool `yaml:"value,omitempty"`

	// PWM: frequency in Hz (default 400)
	Frequency int `yaml:"frequency,omitempty"`
	// PWM: duty cycle in [0,1] (default 0.5)
	DutyCycle *float64 `yaml:"duty_cycle,omitempty"`
	// PWM: run the signal
	Enabled bool `yaml:"enabled,omitempty"`

	// Temperature simulator: range of generated temperatures in Celsius
	MinTemperature float64 `yaml:"min_temperature,omitempty"`
	MaxTemperature float64 `yaml:"max_temperature,omitempty"`
	// Temperature simulator: duration of a single acquisition
	AcquisitionTime time.Duration `yaml:"acquisition_time,omitempty"`
}

// ComponentType identifies a type of component.
type ComponentType string

const (
	ComponentTypeInput                ComponentType = "input"
	ComponentTypeOutput               ComponentType = "output"
	ComponentTypePWM                  ComponentType = "pwm"
	ComponentTypeTemperatureSimulator ComponentType = "temperature-simulator"
)

var componentTypeFunctions = map[ComponentType]pins.Function{
	ComponentTypeInput:                pins.Digital,
	ComponentTypeOutput:               pins.Digital,
	ComponentTypePWM:                  pins.PWM,
	ComponentTypeTemperatureSimulator: pins.FunctionNone,
}

// Validate the given type, returning nil on ok,
// or an error upon validation issues.
func (t ComponentType) Validate() error {
	if _, found := componentTypeFunctions[t]; found {
		return nil
	}
	return errors.Wrapf(ValidationError, "invalid component type '%s'", string(t))
}

// RequiredFunction returns the pin function a component of this type needs.
func (t ComponentType) RequiredFunction() pins.Function {
	return componentTypeFunctions[t]
}

// UsesPin returns true if components of this type are bound to a pin.
func (t ComponentType) UsesPin() bool {
	return t.RequiredFunction() != pins.FunctionNone
}

// PinID returns the parsed pin of the component.
func (c Component) PinID() (pins.ID, error) {
	id, err := pins.ParseID(c.Pin)
	if err != nil {
		return pins.None, errors.Wrapf(ValidationError, "invalid pin of '%s': %s", c.ID, err.Error())
	}
	return id, nil
}

// GetDutyCycle returns the configured duty cycle, or 0.5.
func (c Component) GetDutyCycle() float64 {
	if c.DutyCycle != nil {
		return *c.DutyCycle
	}
	return 0.5
}

// GetFrequency returns the configured frequency, or 400Hz.
func (c Component) GetFrequency() int {
	if c.Frequency > 0 {
		return c.Frequency
	}
	return 400
}

// Validate the given configuration, returning nil on ok,
// or an error upon validation issues.
func (c Component) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.Wrap(ValidationError, "ID is empty")
	}
	if err := c.Type.Validate(); err != nil {
		return errors.Wrapf(ValidationError, "Error in Type of '%s': %s", c.ID, err.Error())
	}
	if c.Period < 0 {
		return errors.Wrapf(ValidationError, "negative period in '%s'", c.ID)
	}
	switch strings.ToLower(c.ComputationMethod) {
	case "", "start", "end":
	default:
		return errors.Wrapf(ValidationError, "invalid computation method '%s' in '%s'", c.ComputationMethod, c.ID)
	}
	if c.Type.UsesPin() {
		pin, err := c.PinID()
		if err != nil {
			return err
		}
		if pin == pins.None {
			return errors.Wrapf(ValidationError, "pin of '%s' is empty", c.ID)
		}
		if required := c.Type.RequiredFunction(); !pins.Supports(pin, required) {
			return errors.Wrapf(ValidationError, "pin %s of '%s' does not support %s", pin, c.ID, required)
		}
	} else if c.Pin != "" {
		return errors.Wrapf(ValidationError, "component '%s' of type '%s' has no pin", c.ID, c.Type)
	}
	if c.Frequency < 0 {
		return errors.Wrapf(ValidationError, "negative frequency in '%s'", c.ID)
	}
	if c.DutyCycle != nil && math.IsNaN(*c.DutyCycle) {
		return errors.Wrapf(ValidationError, "duty cycle of '%s' is not a number", c.ID)
	}
	if c.AcquisitionTime < 0 {
		return errors.Wrapf(ValidationError, "negative acquisition time in '%s'", c.ID)
	}
	if c.MaxTemperature < c.MinTemperature {
		return errors.Wrapf(ValidationError, "max temperature below min temperature in '%s'", c.ID)
	}
	return nil
}
