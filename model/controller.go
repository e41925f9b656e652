package model

import (
	"github.com/pkg/errors"
)

// ControllerType identifies the kind of pin controller.
type ControllerType string

const (
	// ControllerTypeAuto selects a controller based on the host.
	ControllerTypeAuto ControllerType = "auto"
	// ControllerTypeRaspberryPi uses the GPIO header of a Raspberry Pi.
	ControllerTypeRaspberryPi ControllerType = "rpi"
	// ControllerTypeSimulated keeps all pin state in memory.
	ControllerTypeSimulated ControllerType = "sim"
)

// Validate the given type, returning nil on ok,
// or an error upon validation issues.
// An empty type is valid and means auto.
func (t ControllerType) Validate() error {
	switch t {
	case "", ControllerTypeAuto, ControllerTypeRaspberryPi, ControllerTypeSimulated:
		return nil
	default:
		return errors.Wrapf(ValidationError, "invalid controller type '%s'", string(t))
	}
}
