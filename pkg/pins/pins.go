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

package pins

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ID identifies a GPIO line of the board (BCM numbering).
type ID int

const (
	// None is used for an unassigned pin.
	None ID = -1

	GPIO0 ID = iota - 1
	GPIO1
	GPIO2
	GPIO3
	GPIO4
	GPIO5
	GPIO6
	GPIO7
	GPIO8
	GPIO9
	GPIO10
	GPIO11
	GPIO12
	GPIO13
	GPIO14
	GPIO15
	GPIO16
	GPIO17
	GPIO18
	GPIO19
	GPIO20
	GPIO21
	GPIO22
	GPIO23
	GPIO24
	GPIO25
	GPIO26
	GPIO27

	// Count is the number of GPIO lines in the table.
	Count = int(GPIO27) + 1
)

// IsValid returns true if the given ID refers to a line in the table.
func (id ID) IsValid() bool {
	return id >= GPIO0 && id <= GPIO27
}

// String returns the name of the pin, e.g. GPIO18.
func (id ID) String() string {
	if id == None {
		return "None"
	}
	return "GPIO" + strconv.Itoa(int(id))
}

// ParseID parses a pin name like "GPIO18" or "18".
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "none") || s == "" {
		return None, nil
	}
	upper := strings.ToUpper(s)
	upper = strings.TrimPrefix(upper, "GPIO")
	n, err := strconv.Atoi(upper)
	if err != nil {
		return None, errors.Wrapf(err, "invalid pin '%s'", s)
	}
	id := ID(n)
	if !id.IsValid() {
		return None, errors.Errorf("pin '%s' is not in range GPIO0..GPIO27", s)
	}
	return id, nil
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(data []byte) error {
	v, err := ParseID(string(data))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// All returns all pins of the table in ascending order.
func All() []ID {
	result := make([]ID, 0, Count)
	for id := GPIO0; id <= GPIO27; id++ {
		result = append(result, id)
	}
	return result
}

// Function is a set of electrical functions a pin can serve.
type Function uint16

const (
	FunctionNone Function = 0
	I2C          Function = 1 << (iota - 1)
	SPI
	PWM
	UART
	Digital
	ClockGen
	PCM
	SDIO
	DPI
	OneWire
	JTag
)

var functionNames = []struct {
	f    Function
	name string
}{
	{I2C, "i2c"},
	{SPI, "spi"},
	{PWM, "pwm"},
	{UART, "uart"},
	{Digital, "digital"},
	{ClockGen, "gpclk"},
	{PCM, "pcm"},
	{SDIO, "sdio"},
	{DPI, "dpi"},
	{OneWire, "onewire"},
	{JTag, "jtag"},
}

// Contains returns true if every function in other is also in f.
func (f Function) Contains(other Function) bool {
	return f&other == other
}

// String returns the functions joined with '|', e.g. "digital|pwm".
func (f Function) String() string {
	if f == FunctionNone {
		return "none"
	}
	var parts []string
	for _, x := range functionNames {
		if f&x.f != 0 {
			parts = append(parts, x.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseFunction parses a '|' separated list of function names.
func ParseFunction(s string) (Function, error) {
	var result Function
	for _, part := range strings.Split(s, "|") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" || part == "none" {
			continue
		}
		found := false
		for _, x := range functionNames {
			if x.name == part {
				result |= x.f
				found = true
				break
			}
		}
		if !found {
			return FunctionNone, errors.Errorf("unknown pin function '%s'", part)
		}
	}
	return result, nil
}

type pinInfo struct {
	functions  Function
	pwmChip    int
	pwmChannel int
}

func gpio(f Function) pinInfo {
	return pinInfo{functions: Digital | f, pwmChip: -1, pwmChannel: -1}
}

func pwm(f Function, chip, channel int) pinInfo {
	return pinInfo{functions: Digital | PWM | f, pwmChip: chip, pwmChannel: channel}
}

// Alternate functions of the BCM2711 header pins.
var table = [Count]pinInfo{
	GPIO0:  gpio(DPI | I2C | UART),
	GPIO1:  gpio(DPI | I2C | UART),
	GPIO2:  gpio(DPI | I2C | UART),
	GPIO3:  gpio(DPI | I2C | UART),
	GPIO4:  gpio(DPI | OneWire | JTag | ClockGen | UART),
	GPIO5:  gpio(DPI | JTag | ClockGen | UART),
	GPIO6:  gpio(DPI | JTag | ClockGen | UART),
	GPIO7:  gpio(DPI | SPI | UART),
	GPIO8:  gpio(DPI | SPI | UART),
	GPIO9:  gpio(DPI | SPI | UART),
	GPIO10: gpio(DPI | SPI | UART),
	GPIO11: gpio(DPI | SPI | UART),
	GPIO12: pwm(DPI|JTag|UART, 0, 0),
	GPIO13: pwm(DPI|JTag|UART, 0, 1),
	GPIO14: gpio(DPI | UART),
	GPIO15: gpio(DPI | UART),
	GPIO16: gpio(DPI | SPI),
	GPIO17: gpio(DPI | SPI),
	GPIO18: pwm(DPI|SPI|PCM, 0, 0),
	GPIO19: pwm(DPI|SPI|PCM, 0, 1),
	GPIO20: gpio(DPI | SPI | PCM),
	GPIO21: gpio(DPI | SPI | PCM),
	GPIO22: gpio(DPI | SDIO | JTag),
	GPIO23: gpio(DPI | SDIO | JTag),
	GPIO24: gpio(DPI | SDIO | JTag),
	GPIO25: gpio(DPI | SDIO | JTag),
	GPIO26: gpio(DPI | SDIO | JTag),
	GPIO27: gpio(DPI | SDIO | JTag),
}

// CapabilitiesOf returns the set of functions supported by the given pin.
// Returns FunctionNone for None and unknown pins.
func CapabilitiesOf(id ID) Function {
	if !id.IsValid() {
		return FunctionNone
	}
	return table[id].functions
}

// Supports returns true if the given pin supports all functions in f.
func Supports(id ID, f Function) bool {
	return CapabilitiesOf(id).Contains(f)
}

// PWMChip returns the hardware PWM chip of the given pin, -1 if the pin
// has no PWM function.
func PWMChip(id ID) int {
	if !id.IsValid() {
		return -1
	}
	return table[id].pwmChip
}

// PWMChannel returns the hardware PWM channel of the given pin, -1 if the
// pin has no PWM function.
func PWMChannel(id ID) int {
	if !id.IsValid() {
		return -1
	}
	return table[id].pwmChannel
}
