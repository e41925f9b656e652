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

package bridge

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/binkynet/LocalGPIO/model"
	"github.com/binkynet/LocalGPIO/pkg/pins"
)

type pwmKey struct {
	chip    int
	channel int
}

func pwmKeyOf(pin pins.ID) (pwmKey, error) {
	if !pins.Supports(pin, pins.PWM) {
		return pwmKey{}, model.IncompatibleCapability("pin %s has no PWM function", pin)
	}
	return pwmKey{chip: pins.PWMChip(pin), channel: pins.PWMChannel(pin)}, nil
}

// SimulatedPWM is an in-memory PWM channel.
type SimulatedPWM struct {
	mutex     sync.Mutex
	key       pwmKey
	frequency int
	dutyCycle float64
	enabled   bool
	closed    bool
	release   func()
}

// Chip returns the PWM chip number.
func (p *SimulatedPWM) Chip() int { return p.key.chip }

// Channel returns the channel number on the chip.
func (p *SimulatedPWM) Channel() int { return p.key.channel }

// Configure the period and duty cycle of the signal.
func (p *SimulatedPWM) Configure(frequency int, dutyCycle float64) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.closed {
		return model.ObjectDisposed("PWM channel is closed")
	}
	p.frequency = frequency
	p.dutyCycle = dutyCycle
	return nil
}

// Enable the output signal.
func (p *SimulatedPWM) Enable() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.closed {
		return model.ObjectDisposed("PWM channel is closed")
	}
	p.enabled = true
	return nil
}

// Disable the output signal.
func (p *SimulatedPWM) Disable() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.closed {
		return model.ObjectDisposed("PWM channel is closed")
	}
	p.enabled = false
	return nil
}

// Close releases the channel.
func (p *SimulatedPWM) Close() error {
	p.mutex.Lock()
	if p.closed {
		p.mutex.Unlock()
		return nil
	}
	p.closed = true
	p.enabled = false
	release := p.release
	p.mutex.Unlock()
	if release != nil {
		release()
	}
	return nil
}

// Signal returns the last configured signal and whether it is enabled.
func (p *SimulatedPWM) Signal() (frequency int, dutyCycle float64, enabled bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.frequency, p.dutyCycle, p.enabled
}

const (
	pwmRootPath = "/sys/class/pwm"
	// Time to wait for udev to fix permissions of a freshly exported channel.
	pwmExportDelay = time.Millisecond * 100
)

// sysfsPWM drives a hardware PWM channel through /sys/class/pwm.
type sysfsPWM struct {
	mutex    sync.Mutex
	key      pwmKey
	chipPath string
	linePath string

	periodNs         int64
	activeDurationNs int64
	exported         bool
	enabled          bool
	release          func()
}

func newSysfsPWM(root string, key pwmKey, release func()) (*sysfsPWM, error) {
	chipPath := filepath.Join(root, "pwmchip"+strconv.Itoa(key.chip))
	p := &sysfsPWM{
		key:      key,
		chipPath: chipPath,
		linePath: filepath.Join(chipPath, "pwm"+strconv.Itoa(key.channel)),
		release:  release,
	}
	if err := p.export(); err != nil {
		return nil, err
	}
	return p, nil
}

func writeSysfsValue(path string, value int64) error {
	if err := os.WriteFile(path, []byte(strconv.FormatInt(value, 10)), 0o660); err != nil {
		return errors.Wrapf(err, "write to %s failed", path)
	}
	return nil
}

func (p *sysfsPWM) export() error {
	if p.exported {
		return nil
	}
	if _, err := os.Stat(p.linePath); err != nil {
		if err := writeSysfsValue(filepath.Join(p.chipPath, "export"), int64(p.key.channel)); err != nil {
			return err
		}
		time.Sleep(pwmExportDelay)
	}
	p.exported = true
	return nil
}

// Chip returns the PWM chip number.
func (p *sysfsPWM) Chip() int { return p.key.chip }

// Channel returns the channel number on the chip.
func (p *sysfsPWM) Channel() int { return p.key.channel }

// Configure the period and duty cycle of the signal.
func (p *sysfsPWM) Configure(frequency int, dutyCycle float64) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.exported {
		return model.ObjectDisposed("PWM channel is closed")
	}
	if frequency <= 0 {
		return model.OutOfRange("frequency must be positive, got %d", frequency)
	}
	periodNs := int64(time.Second) / int64(frequency)
	activeDurationNs := int64(float64(periodNs) * dutyCycle)

	// duty_cycle may never exceed period, so the write order depends on
	// the direction of the change.
	periodFile := filepath.Join(p.linePath, "period")
	dutyFile := filepath.Join(p.linePath, "duty_cycle")
	if periodNs < p.activeDurationNs {
		if err := writeSysfsValue(dutyFile, activeDurationNs); err != nil {
			return err
		}
		p.activeDurationNs = activeDurationNs
		if err := writeSysfsValue(periodFile, periodNs); err != nil {
			return err
		}
		p.periodNs = periodNs
	} else {
		if err := writeSysfsValue(periodFile, periodNs); err != nil {
			return err
		}
		p.periodNs = periodNs
		if err := writeSysfsValue(dutyFile, activeDurationNs); err != nil {
			return err
		}
		p.activeDurationNs = activeDurationNs
	}
	return nil
}

// Enable the output signal.
func (p *sysfsPWM) Enable() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.setEnabled(true)
}

// Disable the output signal.
func (p *sysfsPWM) Disable() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.setEnabled(false)
}

func (p *sysfsPWM) setEnabled(enabled bool) error {
	if !p.exported {
		return model.ObjectDisposed("PWM channel is closed")
	}
	if p.enabled == enabled {
		return nil
	}
	value := int64(0)
	if enabled {
		value = 1
	}
	if err := writeSysfsValue(filepath.Join(p.linePath, "enable"), value); err != nil {
		return err
	}
	p.enabled = enabled
	return nil
}

// Close disables and unexports the channel.
func (p *sysfsPWM) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.exported {
		return nil
	}
	if err := p.setEnabled(false); err != nil {
		return err
	}
	if err := writeSysfsValue(filepath.Join(p.chipPath, "unexport"), int64(p.key.channel)); err != nil {
		return err
	}
	p.exported = false
	if p.release != nil {
		p.release()
	}
	return nil
}
