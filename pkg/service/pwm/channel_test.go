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
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binkynet/LocalGPIO/model"
	"github.com/binkynet/LocalGPIO/pkg/pins"
	"github.com/binkynet/LocalGPIO/pkg/service/bridge"
)

func newTestChannel(t *testing.T) (*Channel, *bridge.SimulatedPWM, *bridge.SimulatedController) {
	c := bridge.NewSimulatedController(zerolog.Nop())
	t.Cleanup(func() { c.Close() })
	drv, err := c.OpenPWM(pins.GPIO18)
	require.NoError(t, err)
	ch, err := NewChannel(drv, DefaultFrequency, DefaultDutyCycle)
	require.NoError(t, err)
	sim, found := c.PWM(0, 0)
	require.True(t, found)
	return ch, sim, c
}

func TestChannelLifecycle(t *testing.T) {
	ch, sim, _ := newTestChannel(t)
	assert.Equal(t, Configured, ch.State())
	assert.Equal(t, 0, ch.Chip())
	assert.Equal(t, 0, ch.Channel())

	require.NoError(t, ch.Start())
	assert.Equal(t, Running, ch.State())
	freq, duty, enabled := sim.Signal()
	assert.Equal(t, 400, freq)
	assert.Equal(t, 0.5, duty)
	assert.True(t, enabled)

	// Start twice is a no-op
	require.NoError(t, ch.Start())
	assert.Equal(t, Running, ch.State())

	require.NoError(t, ch.Stop())
	assert.Equal(t, Stopped, ch.State())
	_, _, enabled = sim.Signal()
	assert.False(t, enabled)
	require.NoError(t, ch.Stop())
	assert.Equal(t, Stopped, ch.State())

	require.NoError(t, ch.Start())
	assert.Equal(t, Running, ch.State())
}

func TestChannelDutyCycleClamp(t *testing.T) {
	ch, _, _ := newTestChannel(t)
	for input, expected := range map[float64]float64{
		-0.5: 0,
		0:    0,
		0.3:  0.3,
		1:    1,
		1.7:  1,
	} {
		require.NoError(t, ch.SetDutyCycle(input))
		assert.Equal(t, expected, ch.DutyCycle(), "input %v", input)
	}
}

func TestChannelDutyCycleNaN(t *testing.T) {
	ch, sim, _ := newTestChannel(t)
	require.NoError(t, ch.SetDutyCycle(math.NaN()))
	assert.Equal(t, 0.0, ch.DutyCycle())
	require.NoError(t, ch.Start())
	_, duty, enabled := sim.Signal()
	assert.Equal(t, 0.0, duty)
	assert.True(t, enabled)
	assert.Equal(t, 1.0, ClampDutyCycle(math.Inf(1)))
	assert.Equal(t, 0.0, ClampDutyCycle(math.Inf(-1)))
}

func TestChannelRejectsNonPositiveFrequency(t *testing.T) {
	ch, _, _ := newTestChannel(t)
	assert.True(t, model.IsOutOfRange(ch.SetFrequency(0)))
	assert.True(t, model.IsOutOfRange(ch.SetFrequency(-10)))
	assert.Equal(t, DefaultFrequency, ch.Frequency())

	c := bridge.NewSimulatedController(zerolog.Nop())
	defer c.Close()
	drv, err := c.OpenPWM(pins.GPIO13)
	require.NoError(t, err)
	_, err = NewChannel(drv, 0, 0.5)
	assert.True(t, model.IsOutOfRange(err))
}

func TestChannelPushesChangesWhileRunning(t *testing.T) {
	ch, sim, _ := newTestChannel(t)

	// Not pushed while configured
	require.NoError(t, ch.SetFrequency(1000))
	freq, _, _ := sim.Signal()
	assert.Equal(t, 400, freq)

	require.NoError(t, ch.Start())
	freq, _, _ = sim.Signal()
	assert.Equal(t, 1000, freq)

	require.NoError(t, ch.SetDutyCycle(0.75))
	require.NoError(t, ch.SetFrequency(50))
	freq, duty, enabled := sim.Signal()
	assert.Equal(t, 50, freq)
	assert.Equal(t, 0.75, duty)
	assert.True(t, enabled)
}

func TestChannelClose(t *testing.T) {
	ch, sim, c := newTestChannel(t)
	require.NoError(t, ch.Start())

	require.NoError(t, ch.Close())
	assert.Equal(t, Disposed, ch.State())
	_, _, enabled := sim.Signal()
	assert.False(t, enabled)
	assert.False(t, c.IsPinInUse(pins.GPIO18))

	require.NoError(t, ch.Close())
	assert.True(t, model.IsObjectDisposed(ch.Start()))
	assert.True(t, model.IsObjectDisposed(ch.Stop()))
	assert.True(t, model.IsObjectDisposed(ch.SetFrequency(100)))
	assert.True(t, model.IsObjectDisposed(ch.SetDutyCycle(0.1)))
}

type failingDriver struct {
	bridge.PWMDriver
	failConfigure bool
}

func (d *failingDriver) Configure(frequency int, dutyCycle float64) error {
	if d.failConfigure {
		return errors.New("configure failed")
	}
	return d.PWMDriver.Configure(frequency, dutyCycle)
}

func TestChannelKeepsValueWhenPushFails(t *testing.T) {
	c := bridge.NewSimulatedController(zerolog.Nop())
	defer c.Close()
	drv, err := c.OpenPWM(pins.GPIO12)
	require.NoError(t, err)
	fd := &failingDriver{PWMDriver: drv}
	ch, err := NewChannel(fd, 100, 0.2)
	require.NoError(t, err)
	require.NoError(t, ch.Start())

	fd.failConfigure = true
	assert.Error(t, ch.SetDutyCycle(0.9))
	assert.Equal(t, 0.2, ch.DutyCycle())
	assert.Equal(t, Running, ch.State())
}
