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
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binkynet/LocalGPIO/model"
	"github.com/binkynet/LocalGPIO/pkg/pins"
)

// fakeLines emulates sysfs GPIO lines.
type fakeLines struct {
	mutex      sync.Mutex
	levels     map[int]bool
	directions map[int]string
	unexported []int
}

func newFakeLines() *fakeLines {
	return &fakeLines{
		levels:     make(map[int]bool),
		directions: make(map[int]string),
	}
}

type fakeLine struct {
	lines *fakeLines
	pin   int
}

func (l fakeLine) Read() (bool, error) {
	l.lines.mutex.Lock()
	defer l.lines.mutex.Unlock()
	return l.lines.levels[l.pin], nil
}

func (l fakeLine) Write(v bool) error {
	l.lines.mutex.Lock()
	defer l.lines.mutex.Unlock()
	l.lines.levels[l.pin] = v
	return nil
}

func (f *fakeLines) Input(pin int) (inputLine, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.directions[pin] = "in"
	return fakeLine{lines: f, pin: pin}, nil
}

func (f *fakeLines) Output(pin int, initialValue bool) (outputLine, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.directions[pin] = "out"
	f.levels[pin] = initialValue
	return fakeLine{lines: f, pin: pin}, nil
}

func (f *fakeLines) Unexport(pin int) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	delete(f.directions, pin)
	f.unexported = append(f.unexported, pin)
	return nil
}

func (f *fakeLines) set(pin int, v bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.levels[pin] = v
}

func (f *fakeLines) direction(pin int) string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.directions[pin]
}

func TestRaspberryPiPinLifecycle(t *testing.T) {
	lines := newFakeLines()
	c := newRaspberryPiController(zerolog.Nop(), lines, t.TempDir())
	defer c.Close()

	require.True(t, model.IsInvalidState(c.Write(pins.GPIO18, High)))

	require.NoError(t, c.OpenPin(pins.GPIO18, Output))
	assert.Equal(t, "out", lines.direction(18))
	require.NoError(t, c.Write(pins.GPIO18, High))
	v, err := c.Read(pins.GPIO18)
	require.NoError(t, err)
	assert.Equal(t, High, v)
	require.NoError(t, c.Toggle(pins.GPIO18))
	lvl, _ := fakeLine{lines: lines, pin: 18}.Read()
	assert.False(t, lvl)

	require.NoError(t, c.ClosePin(pins.GPIO18))
	assert.Equal(t, []int{18}, lines.unexported)
	_, err = c.Read(pins.GPIO18)
	assert.True(t, model.IsInvalidState(err))
}

func TestRaspberryPiInputLatchesWrites(t *testing.T) {
	lines := newFakeLines()
	c := newRaspberryPiController(zerolog.Nop(), lines, t.TempDir())
	defer c.Close()

	require.NoError(t, c.OpenPin(pins.GPIO23, Input))
	lines.set(23, true)
	v, err := c.Read(pins.GPIO23)
	require.NoError(t, err)
	assert.Equal(t, High, v)

	// Latched value is driven once the line becomes an output
	require.NoError(t, c.Write(pins.GPIO23, High))
	lines.set(23, false)
	require.NoError(t, c.SetPinMode(pins.GPIO23, Output))
	assert.Equal(t, "out", lines.direction(23))
	lvl, _ := fakeLine{lines: lines, pin: 23}.Read()
	assert.True(t, lvl)
}

func TestRaspberryPiWatcher(t *testing.T) {
	lines := newFakeLines()
	c := newRaspberryPiController(zerolog.Nop(), lines, t.TempDir())
	c.pollInterval = time.Millisecond
	defer c.Close()

	require.NoError(t, c.OpenPin(pins.GPIO5, Input))
	events := make(chan PinChangeEvent, 4)
	_, err := c.RegisterPinChangeCallback(pins.GPIO5, Rising, func(evt PinChangeEvent) {
		events <- evt
	})
	require.NoError(t, err)

	// Let the watcher take its first sample
	time.Sleep(time.Millisecond * 20)
	lines.set(5, true)
	select {
	case evt := <-events:
		assert.Equal(t, pins.GPIO5, evt.Pin)
		assert.Equal(t, Rising, evt.Type)
	case <-time.After(time.Second):
		t.Fatal("no rising edge detected")
	}
}

func TestRaspberryPiPWM(t *testing.T) {
	root := t.TempDir()
	chipPath := filepath.Join(root, "pwmchip0")
	require.NoError(t, os.MkdirAll(filepath.Join(chipPath, "pwm1"), 0o755))
	c := newRaspberryPiController(zerolog.Nop(), newFakeLines(), root)

	_, err := c.OpenPWM(pins.GPIO4)
	assert.True(t, model.IsIncompatibleCapability(err))

	drv, err := c.OpenPWM(pins.GPIO19)
	require.NoError(t, err)
	require.NoError(t, drv.Configure(400, 0.5))
	require.NoError(t, drv.Enable())

	readFile := func(name string) string {
		data, err := os.ReadFile(filepath.Join(chipPath, "pwm1", name))
		require.NoError(t, err)
		return strings.TrimSpace(string(data))
	}
	assert.Equal(t, "2500000", readFile("period"))
	assert.Equal(t, "1250000", readFile("duty_cycle"))
	assert.Equal(t, "1", readFile("enable"))
	assert.True(t, c.IsPinInUse(pins.GPIO19))

	require.NoError(t, c.Close())
	assert.Equal(t, "0", readFile("enable"))
	data, err := os.ReadFile(filepath.Join(chipPath, "unexport"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))
}
