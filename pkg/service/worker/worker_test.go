package worker

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binkynet/LocalGPIO/model"
	"github.com/binkynet/LocalGPIO/pkg/pins"
	"github.com/binkynet/LocalGPIO/pkg/service/bridge"
)

const testConfig = `
controller: sim
scheduler:
  tick_interval: 1s
  workers: 3
components:
  - id: door
    type: input
    pin: GPIO17
  - id: lamp
    type: output
    pin: GPIO27
    value: true
  - id: fan
    type: pwm
    pin: GPIO18
    enabled: true
`

func TestNewServiceValidates(t *testing.T) {
	ctrl := bridge.NewSimulatedController(zerolog.Nop())
	defer ctrl.Close()
	_, err := NewService(Config{}, Dependencies{Log: zerolog.Nop()})
	assert.True(t, model.IsValidation(err))

	conf := model.LocalConfiguration{
		Components: []model.Component{
			{ID: "a", Type: model.ComponentTypeInput, Pin: "GPIO4"},
			{ID: "b", Type: model.ComponentTypeOutput, Pin: "GPIO4"},
		},
	}
	_, err = NewService(Config{LocalConfiguration: conf}, Dependencies{Log: zerolog.Nop(), Controller: ctrl})
	assert.True(t, model.IsValidation(err))
}

func TestRun(t *testing.T) {
	conf, err := model.ParseConfiguration([]byte(testConfig))
	require.NoError(t, err)
	ctrl := bridge.NewSimulatedController(zerolog.Nop())
	defer ctrl.Close()
	clk := clock.NewMock()
	svc, err := NewService(Config{
		LocalConfiguration: conf,
		ProgramVersion:     "test",
	}, Dependencies{
		Log:        zerolog.Nop(),
		Controller: ctrl,
		Clock:      clk,
	})
	require.NoError(t, err)
	assert.False(t, svc.Status().Running)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- svc.Run(ctx) }()

	// First tick executes all components
	require.Eventually(t, func() bool {
		v, err := ctrl.Read(pins.GPIO27)
		return err == nil && v == bridge.High
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		sim, found := ctrl.PWM(0, 0)
		if !found {
			return false
		}
		_, _, enabled := sim.Signal()
		return enabled
	}, time.Second, time.Millisecond)

	status := svc.Status()
	assert.True(t, status.Running)
	assert.Equal(t, "test", status.Version)
	assert.Equal(t, "sim", status.Controller)
	assert.Equal(t, []string{"GPIO17", "GPIO27"}, status.OpenPins)
	require.Len(t, status.Components, 3)
	assert.Equal(t, "door", status.Components[0].ID)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second * 5):
		t.Fatal("Run did not return after cancel")
	}
	assert.Empty(t, ctrl.OpenPins())
	assert.False(t, ctrl.IsPinInUse(pins.GPIO18))
	assert.False(t, svc.Status().Running)
}
