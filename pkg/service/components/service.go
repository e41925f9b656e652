// Copyright 2020 Ewout Prangsma
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

package components

import (
	"context"
	"sort"

	"github.com/benbjohnson/clock"
	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/binkynet/LocalGPIO/model"
	"github.com/binkynet/LocalGPIO/pkg/service/bridge"
	"github.com/binkynet/LocalGPIO/pkg/service/cyclic"
)

// Service contains the API that is exposed by the component service.
type Service interface {
	// Configure is called once to assign all components to their pins.
	Configure(ctx context.Context) error
	// Components returns all configured components, sorted by ID.
	Components() []Component
	// ComponentByID returns the configured component with given ID.
	ComponentByID(id string) (Component, bool)
	// Close all components.
	Close() error
}

type service struct {
	log                  zerolog.Logger
	configs              map[string]model.Component
	components           map[string]Component
	configuredComponents map[string]Component
}

// NewService instantiates a new Service and Component's for the given
// component configurations.
func NewService(configs []model.Component, controller bridge.Controller, clk clock.Clock, log zerolog.Logger) (Service, error) {
	s := &service{
		log:                  log.With().Str("component", "component-service").Logger(),
		configs:              make(map[string]model.Component),
		components:           make(map[string]Component),
		configuredComponents: make(map[string]Component),
	}
	for _, c := range configs {
		log := log.With().
			Str("id", c.ID).
			Str("type", string(c.Type)).
			Logger()
		log.Debug().Msg("creating component...")
		method, err := cyclic.ParseComputationMethod(c.ComputationMethod)
		if err != nil {
			return nil, errors.Wrapf(model.ValidationError, "component '%s': %s", c.ID, err.Error())
		}
		opts := Options{
			Period:             c.Period,
			ComputationMethod:  method,
			NotifyOnChangeOnly: c.NotifyOnChangeOnly,
			Clock:              clk,
		}
		var comp Component
		switch c.Type {
		case model.ComponentTypeInput:
			comp = NewInput(c.ID, controller, opts, log)
		case model.ComponentTypeOutput:
			out := NewOutput(c.ID, controller, opts, log)
			out.SetValue(bridge.PinValue(c.Value))
			comp = out
		case model.ComponentTypePWM:
			p := NewPWM(c.ID, controller, opts, log)
			if err := p.SetFrequency(c.GetFrequency()); err != nil {
				return nil, errors.Wrapf(err, "component '%s'", c.ID)
			}
			if err := p.SetDutyCycle(c.GetDutyCycle()); err != nil {
				return nil, errors.Wrapf(err, "component '%s'", c.ID)
			}
			p.SetEnabled(c.Enabled)
			comp = p
		case model.ComponentTypeTemperatureSimulator:
			comp = NewTemperatureSimulator(c.ID, c.MinTemperature, c.MaxTemperature, c.AcquisitionTime, opts, log)
		default:
			return nil, errors.Wrapf(model.ValidationError, "unsupported component type '%s'", c.Type)
		}
		s.configs[c.ID] = c
		s.components[c.ID] = comp
	}
	log.Debug().Msgf("created %d components", len(s.components))
	componentsCreatedTotal.Set(float64(len(s.components)))
	return s, nil
}

// Configure assigns all components to their pins.
// Components that cannot be configured are left out.
func (s *service) Configure(ctx context.Context) error {
	var ae aerr.AggregateError
	configured := make(map[string]Component)
	for _, id := range sortedKeys(s.components) {
		comp := s.components[id]
		cfg := s.configs[id]
		log := s.log.With().Str("id", id).Logger()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if cfg.Type.UsesPin() {
			pin, err := cfg.PinID()
			if err == nil {
				err = comp.SetPin(pin)
			}
			if err != nil {
				log.Error().Err(err).Msg("Failed to configure component")
				ae.Add(errors.Wrapf(err, "component '%s'", id))
				continue
			}
		}
		configured[id] = comp
		log.Debug().Str("pin", comp.Pin().String()).Msg("configured component")
	}
	s.configuredComponents = configured
	componentsConfiguredTotal.Set(float64(len(configured)))
	return ae.AsError()
}

// Components returns all configured components, sorted by ID.
func (s *service) Components() []Component {
	return lo.Map(sortedKeys(s.configuredComponents), func(id string, _ int) Component {
		return s.configuredComponents[id]
	})
}

// ComponentByID returns the configured component with given ID.
func (s *service) ComponentByID(id string) (Component, bool) {
	c, found := s.configuredComponents[id]
	return c, found
}

// Close all components.
func (s *service) Close() error {
	var ae aerr.AggregateError
	for _, id := range sortedKeys(s.components) {
		if err := s.components[id].Close(); err != nil {
			s.log.Warn().Err(err).Str("id", id).Msg("Failed to close component")
			ae.Add(err)
		}
	}
	return ae.AsError()
}

func sortedKeys(m map[string]Component) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
