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

package components

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/binkynet/LocalGPIO/model"
)

// publisher holds the latest measurements of a component and
// notifies subscribers synchronously.
type publisher struct {
	mutex          sync.Mutex
	source         string
	log            zerolog.Logger
	notifyOnChange bool
	measurements   []model.Measurement
	lastID         int
	subscribers    map[int]func(model.MeasurementEvent)
}

func newPublisher(source string, notifyOnChange bool, log zerolog.Logger) *publisher {
	return &publisher{
		source:         source,
		log:            log,
		notifyOnChange: notifyOnChange,
		subscribers:    make(map[int]func(model.MeasurementEvent)),
	}
}

// Measurements returns a copy of the latest measurements.
func (p *publisher) Measurements() []model.Measurement {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return append([]model.Measurement(nil), p.measurements...)
}

// Subscribe adds a callback that is invoked with every new set of
// measurements. The returned function removes the callback.
func (p *publisher) Subscribe(cb func(model.MeasurementEvent)) func() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.lastID++
	id := p.lastID
	p.subscribers[id] = cb
	return func() {
		p.mutex.Lock()
		defer p.mutex.Unlock()
		delete(p.subscribers, id)
	}
}

// sameValues returns true if both lists hold the same names, units and values.
func sameValues(a, b []model.Measurement) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Unit != b[i].Unit || a[i].Value != b[i].Value {
			return false
		}
	}
	return true
}

// publish stores the given measurements and notifies all subscribers,
// unless only changes are published and nothing changed.
// Returns true if the values changed.
func (p *publisher) publish(ms []model.Measurement, now time.Time) bool {
	p.mutex.Lock()
	changed := !sameValues(p.measurements, ms)
	p.measurements = ms
	if p.notifyOnChange && !changed {
		p.mutex.Unlock()
		return false
	}
	ids := lo.Keys(p.subscribers)
	sort.Ints(ids)
	cbs := make([]func(model.MeasurementEvent), 0, len(ids))
	for _, id := range ids {
		cbs = append(cbs, p.subscribers[id])
	}
	p.mutex.Unlock()

	evt := model.MeasurementEvent{
		Source:       p.source,
		Timestamp:    now,
		Measurements: append([]model.Measurement(nil), ms...),
	}
	for _, cb := range cbs {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					p.log.Error().Interface("panic", rec).Msg("Measurement subscriber panicked")
				}
			}()
			cb(evt)
		}()
	}
	return changed
}
