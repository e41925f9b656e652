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
	"sync"

	"github.com/rs/zerolog"

	"github.com/binkynet/LocalGPIO/pkg/pins"
)

type callbackEntry struct {
	events PinEventType
	cb     PinChangeCallback
}

// callbackRegistry holds pin change callbacks per pin.
type callbackRegistry struct {
	mutex   sync.Mutex
	lastID  int
	entries map[pins.ID]map[int]callbackEntry
}

// add a callback, returning a function that removes it again.
func (r *callbackRegistry) add(pin pins.ID, events PinEventType, cb PinChangeCallback) func() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.entries == nil {
		r.entries = make(map[pins.ID]map[int]callbackEntry)
	}
	m, found := r.entries[pin]
	if !found {
		m = make(map[int]callbackEntry)
		r.entries[pin] = m
	}
	r.lastID++
	id := r.lastID
	m[id] = callbackEntry{events: events, cb: cb}
	return func() {
		r.mutex.Lock()
		defer r.mutex.Unlock()
		if m, found := r.entries[pin]; found {
			delete(m, id)
		}
	}
}

// removeAll callbacks of the given pin.
func (r *callbackRegistry) removeAll(pin pins.ID) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.entries, pin)
}

// watched returns all pins that have at least one callback.
func (r *callbackRegistry) watched() []pins.ID {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	var result []pins.ID
	for pin, m := range r.entries {
		if len(m) > 0 {
			result = append(result, pin)
		}
	}
	return result
}

// fire invokes all callbacks registered for the pin and edge of the event.
// Must not be called while holding a pin lock.
func (r *callbackRegistry) fire(log zerolog.Logger, evt PinChangeEvent) {
	if evt.Type == 0 {
		return
	}
	r.mutex.Lock()
	var cbs []PinChangeCallback
	for _, e := range r.entries[evt.Pin] {
		if e.events&evt.Type != 0 {
			cbs = append(cbs, e.cb)
		}
	}
	r.mutex.Unlock()

	for _, cb := range cbs {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error().
						Str("pin", evt.Pin.String()).
						Interface("panic", rec).
						Msg("Pin change callback panicked")
				}
			}()
			cb(evt)
		}()
	}
}
