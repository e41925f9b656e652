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

package events

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/binkynet/LocalGPIO/model"
)

const (
	// DefaultQueueSize is the number of events buffered by a Hub.
	DefaultQueueSize = 256
)

// Hub fans out measurement events to any number of sinks.
// Events are delivered in publication order by a single dispatcher.
// When the queue is full, the oldest event is dropped.
type Hub struct {
	log    zerolog.Logger
	mutex  sync.RWMutex
	sinks  []sink
	lastID int
	queue  chan model.MeasurementEvent
	done   chan struct{}
	closed bool
}

type sink struct {
	id int
	cb func(model.MeasurementEvent)
}

// NewHub creates a new, open Hub and starts its dispatcher.
func NewHub(log zerolog.Logger) *Hub {
	h := &Hub{
		log:   log.With().Str("component", "event-hub").Logger(),
		queue: make(chan model.MeasurementEvent, DefaultQueueSize),
		done:  make(chan struct{}),
	}
	go h.dispatch()
	return h
}

// Publish the given event to all sinks without blocking.
// Events published after Close are dropped.
func (h *Hub) Publish(evt model.MeasurementEvent) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if h.closed {
		return
	}
	publishedTotal.WithLabelValues(evt.Source).Inc()
	for {
		select {
		case h.queue <- evt:
			return
		default:
			// Queue full, drop oldest
			select {
			case <-h.queue:
				hubDroppedTotal.Inc()
			default:
			}
		}
	}
}

// Subscribe adds a sink. The returned function removes it again.
func (h *Hub) Subscribe(cb func(model.MeasurementEvent)) func() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.lastID++
	id := h.lastID
	// Copy on write, the dispatcher iterates a snapshot
	h.sinks = append(append([]sink(nil), h.sinks...), sink{id: id, cb: cb})
	return func() {
		h.mutex.Lock()
		defer h.mutex.Unlock()
		h.sinks = lo.Reject(h.sinks, func(s sink, _ int) bool { return s.id == id })
	}
}

// dispatch delivers queued events until the queue is closed.
func (h *Hub) dispatch() {
	defer close(h.done)
	for evt := range h.queue {
		h.mutex.RLock()
		sinks := h.sinks
		h.mutex.RUnlock()
		for _, s := range sinks {
			h.deliver(s.cb, evt)
		}
	}
}

func (h *Hub) deliver(cb func(model.MeasurementEvent), evt model.MeasurementEvent) {
	defer func() {
		if err := recover(); err != nil {
			h.log.Error().Interface("err", err).Msg("Recovered from panic in event sink")
		}
	}()
	cb(evt)
}

// Close the hub. Events already queued are delivered before Close returns.
func (h *Hub) Close() {
	h.mutex.Lock()
	if h.closed {
		h.mutex.Unlock()
		<-h.done
		return
	}
	h.closed = true
	close(h.queue)
	h.mutex.Unlock()
	<-h.done
}
