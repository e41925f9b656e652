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
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqttapi "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binkynet/LocalGPIO/model"
)

func testEvent(source string, value float64) model.MeasurementEvent {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return model.MeasurementEvent{
		Source:    source,
		Timestamp: ts,
		Measurements: []model.Measurement{
			{Name: "value", Unit: model.UnitState, Timestamp: ts, Value: value},
		},
	}
}

func TestHubFanOut(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	var mutex sync.Mutex
	var a, b []string
	cancelA := hub.Subscribe(func(e model.MeasurementEvent) {
		mutex.Lock()
		defer mutex.Unlock()
		a = append(a, e.Source)
	})
	hub.Subscribe(func(e model.MeasurementEvent) {
		mutex.Lock()
		defer mutex.Unlock()
		b = append(b, e.Source)
	})
	hub.Subscribe(func(e model.MeasurementEvent) {
		panic("sink failure")
	})

	hub.Publish(testEvent("door", 1))
	require.Eventually(t, func() bool {
		mutex.Lock()
		defer mutex.Unlock()
		return len(a) == 1 && len(b) == 1
	}, time.Second, time.Millisecond)

	// Cancelling one sink leaves the others subscribed
	cancelA()
	cancelA()
	hub.Publish(testEvent("lamp", 0))
	hub.Close()

	mutex.Lock()
	defer mutex.Unlock()
	assert.Equal(t, []string{"door"}, a)
	assert.Equal(t, []string{"door", "lamp"}, b)
}

func TestHubDeliversInOrder(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	var values []float64
	hub.Subscribe(func(e model.MeasurementEvent) {
		values = append(values, e.Measurements[0].Value)
	})
	for i := 0; i < 2000; i++ {
		hub.Publish(testEvent("fan", float64(i)))
	}
	hub.Close()

	require.NotEmpty(t, values)
	for i := 1; i < len(values); i++ {
		require.Less(t, values[i-1], values[i], "index %d", i)
	}
	assert.Equal(t, 1999.0, values[len(values)-1])
}

func TestHubDropsOldestWhenFull(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	started := make(chan struct{})
	release := make(chan struct{})
	var values []float64
	hub.Subscribe(func(e model.MeasurementEvent) {
		if len(values) == 0 {
			close(started)
			<-release
		}
		values = append(values, e.Measurements[0].Value)
	})

	hub.Publish(testEvent("fan", 0))
	<-started
	total := DefaultQueueSize + 10
	for i := 1; i <= total; i++ {
		hub.Publish(testEvent("fan", float64(i)))
	}
	close(release)
	hub.Close()

	require.Len(t, values, DefaultQueueSize+1)
	assert.Equal(t, 0.0, values[0])
	assert.Equal(t, float64(total-DefaultQueueSize+1), values[1])
	assert.Equal(t, float64(total), values[len(values)-1])
}

func TestHubPublishAfterClose(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	hub.Close()
	hub.Close()
	assert.NotPanics(t, func() { hub.Publish(testEvent("door", 1)) })
}

func TestMetricsSink(t *testing.T) {
	sink := NewMetricsSink()
	sink(testEvent("metrics-door", 1))
	assert.Equal(t, 1.0, testutil.ToFloat64(measurementGauge.WithLabelValues("metrics-door", "value", model.UnitState)))
	sink(testEvent("metrics-door", 0))
	assert.Equal(t, 0.0, testutil.ToFloat64(measurementGauge.WithLabelValues("metrics-door", "value", model.UnitState)))
}

func TestLogSink(t *testing.T) {
	assert.NotPanics(t, func() { NewLogSink(zerolog.Nop())(testEvent("door", 1)) })
}

type testToken struct {
	err error
}

func (t *testToken) Wait() bool { return true }
func (t *testToken) WaitTimeout(time.Duration) bool { return true }
func (t *testToken) Done() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}
func (t *testToken) Error() error { return t.err }

type published struct {
	topic   string
	payload []byte
}

type testClient struct {
	mutex        sync.Mutex
	messages     []published
	disconnected bool
}

func (c *testClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqttapi.Token {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.messages = append(c.messages, published{topic: topic, payload: payload.([]byte)})
	return &testToken{}
}

func (c *testClient) Disconnect(quiesce uint) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.disconnected = true
}

func (c *testClient) Messages() []published {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]published(nil), c.messages...)
}

func TestMQTTSinkPublishes(t *testing.T) {
	sink := NewMQTTSink(model.MQTTConfig{Broker: "localhost:1883", TopicPrefix: "house/"}, zerolog.Nop())
	client := &testClient{}
	sink.connect = func() (mqttClient, error) { return client, nil }
	assert.Equal(t, "house/door/measurements", sink.Topic("door"))

	// Queued before running
	sink.Handle(testEvent("door", 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- sink.Run(ctx) }()
	sink.Handle(testEvent("lamp", 0))

	require.Eventually(t, func() bool { return len(client.Messages()) == 2 }, time.Second, time.Millisecond)
	msgs := client.Messages()
	assert.Equal(t, "house/door/measurements", msgs[0].topic)
	assert.Equal(t, "house/lamp/measurements", msgs[1].topic)
	var evt model.MeasurementEvent
	require.NoError(t, json.Unmarshal(msgs[0].payload, &evt))
	assert.Equal(t, "door", evt.Source)
	m, found := evt.Get("value", model.UnitState)
	require.True(t, found)
	assert.Equal(t, 1.0, m.Value)

	cancel()
	require.NoError(t, <-done)
	client.mutex.Lock()
	assert.True(t, client.disconnected)
	client.mutex.Unlock()
}

func TestMQTTSinkDropsOldest(t *testing.T) {
	sink := NewMQTTSink(model.MQTTConfig{Broker: "localhost:1883"}, zerolog.Nop())
	for i := 0; i < mqttQueueSize+10; i++ {
		sink.Handle(testEvent("door", float64(i)))
	}
	require.Len(t, sink.queue, mqttQueueSize)
	first := <-sink.queue
	assert.Equal(t, 10.0, first.Measurements[0].Value)
	assert.Equal(t, "localgpio/door/measurements", sink.Topic("door"))
}
