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
	"fmt"
	"strings"
	"time"

	mqttapi "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/binkynet/LocalGPIO/model"
	"github.com/binkynet/LocalGPIO/pkg/service/util"
)

const (
	mqttQueueSize      = 512
	mqttPublishTimeout = time.Millisecond * 200
	mqttQuiesce        = 250
)

// mqttClient is the part of the paho client used by the sink.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqttapi.Token
	Disconnect(quiesce uint)
}

// MQTTSink publishes measurement events as JSON on
// <prefix>/<component-id>/measurements.
type MQTTSink struct {
	log     zerolog.Logger
	config  model.MQTTConfig
	queue   chan model.MeasurementEvent
	connect func() (mqttClient, error)
}

// NewMQTTSink creates a sink for the given broker configuration.
// Events are queued until Run is called.
func NewMQTTSink(config model.MQTTConfig, log zerolog.Logger) *MQTTSink {
	s := &MQTTSink{
		log:    log.With().Str("component", "mqtt-sink").Str("broker", config.Broker).Logger(),
		config: config,
		queue:  make(chan model.MeasurementEvent, mqttQueueSize),
	}
	s.connect = s.dial
	return s
}

// Handle queues the given event for publishing.
// When the queue is full, the oldest events are dropped.
func (s *MQTTSink) Handle(evt model.MeasurementEvent) {
	for attempt := 0; attempt < 10; attempt++ {
		select {
		case s.queue <- evt:
			return
		default:
			// Queue full; Take 1 out and try again
			select {
			case <-s.queue:
				mqttDroppedTotal.Inc()
			default:
				// Also continue
			}
		}
	}
}

// Topic returns the topic for events of the component with given ID.
func (s *MQTTSink) Topic(componentID string) string {
	return strings.TrimSuffix(s.config.GetTopicPrefix(), "/") + "/" + componentID + "/measurements"
}

// Run publishes queued events until the given context is canceled.
// Connection failures are retried.
func (s *MQTTSink) Run(ctx context.Context) error {
	return util.UntilCanceled(ctx, s.log, "publishing measurements to MQTT", func() error {
		client, err := s.connect()
		if err != nil {
			return err
		}
		mqttConnectsTotal.Inc()
		s.log.Info().Msg("Connected to MQTT broker")
		defer client.Disconnect(mqttQuiesce)
		for {
			select {
			case evt := <-s.queue:
				if err := s.publish(client, evt); err != nil {
					return err
				}
			case <-ctx.Done():
				// Context canceled
				return nil
			}
		}
	})
}

// publish a single event.
func (s *MQTTSink) publish(client mqttClient, evt model.MeasurementEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		mqttMessagesTotal.WithLabelValues("invalid").Inc()
		s.log.Warn().Err(err).Str("source", evt.Source).Msg("Failed to encode measurements")
		return nil
	}
	topic := s.Topic(evt.Source)
	token := client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		mqttMessagesTotal.WithLabelValues("timeout").Inc()
		s.log.Error().
			Str("topic", topic).
			Msg("failed to deliver MQTT message in time")
		return nil
	}
	if err := token.Error(); err != nil {
		mqttMessagesTotal.WithLabelValues("failed").Inc()
		return errors.Wrapf(err, "failed to publish to '%s'", topic)
	}
	mqttMessagesTotal.WithLabelValues("delivered").Inc()
	return nil
}

// dial connects to the configured broker.
func (s *MQTTSink) dial() (mqttClient, error) {
	broker := s.config.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	clientID := s.config.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("localgpio-%d", time.Now().UnixNano())
	}
	opts := mqttapi.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID)
	if s.config.UserName != "" {
		opts.SetUsername(s.config.UserName)
		opts.SetPassword(s.config.Password)
	}
	opts.SetKeepAlive(2 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(false)

	client := mqttapi.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.Wrap(token.Error(), "failed to connect to mqtt")
	}
	return client, nil
}
