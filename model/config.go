package model

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/binkynet/LocalGPIO/pkg/pins"
)

// LocalConfiguration holds the configuration of a single local GPIO worker.
type LocalConfiguration struct {
	// Type of pin controller to use
	Controller ControllerType `yaml:"controller,omitempty"`
	// Scheduling of cyclic components
	Scheduler SchedulerConfig `yaml:"scheduler,omitempty"`
	// Optional MQTT publishing of measurements
	MQTT MQTTConfig `yaml:"mqtt,omitempty"`
	// List of components controlled by the local worker
	Components []Component `yaml:"components,omitempty"`
}

// SchedulerConfig holds the settings of the cyclic scheduler.
type SchedulerConfig struct {
	// Interval between two scheduler ticks
	TickInterval time.Duration `yaml:"tick_interval,omitempty"`
	// Maximum number of concurrent executions
	Workers int `yaml:"workers,omitempty"`
}

const (
	DefaultTickInterval = time.Millisecond * 100
	DefaultWorkers      = 4
)

// GetTickInterval returns the tick interval, or its default.
func (c SchedulerConfig) GetTickInterval() time.Duration {
	if c.TickInterval > 0 {
		return c.TickInterval
	}
	return DefaultTickInterval
}

// GetWorkers returns the number of workers, or its default.
func (c SchedulerConfig) GetWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return DefaultWorkers
}

// MQTTConfig holds the settings of the MQTT measurement sink.
type MQTTConfig struct {
	// Broker address (host:port). Empty disables MQTT.
	Broker      string `yaml:"broker,omitempty"`
	ClientID    string `yaml:"client_id,omitempty"`
	UserName    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"`
}

// IsEnabled returns true if a broker is configured.
func (c MQTTConfig) IsEnabled() bool {
	return c.Broker != ""
}

// GetTopicPrefix returns the topic prefix, or its default.
func (c MQTTConfig) GetTopicPrefix() string {
	if c.TopicPrefix != "" {
		return c.TopicPrefix
	}
	return "localgpio"
}

// LoadConfiguration reads and validates a YAML configuration file.
func LoadConfiguration(path string) (LocalConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LocalConfiguration{}, errors.Wrapf(err, "failed to read %s", path)
	}
	return ParseConfiguration(data)
}

// ParseConfiguration parses and validates a YAML configuration.
func ParseConfiguration(data []byte) (LocalConfiguration, error) {
	var c LocalConfiguration
	if err := yaml.Unmarshal(data, &c); err != nil {
		return LocalConfiguration{}, errors.Wrapf(ValidationError, "invalid YAML: %s", err.Error())
	}
	if err := c.Validate(); err != nil {
		return LocalConfiguration{}, err
	}
	return c, nil
}

// ComponentByID returns the component with given ID.
// Return false if not found.
func (c LocalConfiguration) ComponentByID(id string) (Component, bool) {
	for _, x := range c.Components {
		if x.ID == id {
			return x, true
		}
	}
	return Component{}, false
}

// Validate the given configuration, returning nil on ok,
// or an error upon validation issues.
func (c LocalConfiguration) Validate() error {
	if err := c.Controller.Validate(); err != nil {
		return maskAny(err)
	}
	if c.Scheduler.TickInterval < 0 {
		return errors.Wrapf(ValidationError, "negative scheduler tick interval %s", c.Scheduler.TickInterval)
	}
	if c.Scheduler.Workers < 0 {
		return errors.Wrapf(ValidationError, "negative number of scheduler workers %d", c.Scheduler.Workers)
	}
	ids := make(map[string]struct{})
	usedPins := make(map[pins.ID]string)
	usedPWM := make(map[[2]int]string)
	for _, x := range c.Components {
		if err := x.Validate(); err != nil {
			return maskAny(err)
		}
		if _, found := ids[x.ID]; found {
			return errors.Wrapf(ValidationError, "duplicate component ID '%s'", x.ID)
		}
		ids[x.ID] = struct{}{}
		if !x.Type.UsesPin() {
			continue
		}
		pin, _ := x.PinID()
		if other, found := usedPins[pin]; found {
			return errors.Wrapf(ValidationError, "pin %s of component '%s' is already used by '%s'", pin, x.ID, other)
		}
		usedPins[pin] = x.ID
		if x.Type == ComponentTypePWM {
			key := [2]int{pins.PWMChip(pin), pins.PWMChannel(pin)}
			if other, found := usedPWM[key]; found {
				return errors.Wrapf(ValidationError, "PWM channel of pin %s in component '%s' is already used by '%s'", pin, x.ID, other)
			}
			usedPWM[key] = x.ID
		}
	}
	return nil
}
