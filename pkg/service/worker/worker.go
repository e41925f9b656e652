package worker

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/binkynet/LocalGPIO/model"
	"github.com/binkynet/LocalGPIO/pkg/pins"
	"github.com/binkynet/LocalGPIO/pkg/service/bridge"
	"github.com/binkynet/LocalGPIO/pkg/service/components"
	"github.com/binkynet/LocalGPIO/pkg/service/events"
	"github.com/binkynet/LocalGPIO/pkg/service/scheduler"
)

// Service contains the API exposed by the worker service
type Service interface {
	// Run the worker service until the given context is cancelled.
	Run(ctx context.Context) error
	// Status returns a snapshot of the worker.
	Status() Status
}

type Config struct {
	model.LocalConfiguration
	ProgramVersion string
	HostID         string
}

type Dependencies struct {
	Log        zerolog.Logger
	Controller bridge.Controller
	Clock      clock.Clock
}

// Status is a snapshot of a running worker.
type Status struct {
	Version    string              `json:"version"`
	HostID     string              `json:"host_id"`
	Controller string              `json:"controller"`
	StartedAt  time.Time           `json:"started_at"`
	Uptime     string              `json:"uptime"`
	Running    bool                `json:"running"`
	OpenPins   []string            `json:"open_pins"`
	Components []components.Status `json:"components"`
}

// NewService instantiates a new Service.
func NewService(config Config, deps Dependencies) (Service, error) {
	if deps.Controller == nil {
		return nil, errors.Wrap(model.ValidationError, "controller is missing")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	return &service{
		config:       config,
		Dependencies: deps,
	}, nil
}

type service struct {
	config Config
	Dependencies

	mutex     sync.Mutex
	startedAt time.Time
	compSvc   components.Service
}

// Run the worker service until the given context is cancelled.
func (s *service) Run(ctx context.Context) error {
	log := s.Log.With().Str("component", "worker").Logger()

	// Build components service
	log.Debug().Msg("build components service")
	compSvc, err := components.NewService(s.config.Components, s.Controller, s.Clock, s.Log)
	if err != nil {
		log.Debug().Err(err).Msg("components.NewService failed")
		return errors.Wrap(err, "components.NewService failed")
	}
	defer func() {
		log.Debug().Msg("closing components service")
		s.mutex.Lock()
		s.compSvc = nil
		s.mutex.Unlock()
		if err := compSvc.Close(); err != nil {
			log.Warn().Err(err).Msg("Not all components closed cleanly")
		}
	}()

	// Configure components
	log.Debug().Msg("configure components")
	if err := compSvc.Configure(ctx); err != nil {
		// Log error
		log.Error().Err(err).Msg("Not all components are configured")
	}
	// Stop fast if context canceled
	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Build event hub & sinks
	hub := events.NewHub(s.Log)
	defer hub.Close()
	hub.Subscribe(events.NewLogSink(s.Log))
	hub.Subscribe(events.NewMetricsSink())
	var mqttSink *events.MQTTSink
	if mqttConfig := s.config.MQTT; mqttConfig.IsEnabled() {
		if mqttConfig.ClientID == "" && s.config.HostID != "" {
			mqttConfig.ClientID = "localgpio-" + s.config.HostID
		}
		mqttSink = events.NewMQTTSink(mqttConfig, s.Log)
		hub.Subscribe(mqttSink.Handle)
	}

	// Schedule components
	sched := scheduler.New(scheduler.Config{
		TickInterval: s.config.Scheduler.GetTickInterval(),
		Workers:      s.config.Scheduler.GetWorkers(),
	}, scheduler.Dependencies{
		Log:   s.Log,
		Clock: s.Clock,
	})
	comps := compSvc.Components()
	for _, c := range comps {
		cancel := c.Subscribe(hub.Publish)
		defer cancel()
		if err := sched.Add(c); err != nil {
			return errors.Wrapf(err, "failed to schedule component '%s'", c.ID())
		}
	}
	if len(comps) == 0 {
		log.Warn().Msg("no configured components, just waiting for context to be cancelled")
	}

	s.mutex.Lock()
	s.startedAt = s.Clock.Now()
	s.compSvc = compSvc
	s.mutex.Unlock()

	// Run scheduler & sinks
	g, lctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Debug().Msg("run scheduler")
		if err := sched.Run(lctx); err != nil {
			log.Error().Err(err).Msg("Run scheduler failed")
			return errors.Wrap(err, "failed to run scheduler")
		}
		log.Debug().Msg("run scheduler ended")
		return nil
	})
	if mqttSink != nil {
		g.Go(func() error {
			log.Debug().Msg("run mqtt sink")
			return mqttSink.Run(lctx)
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "Wait failed")
	}
	return nil
}

// Status returns a snapshot of the worker.
func (s *service) Status() Status {
	s.mutex.Lock()
	compSvc := s.compSvc
	startedAt := s.startedAt
	s.mutex.Unlock()

	result := Status{
		Version:    s.config.ProgramVersion,
		HostID:     s.config.HostID,
		Controller: string(s.config.Controller),
		StartedAt:  startedAt,
		Running:    compSvc != nil,
		OpenPins: lo.Map(s.Controller.OpenPins(), func(p pins.ID, _ int) string {
			return p.String()
		}),
	}
	if !startedAt.IsZero() {
		result.Uptime = strings.TrimSpace(humanize.RelTime(startedAt, s.Clock.Now(), "", ""))
	}
	if compSvc != nil {
		result.Components = lo.Map(compSvc.Components(), func(c components.Component, _ int) components.Status {
			return c.Status()
		})
	}
	return result
}
