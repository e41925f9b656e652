//    Copyright 2017 Ewout Prangsma
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	terminate "github.com/pulcy/go-terminate"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/binkynet/LocalGPIO/model"
	"github.com/binkynet/LocalGPIO/pkg/environment"
	"github.com/binkynet/LocalGPIO/pkg/logging"
	"github.com/binkynet/LocalGPIO/pkg/server"
	"github.com/binkynet/LocalGPIO/pkg/service/bridge"
	"github.com/binkynet/LocalGPIO/pkg/service/worker"
)

const (
	projectName       = "BinkyNet Local GPIO"
	defaultServerPort = 7130
)

var (
	projectVersion = "dev"
	projectBuild   = "dev"
	maskAny        = errors.WithStack
)

func main() {
	var levelFlag string
	var configPath string
	var controllerType string
	var serverHost string
	var serverPort int
	var logFile string
	var workers int

	pflag.StringVarP(&levelFlag, "level", "l", "debug", "Set log level")
	pflag.StringVarP(&configPath, "config", "c", "", "Path of the YAML configuration file")
	pflag.StringVar(&controllerType, "controller", string(model.ControllerTypeAuto), "Type of pin controller to use (auto|rpi|sim)")
	pflag.StringVar(&serverHost, "host", "0.0.0.0", "Host address the HTTP server will listen on")
	pflag.IntVar(&serverPort, "port", defaultServerPort, "Port the HTTP server will listen on")
	pflag.StringVar(&logFile, "log-file", "", "Path of a rotating log file (optional)")
	pflag.IntVar(&workers, "workers", 0, "Maximum number of concurrent component executions (overrides configuration)")
	pflag.Parse()

	var outputs []io.Writer
	if logFile != "" {
		fw := logging.NewFileWriter(logFile)
		defer fw.Close()
		outputs = append(outputs, fw)
	}
	logger, _, err := logging.NewLogger(levelFlag, outputs...)
	if err != nil {
		Exitf("Failed to initialize logging: %v\n", err)
	}

	conf, err := loadConfiguration(configPath)
	if err != nil {
		Exitf("Failed to load configuration: %v\n", err)
	}
	if pflag.CommandLine.Changed("controller") || conf.Controller == "" {
		conf.Controller = model.ControllerType(controllerType)
	}
	if workers > 0 {
		conf.Scheduler.Workers = workers
	}
	if conf.Controller == model.ControllerTypeAuto {
		conf.Controller = environment.AutoDetectControllerType(logger)
	}

	var ctrl bridge.Controller
	switch conf.Controller {
	case model.ControllerTypeRaspberryPi:
		ctrl = bridge.NewRaspberryPiController(logger)
	case model.ControllerTypeSimulated:
		ctrl = bridge.NewSimulatedController(logger)
	default:
		Exitf("Unknown controller type '%s' (auto|rpi|sim)\n", conf.Controller)
	}
	defer ctrl.Close()

	hostID, err := environment.HostID()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to create host ID")
	}
	svc, err := worker.NewService(worker.Config{
		LocalConfiguration: conf,
		ProgramVersion:     projectVersion,
		HostID:             hostID,
	}, worker.Dependencies{
		Log:        logger,
		Controller: ctrl,
	})
	if err != nil {
		Exitf("Failed to initialize Service: %v\n", err)
	}

	httpServer, err := server.New(server.Config{
		Host:     serverHost,
		HTTPPort: serverPort,
	}, logger, svc)
	if err != nil {
		Exitf("Failed to initialize Server: %v\n", err)
	}

	// Prepare to shutdown in a controlled manor
	ctx, cancel := context.WithCancel(context.Background())
	t := terminate.NewTerminator(func(template string, args ...interface{}) {
		logger.Info().Msgf(template, args...)
	}, cancel)
	go t.ListenSignals()

	fmt.Printf("Starting %s (version %s build %s)\n", projectName, projectVersion, projectBuild)
	logger.Info().
		Str("controller", string(conf.Controller)).
		Int("components", len(conf.Components)).
		Msg("Starting")
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(ctx) })
	g.Go(func() error { return httpServer.Run(ctx) })
	if err := g.Wait(); err != nil {
		Exitf("Service run failed: %#v", err)
	}
}

// loadConfiguration loads the configuration file at given path.
// An empty path yields an empty configuration.
func loadConfiguration(path string) (model.LocalConfiguration, error) {
	if path == "" {
		return model.LocalConfiguration{}, nil
	}
	conf, err := model.LoadConfiguration(path)
	if err != nil {
		return model.LocalConfiguration{}, maskAny(err)
	}
	return conf, nil
}

// Print the given error message and exit with code 1
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}
