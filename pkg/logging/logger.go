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

package logging

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// Maximum size of a log file before it is rotated, in MB
	logFileMaxSize    = 16
	logFileMaxBackups = 3
)

// NewFileWriter creates a rotating log file output.
func NewFileWriter(path string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    logFileMaxSize,
		MaxBackups: logFileMaxBackups,
		Compress:   true,
	}
}

// NewLogger creates a logger with the given level, writing to the
// console and the given outputs.
func NewLogger(level string, outputs ...io.Writer) (zerolog.Logger, *MultiWriter, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Nop(), nil, errors.Wrapf(err, "invalid log level '%s'", level)
	}
	writers := append([]io.Writer{zerolog.ConsoleWriter{Out: os.Stderr}}, outputs...)
	mw := NewMultiWriter(writers...)
	return zerolog.New(mw).Level(lvl).With().Timestamp().Logger(), mw, nil
}
