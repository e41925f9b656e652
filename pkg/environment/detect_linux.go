//    Copyright 2018 Ewout Prangsma
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

package environment

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/binkynet/LocalGPIO/model"
)

const (
	deviceTreeModelPath = "/proc/device-tree/model"
)

// AutoDetectControllerType detects the pin controller type based on the environment.
func AutoDetectControllerType(log zerolog.Logger) model.ControllerType {
	var name unix.Utsname
	if err := unix.Uname(&name); err != nil {
		// Fallback to simulator
		log.Warn().Err(err).Msg("Uname failed")
		return model.ControllerTypeSimulated
	}
	machine := unix.ByteSliceToString(name.Machine[:])
	boardModel, err := os.ReadFile(deviceTreeModelPath)
	if err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to read device tree model")
	}
	result := detectControllerType(machine, string(boardModel))
	log.Debug().
		Str("machine", machine).
		Str("model", strings.TrimRight(string(boardModel), "\x00\n")).
		Str("controller", string(result)).
		Msg("Detected controller type")
	return result
}
