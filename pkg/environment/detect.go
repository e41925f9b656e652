//    Copyright 2024 Ewout Prangsma
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
	"strings"

	"github.com/binkynet/LocalGPIO/model"
)

// detectControllerType selects the Raspberry Pi controller for an ARM
// machine whose board model names a Raspberry Pi, and the simulator otherwise.
func detectControllerType(machine, boardModel string) model.ControllerType {
	machine = strings.ToLower(strings.TrimSpace(machine))
	isARM := strings.HasPrefix(machine, "arm") || strings.HasPrefix(machine, "aarch64")
	if isARM && strings.Contains(boardModel, "Raspberry Pi") {
		return model.ControllerTypeRaspberryPi
	}
	return model.ControllerTypeSimulated
}
