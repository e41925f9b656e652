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

package cyclic

import (
	"github.com/benbjohnson/clock"
)

// Guard runs body as a single cycle of the given state.
// Nothing runs when canExecute returns false or when a previous cycle
// is still in progress. A cycle that returns an error still counts as
// completed.
func Guard(clk clock.Clock, s *State, canExecute func() bool, body func() error) (Status, error) {
	if !canExecute() {
		return StatusNotExecutable, nil
	}
	if !s.TryBegin(clk.Now()) {
		return StatusBusy, nil
	}
	defer func() {
		s.End(clk.Now())
	}()
	if err := body(); err != nil {
		return StatusExecuted, err
	}
	return StatusExecuted, nil
}
