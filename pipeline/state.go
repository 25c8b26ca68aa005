// thermal-radiometry - radiometric thermal frame pipeline
//  Copyright (C) 2021, The Cacophony Project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package pipeline

import (
	"fmt"
	"sync/atomic"
)

// State is the lifecycle stage of a capture session.
type State int32

const (
	Idle State = iota
	DeviceOpen
	StreamingConfigured
	Streaming
	Draining
	Closed
	Error
)

var stateNames = map[State]string{
	Idle:                "idle",
	DeviceOpen:          "device-open",
	StreamingConfigured: "streaming-configured",
	Streaming:           "streaming",
	Draining:            "draining",
	Closed:              "closed",
	Error:               "error",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

func (p *Pipeline) State() State {
	return State(atomic.LoadInt32(&p.state))
}

func (p *Pipeline) setState(s State) {
	atomic.StoreInt32(&p.state, int32(s))
}
