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

package recorder

import (
	"errors"
)

// Config controls raw CPTV recording. Recording is disabled when Dir is
// empty.
type Config struct {
	Dir          string
	MinDiskSpace uint64 // MB
	MaxSecs      int
	DeviceName   string
	DeviceID     int
}

func (conf *Config) Enabled() bool {
	return conf.Dir != ""
}

func (conf *Config) Validate() error {
	if conf.MaxSecs < 0 {
		return errors.New("max-secs can't be negative")
	}
	if conf.Enabled() && conf.MaxSecs == 0 {
		return errors.New("max-secs must be set when recording")
	}
	return nil
}
