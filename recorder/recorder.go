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

// Package recorder writes thermal frames to CPTV files.
package recorder

import "github.com/TheCacophonyProject/go-cptv/cptvframe"

// Recorder is a sink for a sequence of recordings. WriteFrame is only
// valid between StartRecording and StopRecording.
type Recorder interface {
	CheckCanRecord() error
	StartRecording() error
	WriteFrame(*cptvframe.Frame) error
	StopRecording() error
}

var _ Recorder = new(CPTVFileRecorder)
