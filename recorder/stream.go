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
	"github.com/TheCacophonyProject/go-cptv/cptvframe"

	"github.com/TheCacophonyProject/thermal-radiometry/frame"
	"github.com/TheCacophonyProject/thermal-radiometry/telemetry"
)

// StreamRecorder records every frame it is given, starting a new
// recording after maxFrames frames.
type StreamRecorder struct {
	rec       Recorder
	maxFrames int
	frame     *cptvframe.Frame
	recording bool
	written   int
}

func NewStreamRecorder(rec Recorder, camera cptvframe.CameraSpec, maxSecs int) *StreamRecorder {
	return &StreamRecorder{
		rec:       rec,
		maxFrames: maxSecs * camera.FPS(),
		frame:     cptvframe.NewFrame(camera),
	}
}

// Write adds f to the current recording, starting one if needed.
func (s *StreamRecorder) Write(f *frame.RawFrame, t telemetry.Record) error {
	if !s.recording {
		if err := s.rec.CheckCanRecord(); err != nil {
			return err
		}
		if err := s.rec.StartRecording(); err != nil {
			return err
		}
		s.recording = true
		s.written = 0
	}

	fillPix(s.frame, f)
	s.frame.Status = t.CPTVTelemetry()
	if err := s.rec.WriteFrame(s.frame); err != nil {
		return err
	}
	s.written++

	if s.maxFrames > 0 && s.written >= s.maxFrames {
		return s.Close()
	}
	return nil
}

// Close finishes the current recording, if any.
func (s *StreamRecorder) Close() error {
	if !s.recording {
		return nil
	}
	s.recording = false
	return s.rec.StopRecording()
}

func (s *StreamRecorder) Recording() bool {
	return s.recording
}

func fillPix(out *cptvframe.Frame, f *frame.RawFrame) {
	for y, row := range out.Pix {
		if y >= f.ThermalRows() {
			return
		}
		for x := range row {
			if x >= f.Width() {
				break
			}
			out.Pix[y][x] = f.At(x, y)
		}
	}
}
