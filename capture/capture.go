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

// Package capture defines the boundary with the video capture service which
// delivers raw frames, along with the callback that feeds those frames into
// the processing queue.
package capture

import (
	"errors"
	"fmt"
	"time"

	"github.com/TheCacophonyProject/thermal-radiometry/frame"
	"github.com/TheCacophonyProject/thermal-radiometry/headers"
)

// PixelFormat identifies the encoding of frame samples.
type PixelFormat int

const (
	// PixelFormatY16 is 16-bit little-endian greyscale, the radiometric
	// format.
	PixelFormatY16 PixelFormat = iota + 1
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatY16:
		return "Y16"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(p))
	}
}

var (
	ErrNoDevice          = errors.New("no matching capture device")
	ErrUnsupportedFormat = errors.New("unsupported pixel format")
	ErrNotOpen           = errors.New("capture device not open")
	ErrStreaming         = errors.New("capture device already streaming")
)

// FrameFormat is one frame size and rate offered by a device. Height
// includes the telemetry rows.
type FrameFormat struct {
	Width  int
	Height int
	Rate   int
}

// FormatFromHeader converts a format announced in a frame source header.
func FormatFromHeader(f headers.Format) FrameFormat {
	return FrameFormat{Width: f.Width, Height: f.Height, Rate: f.FPS}
}

// ResX implements cptvframe.CameraSpec.
func (f FrameFormat) ResX() int {
	return f.Width
}

// ResY implements cptvframe.CameraSpec. Only the thermal rows are counted.
func (f FrameFormat) ResY() int {
	return f.Height - frame.TelemetryRows
}

// FPS implements cptvframe.CameraSpec.
func (f FrameFormat) FPS() int {
	return f.Rate
}

// Interval is the default time between frames.
func (f FrameFormat) Interval() time.Duration {
	if f.Rate <= 0 {
		return 0
	}
	return time.Second / time.Duration(f.Rate)
}

// FrameBytes is the payload size of a frame in this format.
func (f FrameFormat) FrameBytes() int {
	return 2 * f.Width * f.Height
}

func (f FrameFormat) String() string {
	return fmt.Sprintf("%dx%d@%d", f.Width, f.Height, f.Rate)
}

// Frame is a buffer delivered by the capture service. Ownership of Data
// passes to the handler.
type Frame struct {
	Data   []byte
	Width  int
	Height int
}

// FrameHandler receives frames from a capture service. OnFrame is called
// on a context the handler doesn't control and must return promptly.
type FrameHandler interface {
	OnFrame(*Frame)
}

// Service is a video capture service. Each method is one step of bringing
// a device up or down, and any error is fatal for that step.
type Service interface {
	Init() error
	OpenDevice(vendorID, productID uint16) error
	FrameFormats(PixelFormat) ([]FrameFormat, error)
	ConfigureStream(PixelFormat, FrameFormat) error
	StartStreaming(FrameHandler) error
	StopStreaming() error
	ReleaseDevice() error
	Exit() error
}

// Describer is implemented by services which know the device brand and
// model.
type Describer interface {
	Brand() string
	Model() string
}

func matchesID(want, got uint16) bool {
	return want == 0 || got == 0 || want == got
}
