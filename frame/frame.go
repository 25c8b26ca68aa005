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

package frame

import (
	"encoding/binary"
	"errors"
	"image"
)

// TelemetryRows is the number of trailing rows in each frame which carry
// telemetry rather than thermal samples.
const TelemetryRows = 2

// ErrSize is returned when a buffer's length does not match its reported
// frame geometry.
var ErrSize = errors.New("frame buffer size does not match 2 * width * height")

// RawFrame is a read-only view over a buffer of little-endian 16-bit
// samples laid out as Height rows of Width samples. The final
// TelemetryRows rows hold telemetry words.
//
// The buffer is not copied. Whoever creates a RawFrame must not modify
// the buffer afterwards.
type RawFrame struct {
	data   []byte
	width  int
	height int
}

// New wraps data as a RawFrame. It fails with ErrSize unless
// len(data) == 2*width*height.
func New(data []byte, width, height int) (*RawFrame, error) {
	if !ValidSize(len(data), width, height) {
		return nil, ErrSize
	}
	return &RawFrame{
		data:   data,
		width:  width,
		height: height,
	}, nil
}

// ValidSize reports whether a payload of n bytes can hold a width x height
// frame of 16-bit samples.
func ValidSize(n, width, height int) bool {
	if width <= 0 || height <= 0 {
		return false
	}
	return n == 2*width*height
}

func (f *RawFrame) Width() int {
	return f.width
}

func (f *RawFrame) Height() int {
	return f.height
}

// ThermalRows returns the number of rows holding thermal samples.
func (f *RawFrame) ThermalRows() int {
	if f.height < TelemetryRows {
		return 0
	}
	return f.height - TelemetryRows
}

// At returns the sample at column x, row y. Rows include the telemetry
// rows.
func (f *RawFrame) At(x, y int) uint16 {
	i := 2 * (y*f.width + x)
	return binary.LittleEndian.Uint16(f.data[i : i+2])
}

// Thermal returns the thermal rows as a 16-bit grayscale image.
func (f *RawFrame) Thermal() *image.Gray16 {
	rows := f.ThermalRows()
	img := image.NewGray16(image.Rect(0, 0, f.width, rows))
	// Gray16 stores samples big-endian.
	for i := 0; i < f.width*rows; i++ {
		img.Pix[2*i] = f.data[2*i+1]
		img.Pix[2*i+1] = f.data[2*i]
	}
	return img
}

// TelemetryWords returns the telemetry rows as one contiguous slice of
// words, row 0 followed by row 1.
func (f *RawFrame) TelemetryWords() []uint16 {
	start := f.ThermalRows() * f.width
	words := make([]uint16, f.width*(f.height-f.ThermalRows()))
	for i := range words {
		j := 2 * (start + i)
		words[i] = binary.LittleEndian.Uint16(f.data[j : j+2])
	}
	return words
}
