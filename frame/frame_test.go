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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeBuffer(width, height int, value func(x, y int) uint16) []byte {
	buf := make([]byte, 2*width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := 2 * (y*width + x)
			binary.LittleEndian.PutUint16(buf[i:], value(x, y))
		}
	}
	return buf
}

func TestNewRejectsWrongSize(t *testing.T) {
	for _, n := range []int{0, 1, 2*4*3 - 1, 2*4*3 + 1, 4 * 3} {
		f, err := New(make([]byte, n), 4, 3)
		assert.Nil(t, f)
		assert.Equal(t, ErrSize, err, "n=%d", n)
	}
}

func TestNewRejectsEmptyGeometry(t *testing.T) {
	_, err := New(nil, 0, 0)
	assert.Equal(t, ErrSize, err)
}

func TestAt(t *testing.T) {
	buf := makeBuffer(4, 5, func(x, y int) uint16 { return uint16(1000*y + x) })
	f, err := New(buf, 4, 5)
	require.NoError(t, err)

	assert.Equal(t, 4, f.Width())
	assert.Equal(t, 5, f.Height())
	assert.Equal(t, 3, f.ThermalRows())
	assert.Equal(t, uint16(0), f.At(0, 0))
	assert.Equal(t, uint16(2003), f.At(3, 2))
	assert.Equal(t, uint16(4001), f.At(1, 4))
}

func TestThermal(t *testing.T) {
	buf := makeBuffer(4, 5, func(x, y int) uint16 { return uint16(0x0102*y + x) })
	f, err := New(buf, 4, 5)
	require.NoError(t, err)

	img := f.Thermal()
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, 3, img.Bounds().Dy())
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			assert.Equal(t, f.At(x, y), img.Gray16At(x, y).Y)
		}
	}
}

func TestTelemetryWords(t *testing.T) {
	buf := makeBuffer(3, 4, func(x, y int) uint16 { return uint16(10*y + x) })
	f, err := New(buf, 3, 4)
	require.NoError(t, err)

	assert.Equal(t, []uint16{20, 21, 22, 30, 31, 32}, f.TelemetryWords())
}
