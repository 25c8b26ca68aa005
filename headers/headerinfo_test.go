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

package headers

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func read(t *testing.T, s string) (*HeaderInfo, *bufio.Reader) {
	r := bufio.NewReader(strings.NewReader(s))
	h, err := ReadHeaderInfo(r)
	require.NoError(t, err)
	return h, r
}

func TestReadHeaderInfo(t *testing.T) {
	h, r := read(t, `ResX: 160
ResY: 122
FPS: 9
FrameSize: 39040
Brand: flir
Model: lepton3.5
VendorID: 7758
ProductID: 256
Formats:
  - 80x62@9
  - 160x122@9

frame data`)

	assert.Equal(t, 160, h.ResX())
	assert.Equal(t, 122, h.ResY())
	assert.Equal(t, 9, h.FPS())
	assert.Equal(t, 39040, h.FrameSize())
	assert.Equal(t, "flir", h.Brand())
	assert.Equal(t, "lepton3.5", h.Model())
	assert.Equal(t, uint16(0x1e4e), h.VendorID())
	assert.Equal(t, uint16(0x0100), h.ProductID())
	assert.Equal(t, []Format{{80, 62, 9}, {160, 122, 9}}, h.Formats())

	rest, _ := r.ReadString(0)
	assert.Equal(t, "frame data", rest)
}

func TestFormatsFallBackToResolution(t *testing.T) {
	h, _ := read(t, "ResX: 160\nResY: 122\nFPS: 9\n\n")
	assert.Equal(t, []Format{{160, 122, 9}}, h.Formats())

	h, _ = read(t, "Brand: x\n\n")
	assert.Empty(t, h.Formats())
	assert.Equal(t, uint16(0), h.VendorID())
}

func TestBadFormat(t *testing.T) {
	_, err := ReadHeaderInfo(bufio.NewReader(strings.NewReader("Formats: [160by120]\n\n")))
	assert.Error(t, err)
}

func TestTruncatedHeader(t *testing.T) {
	_, err := ReadHeaderInfo(bufio.NewReader(strings.NewReader("ResX: 160\n")))
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" 160x122@9 ")
	require.NoError(t, err)
	assert.Equal(t, Format{160, 122, 9}, f)
	assert.Equal(t, "160x122@9", f.String())

	f, err = ParseFormat("80x62")
	require.NoError(t, err)
	assert.Equal(t, Format{80, 62, 0}, f)

	for _, s := range []string{"", "x", "0x10@9", "10x10@fast", "-1x5"} {
		_, err := ParseFormat(s)
		assert.Error(t, err, s)
	}
}
