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

package capture

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/thermal-radiometry/frame"
	"github.com/TheCacophonyProject/thermal-radiometry/telemetry"
)

type recordingHandler struct {
	mu     sync.Mutex
	frames []*Frame
}

func (h *recordingHandler) OnFrame(f *Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, f)
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.frames)
}

func TestFakeServiceLifecycle(t *testing.T) {
	s := NewFakeService()
	s.Frames = 3
	s.Formats = []FrameFormat{{Width: 80, Height: 62, Rate: 100}}

	assert.Error(t, s.OpenDevice(0, 0))
	require.NoError(t, s.Init())
	require.NoError(t, s.OpenDevice(0x1e4e, 0x0100))

	_, err := s.FrameFormats(PixelFormat(99))
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
	formats, err := s.FrameFormats(PixelFormatY16)
	require.NoError(t, err)
	require.Len(t, formats, 1)

	assert.Error(t, s.StartStreaming(&recordingHandler{}))
	assert.Error(t, s.ConfigureStream(PixelFormatY16, FrameFormat{Width: 1, Height: 1}))
	require.NoError(t, s.ConfigureStream(PixelFormatY16, formats[0]))

	h := &recordingHandler{}
	require.NoError(t, s.StartStreaming(h))
	assert.True(t, errors.Is(s.StartStreaming(h), ErrStreaming))
	assert.Eventually(t, func() bool { return h.count() == 3 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.StopStreaming())
	require.NoError(t, s.StopStreaming())
	require.NoError(t, s.ReleaseDevice())
	require.NoError(t, s.Exit())
	assert.Equal(t, 3, s.Sent())
	assert.Equal(t, 3, h.count())
}

func TestFakeServiceRejectsOtherDevice(t *testing.T) {
	s := NewFakeService()
	s.VendorID = 0x1e4e
	require.NoError(t, s.Init())
	err := s.OpenDevice(0x1234, 0)
	assert.True(t, errors.Is(err, ErrNoDevice))
	assert.NoError(t, s.OpenDevice(0x1e4e, 0))
}

func TestSyntheticFrame(t *testing.T) {
	ff := FrameFormat{Width: 80, Height: 62, Rate: 9}
	data := SyntheticFrame(ff, 10)
	f, err := frame.New(data, ff.Width, ff.Height)
	require.NoError(t, err)

	// The hot spot starts at the frame number.
	assert.Equal(t, uint16(fakeHotspot), f.At(10, 20))
	assert.Equal(t, uint16(fakeBackground+2*9), f.At(9, 20))

	r := telemetry.Decode(f.TelemetryWords())
	assert.Equal(t, uint32(10), r.FrameCounter)
	assert.Equal(t, uint32(1111), r.TimeCounter)
	assert.Equal(t, telemetry.FFCComplete, r.FFCState())
	assert.InDelta(t, 28.0, r.FPATempC(), 1e-9)
	assert.Equal(t, uint16(8192), r.Emissivity)
}

func TestSyntheticFrameTooNarrowForTelemetry(t *testing.T) {
	ff := FrameFormat{Width: 40, Height: 30, Rate: 9}
	data := SyntheticFrame(ff, 0)
	assert.Len(t, data, ff.FrameBytes())
}
