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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/thermal-radiometry/framequeue"
)

func TestCallbackDropsMalformed(t *testing.T) {
	q := framequeue.New(framequeue.DefaultCapacity)
	cb := NewCallback(q)

	for _, f := range []*Frame{
		{Data: make([]byte, 2*4*3-1), Width: 4, Height: 3},
		{Data: make([]byte, 2*4*3+2), Width: 4, Height: 3},
		{Data: nil, Width: 4, Height: 3},
		{Data: make([]byte, 24), Width: 0, Height: 0},
		{Data: make([]byte, 24), Width: -4, Height: -3},
	} {
		require.NotPanics(t, func() { cb.OnFrame(f) })
		assert.Equal(t, 0, q.Len())
	}
	assert.Equal(t, uint64(5), cb.Malformed())
	assert.Equal(t, uint64(5), cb.Received())
}

func TestCallbackDropsUnexpectedGeometry(t *testing.T) {
	q := framequeue.New(framequeue.DefaultCapacity)
	cb := NewCallback(q)
	cb.Expect(FrameFormat{Width: 80, Height: 62, Rate: 9})

	// Length matches the frame's own geometry but not the session's.
	require.NotPanics(t, func() {
		cb.OnFrame(&Frame{Data: make([]byte, 2*8*4), Width: 8, Height: 4})
	})
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, uint64(1), cb.Malformed())

	ff := FrameFormat{Width: 80, Height: 62}
	cb.OnFrame(&Frame{Data: make([]byte, ff.FrameBytes()), Width: 80, Height: 62})
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, uint64(1), cb.Malformed())
	assert.Equal(t, uint64(2), cb.Received())
}

func TestCallbackEnqueues(t *testing.T) {
	q := framequeue.New(framequeue.DefaultCapacity)
	cb := NewCallback(q)

	data := make([]byte, 2*4*3)
	data[0] = 0x34
	data[1] = 0x12
	cb.OnFrame(&Frame{Data: data, Width: 4, Height: 3})
	require.Equal(t, 1, q.Len())

	f, err := q.Dequeue(context.Background(), time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), f.At(0, 0))

	// The frame is a view over the delivered buffer.
	data[0] = 0x35
	assert.Equal(t, uint16(0x1235), f.At(0, 0))
}

func TestCallbackNeverExceedsCapacity(t *testing.T) {
	q := framequeue.New(framequeue.DefaultCapacity)
	cb := NewCallback(q)
	ff := FrameFormat{Width: 4, Height: 3}

	for i := 0; i < 10; i++ {
		cb.OnFrame(&Frame{Data: make([]byte, ff.FrameBytes()), Width: 4, Height: 3})
		assert.True(t, q.Len() <= 2)
	}
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, uint64(8), q.Dropped())
	assert.Equal(t, uint64(0), cb.Malformed())
}

func TestFrameFormat(t *testing.T) {
	ff := FrameFormat{Width: 160, Height: 122, Rate: 9}
	assert.Equal(t, 160, ff.ResX())
	assert.Equal(t, 120, ff.ResY())
	assert.Equal(t, 9, ff.FPS())
	assert.Equal(t, 2*160*122, ff.FrameBytes())
	assert.Equal(t, time.Second/9, ff.Interval())
	assert.Equal(t, "160x122@9", ff.String())
	assert.Equal(t, time.Duration(0), FrameFormat{}.Interval())
}

func TestPixelFormatString(t *testing.T) {
	assert.Equal(t, "Y16", PixelFormatY16.String())
	assert.Equal(t, "PixelFormat(7)", PixelFormat(7).String())
}
