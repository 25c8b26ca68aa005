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
	"sync/atomic"

	"github.com/TheCacophonyProject/thermal-radiometry/frame"
	"github.com/TheCacophonyProject/thermal-radiometry/framequeue"
)

// Callback validates frames from a capture service and queues them for
// processing. It never blocks and never logs.
type Callback struct {
	received  uint64
	malformed uint64
	queue     *framequeue.Queue
	expect    atomic.Value // FrameFormat
}

func NewCallback(queue *framequeue.Queue) *Callback {
	return &Callback{queue: queue}
}

// Expect sets the geometry negotiated for the session. Frames of any other
// size are counted as malformed. Until Expect is called any geometry is
// accepted.
func (c *Callback) Expect(ff FrameFormat) {
	c.expect.Store(ff)
}

// OnFrame implements FrameHandler. Frames whose length doesn't match their
// geometry or whose geometry isn't the negotiated one are dropped, as are
// frames arriving while the queue is full.
func (c *Callback) OnFrame(f *Frame) {
	atomic.AddUint64(&c.received, 1)
	if ff, ok := c.expect.Load().(FrameFormat); ok && (f.Width != ff.Width || f.Height != ff.Height) {
		atomic.AddUint64(&c.malformed, 1)
		return
	}
	rf, err := frame.New(f.Data, f.Width, f.Height)
	if err != nil {
		atomic.AddUint64(&c.malformed, 1)
		return
	}
	c.queue.Enqueue(rf)
}

// Received returns the number of frames passed to OnFrame.
func (c *Callback) Received() uint64 {
	return atomic.LoadUint64(&c.received)
}

// Malformed returns the number of frames dropped for having the wrong
// length or geometry.
func (c *Callback) Malformed() uint64 {
	return atomic.LoadUint64(&c.malformed)
}
