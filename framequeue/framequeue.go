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

// Package framequeue hands frames from a capture context to a single
// processing loop without ever blocking the capture side.
package framequeue

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/TheCacophonyProject/thermal-radiometry/frame"
)

// DefaultCapacity keeps at most two frames in flight so that the
// processing loop always works on a recent frame.
const DefaultCapacity = 2

// ErrTimeout is returned by Dequeue when no frame arrived in time.
var ErrTimeout = errors.New("timed out waiting for frame")

// Queue is a fixed capacity FIFO of frames. Enqueue drops frames when the
// queue is full. It is safe for one producer and one consumer.
type Queue struct {
	dropped uint64 // first for 64-bit atomic alignment on ARM
	c       chan *frame.RawFrame
}

func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{c: make(chan *frame.RawFrame, capacity)}
}

// Enqueue adds f to the queue if there is room. It returns false, and
// discards f, when the queue is full.
func (q *Queue) Enqueue(f *frame.RawFrame) bool {
	select {
	case q.c <- f:
		return true
	default:
		atomic.AddUint64(&q.dropped, 1)
		return false
	}
}

// Dequeue waits up to timeout for the oldest queued frame. It returns
// ErrTimeout if none arrives, or ctx's error if ctx is done first.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*frame.RawFrame, error) {
	select {
	case f := <-q.c:
		return f, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-q.c:
		return f, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Drain discards any queued frames and returns how many there were. It
// must not be called while a producer is running.
func (q *Queue) Drain() int {
	n := 0
	for {
		select {
		case <-q.c:
			n++
		default:
			return n
		}
	}
}

func (q *Queue) Len() int {
	return len(q.c)
}

func (q *Queue) Cap() int {
	return cap(q.c)
}

// Dropped returns the number of frames discarded because the queue was
// full.
func (q *Queue) Dropped() uint64 {
	return atomic.LoadUint64(&q.dropped)
}
