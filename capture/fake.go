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
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/TheCacophonyProject/thermal-radiometry/frame"
	"github.com/TheCacophonyProject/thermal-radiometry/telemetry"
)

// DefaultFakeFormats are the formats offered by a FakeService unless told
// otherwise.
var DefaultFakeFormats = []FrameFormat{
	{Width: 80, Height: 62, Rate: 9},
	{Width: 160, Height: 122, Rate: 9},
}

// Synthetic scene values.
const (
	fakeBackground = 7900
	fakeHotspot    = 9500
	fakeFPAKelvin  = 30115
	fakeHousingK   = 29815
)

// FakeService generates synthetic frames with a moving hot spot and valid
// telemetry. It stands in for a camera in tests and demos.
type FakeService struct {
	Formats []FrameFormat

	// Frames limits how many frames are sent. Zero means no limit.
	Frames int

	// VendorID and ProductID restrict which IDs OpenDevice accepts. Zero
	// matches anything.
	VendorID  uint16
	ProductID uint16

	mu     sync.Mutex
	inited bool
	open   bool
	format FrameFormat
	stop   chan struct{}
	wg     sync.WaitGroup
	sent   int
}

func NewFakeService() *FakeService {
	return &FakeService{Formats: DefaultFakeFormats}
}

func (s *FakeService) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inited = true
	return nil
}

func (s *FakeService) OpenDevice(vendorID, productID uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inited {
		return errors.New("capture service not initialised")
	}
	if !matchesID(vendorID, s.VendorID) || !matchesID(productID, s.ProductID) {
		return fmt.Errorf("%w: %04x:%04x", ErrNoDevice, vendorID, productID)
	}
	s.open = true
	return nil
}

func (s *FakeService) FrameFormats(pf PixelFormat) ([]FrameFormat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil, ErrNotOpen
	}
	if pf != PixelFormatY16 {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, pf)
	}
	return append([]FrameFormat(nil), s.Formats...), nil
}

func (s *FakeService) ConfigureStream(pf PixelFormat, ff FrameFormat) error {
	formats, err := s.FrameFormats(pf)
	if err != nil {
		return err
	}
	for _, f := range formats {
		if f == ff {
			s.mu.Lock()
			s.format = ff
			s.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("format %v not offered by camera", ff)
}

func (s *FakeService) StartStreaming(h FrameHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return ErrNotOpen
	}
	if s.format.Width == 0 {
		return errors.New("stream not configured")
	}
	if s.stop != nil {
		return ErrStreaming
	}
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.format, h, s.stop)
	return nil
}

func (s *FakeService) run(ff FrameFormat, h FrameHandler, stop chan struct{}) {
	defer s.wg.Done()
	interval := ff.Interval()
	if interval == 0 {
		interval = time.Second / 9
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for n := 0; s.Frames == 0 || n < s.Frames; n++ {
		h.OnFrame(&Frame{Data: SyntheticFrame(ff, n), Width: ff.Width, Height: ff.Height})
		s.mu.Lock()
		s.sent++
		s.mu.Unlock()
		select {
		case <-ticker.C:
		case <-stop:
			return
		}
	}
}

func (s *FakeService) StopStreaming() error {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	s.wg.Wait()
	return nil
}

func (s *FakeService) ReleaseDevice() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

func (s *FakeService) Exit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inited = false
	return nil
}

// Sent returns the number of frames handed to the handler.
func (s *FakeService) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// Brand implements Describer.
func (s *FakeService) Brand() string { return "cacophony" }

// Model implements Describer.
func (s *FakeService) Model() string { return "fake" }

// SyntheticFrame builds frame n of a synthetic sequence in format ff: a
// horizontal gradient with a hot square that moves one pixel per frame,
// followed by telemetry rows when the frame is wide enough to carry them.
func SyntheticFrame(ff FrameFormat, n int) []byte {
	buf := make([]byte, ff.FrameBytes())
	rows := ff.Height - frame.TelemetryRows
	put := func(i int, v uint16) {
		binary.LittleEndian.PutUint16(buf[2*i:], v)
	}

	size := ff.Width / 8
	if size < 1 {
		size = 1
	}
	hx := n % ff.Width
	hy := rows / 3
	var sum int
	for y := 0; y < rows; y++ {
		for x := 0; x < ff.Width; x++ {
			v := uint16(fakeBackground + 2*x)
			if x >= hx && x < hx+size && y >= hy && y < hy+size {
				v = fakeHotspot
			}
			sum += int(v)
			put(y*ff.Width+x, v)
		}
	}

	start := rows * ff.Width
	if ff.Width*frame.TelemetryRows < telemetry.MinWords {
		return buf
	}
	var mean uint16
	if rows > 0 {
		mean = uint16(sum / (rows * ff.Width))
	}
	ms := uint32(n) * 1000 / uint32(maxInt(ff.Rate, 1))
	a := func(i int, v uint16) { put(start+i, v) }
	b := func(i int, v uint16) { put(start+80+i, v) }
	a(0, 14)
	a(1, uint16(ms))
	a(2, uint16(ms>>16))
	a(3, 3<<4)
	a(20, uint16(n))
	a(21, uint16(n>>16))
	a(22, mean)
	a(24, fakeFPAKelvin)
	a(26, fakeHousingK)
	a(29, fakeFPAKelvin)
	b(19, 8192)
	return buf
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
