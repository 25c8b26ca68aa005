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
	"bufio"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/TheCacophonyProject/thermal-radiometry/headers"
)

const (
	DefaultSocketPath  = "/var/run/uvc-frames"
	defaultOpenTimeout = time.Minute
)

// SocketService receives frames from a UVC bridge process over a unix
// packet socket. The bridge connects, sends a YAML header ended by a blank
// line describing the device, then sends one frame per packet. The chosen
// format is written back to the bridge as a single "Format: WxH@fps" line.
type SocketService struct {
	Path        string
	OpenTimeout time.Duration

	listener *net.UnixListener
	conn     *net.UnixConn
	header   *headers.HeaderInfo
	format   FrameFormat

	mu      sync.Mutex
	done    chan struct{}
	stopped bool
	readErr error
}

func NewSocketService(path string) *SocketService {
	return &SocketService{
		Path:        path,
		OpenTimeout: defaultOpenTimeout,
	}
}

// Init starts listening for a bridge connection.
func (s *SocketService) Init() error {
	os.Remove(s.Path)
	listener, err := net.ListenUnix("unixpacket", &net.UnixAddr{Net: "unixpacket", Name: s.Path})
	if err != nil {
		return err
	}
	s.listener = listener
	return nil
}

// OpenDevice waits for a bridge to connect and checks that it serves the
// requested device. Zero IDs match anything.
func (s *SocketService) OpenDevice(vendorID, productID uint16) error {
	if s.listener == nil {
		return errors.New("capture service not initialised")
	}
	log.Print("waiting for camera connection")
	if s.OpenTimeout > 0 {
		s.listener.SetDeadline(time.Now().Add(s.OpenTimeout))
	}
	conn, err := s.listener.AcceptUnix()
	if err != nil {
		return fmt.Errorf("socket accept failed: %w", err)
	}

	// Prevent concurrent connections.
	s.listener.Close()
	s.listener = nil

	reader := bufio.NewReader(conn)
	header, err := headers.ReadHeaderInfo(reader)
	if err != nil {
		conn.Close()
		return fmt.Errorf("reading camera header: %w", err)
	}
	if reader.Buffered() > 0 {
		conn.Close()
		return errors.New("camera header and frame data arrived in one packet")
	}
	if !matchesID(vendorID, header.VendorID()) || !matchesID(productID, header.ProductID()) {
		conn.Close()
		return fmt.Errorf("%w: wanted %04x:%04x, connected camera is %04x:%04x", ErrNoDevice,
			vendorID, productID, header.VendorID(), header.ProductID())
	}
	log.Printf("connected to %s %s (%04x:%04x)", header.Brand(), header.Model(),
		header.VendorID(), header.ProductID())
	s.conn = conn
	s.header = header
	return nil
}

func (s *SocketService) FrameFormats(pf PixelFormat) ([]FrameFormat, error) {
	if s.header == nil {
		return nil, ErrNotOpen
	}
	if pf != PixelFormatY16 {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, pf)
	}
	var formats []FrameFormat
	for _, f := range s.header.Formats() {
		formats = append(formats, FormatFromHeader(f))
	}
	return formats, nil
}

// ConfigureStream tells the bridge which of its formats to stream.
func (s *SocketService) ConfigureStream(pf PixelFormat, ff FrameFormat) error {
	formats, err := s.FrameFormats(pf)
	if err != nil {
		return err
	}
	found := false
	for _, f := range formats {
		if f == ff {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("format %v not offered by camera", ff)
	}
	if err := checkFrameSize(s.header, ff); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.conn, "Format: %s\n", ff); err != nil {
		return err
	}
	s.format = ff
	return nil
}

// checkFrameSize rejects a format when the bridge advertises a frame size
// for it that disagrees with its geometry. FrameSize describes the ResX by
// ResY format only.
func checkFrameSize(h *headers.HeaderInfo, ff FrameFormat) error {
	size := h.FrameSize()
	if size <= 0 || ff.Width != h.ResX() || ff.Height != h.ResY() {
		return nil
	}
	if size != ff.FrameBytes() {
		return fmt.Errorf("camera sends %d byte frames, format %v needs %d", size, ff, ff.FrameBytes())
	}
	return nil
}

// StartStreaming reads frames in a new goroutine and passes each to h in
// a freshly allocated buffer.
func (s *SocketService) StartStreaming(h FrameHandler) error {
	if s.conn == nil {
		return ErrNotOpen
	}
	if s.format.Width == 0 {
		return errors.New("stream not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return ErrStreaming
	}
	s.done = make(chan struct{})
	s.stopped = false
	go s.readFrames(s.conn, s.format, h, s.done)
	return nil
}

func (s *SocketService) readFrames(conn *net.UnixConn, ff FrameFormat, h FrameHandler, done chan struct{}) {
	defer close(done)
	// One spare byte so that oversized packets show up as a length
	// mismatch rather than being silently truncated to fit.
	size := ff.FrameBytes() + 1
	for {
		buf := make([]byte, size)
		n, err := conn.Read(buf)
		if err != nil {
			s.mu.Lock()
			if !s.stopped {
				s.readErr = err
			}
			s.mu.Unlock()
			return
		}
		h.OnFrame(&Frame{Data: buf[:n], Width: ff.Width, Height: ff.Height})
	}
}

// StopStreaming stops reading frames and waits for the reader to finish.
func (s *SocketService) StopStreaming() error {
	s.mu.Lock()
	done := s.done
	s.stopped = true
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	s.conn.SetReadDeadline(time.Now())
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = nil
	if s.readErr != nil {
		log.Printf("camera connection ended with: %v", s.readErr)
	}
	s.conn.SetReadDeadline(time.Time{})
	return nil
}

func (s *SocketService) ReleaseDevice() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.header = nil
	return err
}

func (s *SocketService) Exit() error {
	var err error
	if s.listener != nil {
		err = s.listener.Close()
		s.listener = nil
	}
	if rmErr := os.Remove(s.Path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}

// Brand implements Describer.
func (s *SocketService) Brand() string {
	if s.header == nil {
		return ""
	}
	return s.header.Brand()
}

// Model implements Describer.
func (s *SocketService) Model() string {
	if s.header == nil {
		return ""
	}
	return s.header.Model()
}
