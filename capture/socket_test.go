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
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHeader = `ResX: 80
ResY: 62
FPS: 9
Brand: flir
Model: lepton3
VendorID: 7758
ProductID: 256
Formats:
  - 80x62@9
  - 160x122@9

`

func socketPath(t *testing.T) string {
	dir, err := ioutil.TempDir("", "capture")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "frames")
}

func dialBridge(t *testing.T, path string) *net.UnixConn {
	var conn *net.UnixConn
	require.Eventually(t, func() bool {
		c, err := net.DialUnix("unixpacket", nil, &net.UnixAddr{Net: "unixpacket", Name: path})
		if err != nil {
			return false
		}
		conn = c
		return true
	}, time.Second, 5*time.Millisecond)
	return conn
}

func TestSocketService(t *testing.T) {
	path := socketPath(t)
	s := NewSocketService(path)
	s.OpenTimeout = 5 * time.Second
	require.NoError(t, s.Init())

	bridgeErr := make(chan error, 1)
	ff := FrameFormat{Width: 80, Height: 62, Rate: 9}
	go func() {
		conn := dialBridge(t, path)
		defer conn.Close()
		if _, err := conn.Write([]byte(testHeader)); err != nil {
			bridgeErr <- err
			return
		}
		line, err := bufio.NewReader(conn).ReadString('\n')
		if err != nil {
			bridgeErr <- err
			return
		}
		if line != "Format: 80x62@9\n" {
			bridgeErr <- errors.New("unexpected format line: " + line)
			return
		}
		conn.Write(SyntheticFrame(ff, 0))
		conn.Write(make([]byte, 10))
		conn.Write(make([]byte, ff.FrameBytes()+2))
		conn.Write(SyntheticFrame(ff, 1))
		bridgeErr <- nil
		// Hold the connection open until the service closes it.
		conn.Read(make([]byte, 1))
	}()

	require.NoError(t, s.OpenDevice(0x1e4e, 0x0100))
	assert.Equal(t, "flir", s.Brand())
	assert.Equal(t, "lepton3", s.Model())

	formats, err := s.FrameFormats(PixelFormatY16)
	require.NoError(t, err)
	assert.Equal(t, []FrameFormat{ff, {Width: 160, Height: 122, Rate: 9}}, formats)
	require.NoError(t, s.ConfigureStream(PixelFormatY16, ff))

	h := &recordingHandler{}
	require.NoError(t, s.StartStreaming(h))
	require.NoError(t, <-bridgeErr)
	require.Eventually(t, func() bool { return h.count() == 4 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.StopStreaming())
	require.NoError(t, s.ReleaseDevice())
	require.NoError(t, s.Exit())

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Len(t, h.frames[0].Data, ff.FrameBytes())
	assert.Len(t, h.frames[1].Data, 10)
	assert.Len(t, h.frames[2].Data, ff.FrameBytes()+1)
	assert.Len(t, h.frames[3].Data, ff.FrameBytes())
	assert.Equal(t, 80, h.frames[0].Width)
	assert.Equal(t, 62, h.frames[0].Height)
}

func TestSocketServiceFrameSizeMismatch(t *testing.T) {
	path := socketPath(t)
	s := NewSocketService(path)
	s.OpenTimeout = 5 * time.Second
	require.NoError(t, s.Init())
	defer s.Exit()

	go func() {
		conn := dialBridge(t, path)
		defer conn.Close()
		conn.Write([]byte("FrameSize: 9600\n" + testHeader))
		buf := make([]byte, 64)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()

	require.NoError(t, s.OpenDevice(0, 0))
	defer s.ReleaseDevice()
	err := s.ConfigureStream(PixelFormatY16, FrameFormat{Width: 80, Height: 62, Rate: 9})
	assert.EqualError(t, err, "camera sends 9600 byte frames, format 80x62@9 needs 9920")

	// FrameSize only describes the ResX by ResY format.
	assert.NoError(t, s.ConfigureStream(PixelFormatY16, FrameFormat{Width: 160, Height: 122, Rate: 9}))
}

func TestSocketServiceWrongDevice(t *testing.T) {
	path := socketPath(t)
	s := NewSocketService(path)
	require.NoError(t, s.Init())
	defer s.Exit()

	go func() {
		conn := dialBridge(t, path)
		defer conn.Close()
		conn.Write([]byte(testHeader))
	}()

	err := s.OpenDevice(0x1234, 0x5678)
	assert.True(t, errors.Is(err, ErrNoDevice))
}

func TestSocketServiceOpenTimeout(t *testing.T) {
	s := NewSocketService(socketPath(t))
	s.OpenTimeout = 20 * time.Millisecond
	require.NoError(t, s.Init())
	defer s.Exit()
	assert.Error(t, s.OpenDevice(0, 0))
}

func TestSocketServiceNotOpen(t *testing.T) {
	s := NewSocketService(socketPath(t))
	assert.Error(t, s.OpenDevice(0, 0))
	_, err := s.FrameFormats(PixelFormatY16)
	assert.True(t, errors.Is(err, ErrNotOpen))
	assert.True(t, errors.Is(s.StartStreaming(&recordingHandler{}), ErrNotOpen))
	assert.NoError(t, s.StopStreaming())
	assert.NoError(t, s.ReleaseDevice())
	assert.NoError(t, s.Exit())
}
