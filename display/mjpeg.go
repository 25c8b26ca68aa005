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

package display

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"image"
	"image/jpeg"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/juju/ratelimit"
)

const (
	DefaultListen  = ":8080"
	DefaultQuality = 80

	keyQueueSize    = 8
	clientQueueSize = 2
	shutdownTimeout = 2 * time.Second
)

type MJPEGConfig struct {
	Listen string

	// MaxFPS caps how often frames are encoded. Zero or less encodes
	// every frame.
	MaxFPS float64

	Quality int
}

// MJPEGSurface serves displayed frames over HTTP as a Motion JPEG stream.
// Key presses are posted to /key/{key}.
type MJPEGSurface struct {
	conf   MJPEGConfig
	bucket *ratelimit.Bucket
	keys   chan int
	router *mux.Router
	server *http.Server

	frameMu    sync.RWMutex
	latest     []byte
	windowName string
	frames     uint64

	clientsMu sync.Mutex
	clients   map[chan []byte]struct{}
	closed    bool
}

func NewMJPEGSurface(conf MJPEGConfig) *MJPEGSurface {
	return newMJPEGSurfaceWithClock(conf, realClock{})
}

func newMJPEGSurfaceWithClock(conf MJPEGConfig, clock ratelimit.Clock) *MJPEGSurface {
	if conf.Listen == "" {
		conf.Listen = DefaultListen
	}
	if conf.Quality == 0 {
		conf.Quality = DefaultQuality
	}
	m := &MJPEGSurface{
		conf:       conf,
		keys:       make(chan int, keyQueueSize),
		clients:    make(map[chan []byte]struct{}),
		windowName: "thermal",
	}
	if conf.MaxFPS > 0 {
		m.bucket = ratelimit.NewBucketWithRateAndClock(conf.MaxFPS, 1, clock)
	}

	r := mux.NewRouter()
	r.HandleFunc("/", m.handleViewer).Methods("GET")
	r.HandleFunc("/stream", m.handleStream).Methods("GET")
	r.HandleFunc("/still.jpg", m.handleStill).Methods("GET")
	r.HandleFunc("/key/{key}", m.handleKey).Methods("POST")
	m.router = r
	m.server = &http.Server{Handler: r}
	return m
}

// Handler returns the surface's HTTP routes.
func (m *MJPEGSurface) Handler() http.Handler {
	return m.router
}

// ListenAndServe serves HTTP on the configured address until Close is
// called.
func (m *MJPEGSurface) ListenAndServe() error {
	l, err := net.Listen("tcp", m.conf.Listen)
	if err != nil {
		return err
	}
	return m.Serve(l)
}

func (m *MJPEGSurface) Serve(l net.Listener) error {
	log.Printf("display available at http://%s/", l.Addr())
	err := m.server.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Display implements Surface. Frames beyond MaxFPS are skipped without
// being encoded.
func (m *MJPEGSurface) Display(img *image.RGBA, windowName string) error {
	if m.bucket != nil && m.bucket.TakeAvailable(1) == 0 {
		return nil
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: m.conf.Quality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	data := buf.Bytes()

	m.frameMu.Lock()
	m.latest = data
	m.windowName = windowName
	m.frames++
	m.frameMu.Unlock()

	m.clientsMu.Lock()
	for ch := range m.clients {
		select {
		case ch <- data:
		default:
			// Slow client, skip this frame.
		}
	}
	m.clientsMu.Unlock()
	return nil
}

// PollKey implements Surface.
func (m *MJPEGSurface) PollKey(delay time.Duration) int {
	select {
	case k := <-m.keys:
		return k
	default:
	}
	if delay <= 0 {
		return KeyNone
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case k := <-m.keys:
		return k
	case <-timer.C:
		return KeyNone
	}
}

// Close disconnects stream clients and stops the HTTP server.
func (m *MJPEGSurface) Close() error {
	m.clientsMu.Lock()
	if m.closed {
		m.clientsMu.Unlock()
		return nil
	}
	m.closed = true
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
	m.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return m.server.Shutdown(ctx)
}

// Frames returns the number of frames encoded.
func (m *MJPEGSurface) Frames() uint64 {
	m.frameMu.RLock()
	defer m.frameMu.RUnlock()
	return m.frames
}

// Clients returns the number of connected stream clients.
func (m *MJPEGSurface) Clients() int {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	return len(m.clients)
}

var viewerTemplate = template.Must(template.New("viewer").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>{{.}}</title>
<style>
body { background: #000; margin: 0; }
img { display: block; margin: auto; }
button { position: fixed; bottom: 8px; right: 8px; }
</style>
</head>
<body>
<img src="/stream" alt="{{.}}" width="640" height="480">
<button onclick="fetch('/key/q', {method: 'POST'})">Quit</button>
</body>
</html>
`))

func (m *MJPEGSurface) handleViewer(w http.ResponseWriter, r *http.Request) {
	m.frameMu.RLock()
	name := m.windowName
	m.frameMu.RUnlock()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	viewerTemplate.Execute(w, name)
}

func (m *MJPEGSurface) handleStill(w http.ResponseWriter, r *http.Request) {
	m.frameMu.RLock()
	data := m.latest
	m.frameMu.RUnlock()
	if data == nil {
		http.Error(w, "no frame yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (m *MJPEGSurface) handleStream(w http.ResponseWriter, r *http.Request) {
	ch := make(chan []byte, clientQueueSize)
	m.clientsMu.Lock()
	if m.closed {
		m.clientsMu.Unlock()
		http.Error(w, "display closed", http.StatusServiceUnavailable)
		return
	}
	m.clients[ch] = struct{}{}
	m.clientsMu.Unlock()

	defer func() {
		m.clientsMu.Lock()
		delete(m.clients, ch)
		m.clientsMu.Unlock()
	}()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	for {
		select {
		case data, ok := <-ch:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(data)); err != nil {
				return
			}
			if _, err := w.Write(data); err != nil {
				return
			}
			if _, err := fmt.Fprint(w, "\r\n"); err != nil {
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

func (m *MJPEGSurface) handleKey(w http.ResponseWriter, r *http.Request) {
	key, err := parseKey(mux.Vars(r)["key"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	select {
	case m.keys <- key:
		w.WriteHeader(http.StatusAccepted)
	default:
		http.Error(w, "too many key presses", http.StatusTooManyRequests)
	}
}

// parseKey accepts a single character, "esc", or a decimal key code.
func parseKey(s string) (int, error) {
	switch {
	case s == "esc":
		return KeyEsc, nil
	case len(s) == 1:
		return int(s[0]), nil
	}
	k, err := strconv.Atoi(s)
	if err != nil || k < 0 || k > 0xff {
		return 0, fmt.Errorf("invalid key %q", s)
	}
	return k, nil
}

// realClock implements ratelimit.Clock in terms of standard time functions.
type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Sleep(d time.Duration) {
	time.Sleep(d)
}
