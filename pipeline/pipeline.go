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

// Package pipeline runs a capture session: it brings the capture service
// up, processes frames until the stream ends and then tears everything
// down again in reverse order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/daemon"

	"github.com/TheCacophonyProject/thermal-radiometry/capture"
	"github.com/TheCacophonyProject/thermal-radiometry/display"
	"github.com/TheCacophonyProject/thermal-radiometry/frame"
	"github.com/TheCacophonyProject/thermal-radiometry/framequeue"
	"github.com/TheCacophonyProject/thermal-radiometry/loglimiter"
	"github.com/TheCacophonyProject/thermal-radiometry/recorder"
	"github.com/TheCacophonyProject/thermal-radiometry/render"
	"github.com/TheCacophonyProject/thermal-radiometry/snapshot"
	"github.com/TheCacophonyProject/thermal-radiometry/telemetry"
)

const (
	DefaultFrameTimeout = 500 * time.Millisecond
	DefaultFormatIndex  = 1
	DefaultWindowName   = "thermal"

	pollDelay          = time.Millisecond
	sdNotifySecs       = 5
	logIntervalSecs    = 60 * 5
	errorLogInterval   = 10 * time.Second
	defaultFramesPerHz = 9
)

// ErrNotStreaming is returned by TakeSnapshot outside a session.
var ErrNotStreaming = errors.New("camera is not streaming")

type Config struct {
	VendorID  uint16
	ProductID uint16

	// FormatIndex selects an entry from the device's Y16 formats.
	FormatIndex int

	// FrameTimeout is how long to wait for a frame before ending the
	// session.
	FrameTimeout time.Duration

	WindowName string
	Snapshot   snapshot.Config
	Recorder   recorder.Config
	Verbose    bool
}

func DefaultConfig() Config {
	return Config{
		FormatIndex:  DefaultFormatIndex,
		FrameTimeout: DefaultFrameTimeout,
		WindowName:   DefaultWindowName,
		Snapshot:     snapshot.Config{Quality: snapshot.DefaultQuality},
	}
}

// SetupError reports a failure bringing up the capture service.
type SetupError struct {
	Step string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

type teardownStep struct {
	name string
	fn   func() error
}

// Pipeline owns the frame queue and session state for one capture
// service and surface.
type Pipeline struct {
	frames    uint64 // first for 64-bit atomic alignment on ARM
	snapshots uint64
	state     int32

	conf     Config
	service  capture.Service
	surface  display.Surface
	queue    *framequeue.Queue
	callback *capture.Callback
	renderer *render.Renderer
	errLog   *loglimiter.LogLimiter
	now      func() time.Time

	// Only touched by the processing goroutine.
	lastDrops uint64

	mu       sync.Mutex
	snapshot *snapshot.Writer
	stream   *recorder.StreamRecorder
	latest   *telemetry.Record
	teardown []teardownStep
}

func New(conf Config, service capture.Service, surface display.Surface) *Pipeline {
	if conf.FrameTimeout <= 0 {
		conf.FrameTimeout = DefaultFrameTimeout
	}
	if conf.WindowName == "" {
		conf.WindowName = DefaultWindowName
	}
	if surface == nil {
		surface = display.Headless{}
	}
	q := framequeue.New(framequeue.DefaultCapacity)
	return &Pipeline{
		conf:     conf,
		service:  service,
		surface:  surface,
		queue:    q,
		callback: capture.NewCallback(q),
		renderer: render.New(),
		errLog:   loglimiter.New(errorLogInterval),
		now:      time.Now,
	}
}

// Run brings up the capture service and processes frames until no frame
// arrives within the frame timeout, ctx is cancelled or the surface asks
// to quit. Teardown always runs. A setup failure is returned as a
// *SetupError. An error from processing takes precedence over a teardown
// error, otherwise the last teardown step to fail is returned.
func (p *Pipeline) Run(ctx context.Context) (err error) {
	p.setState(Idle)
	defer func() {
		if r := recover(); r != nil {
			p.setState(Error)
			p.unwind()
			panic(r)
		}
		if tdErr := p.unwind(); tdErr != nil && err == nil {
			err = tdErr
		}
		p.mu.Lock()
		p.snapshot = nil
		p.stream = nil
		p.mu.Unlock()
		if err != nil {
			p.setState(Error)
		} else {
			p.setState(Closed)
		}
	}()

	if err := p.service.Init(); err != nil {
		return &SetupError{"init", err}
	}
	p.push("exit", p.service.Exit)

	if err := p.service.OpenDevice(p.conf.VendorID, p.conf.ProductID); err != nil {
		return &SetupError{"open device", err}
	}
	p.push("release device", p.service.ReleaseDevice)
	p.setState(DeviceOpen)

	ff, err := p.selectFormat()
	if err != nil {
		return err
	}
	log.Printf("using format %v", ff)
	if err := p.service.ConfigureStream(capture.PixelFormatY16, ff); err != nil {
		return &SetupError{"configure stream", err}
	}
	p.setState(StreamingConfigured)

	if err := p.startRecorder(ff); err != nil {
		return err
	}
	snapshot.DeleteTempFiles(p.conf.Snapshot.Stem)

	p.queue.Drain()
	p.lastDrops = p.queue.Dropped()
	p.callback.Expect(ff)
	if err := p.service.StartStreaming(p.callback); err != nil {
		return &SetupError{"start streaming", err}
	}
	p.push("stop streaming", p.service.StopStreaming)
	p.startSnapshots()
	p.setState(Streaming)
	daemon.SdNotify(false, "READY=1")

	err = p.loop(ctx, ff)
	p.setState(Draining)
	return err
}

func (p *Pipeline) selectFormat() (capture.FrameFormat, error) {
	formats, err := p.service.FrameFormats(capture.PixelFormatY16)
	if err != nil {
		return capture.FrameFormat{}, &SetupError{"query formats", err}
	}
	i := p.conf.FormatIndex
	if i < 0 || i >= len(formats) {
		return capture.FrameFormat{}, &SetupError{"select format",
			fmt.Errorf("format index %d out of range, camera offers %d formats", i, len(formats))}
	}
	ff := formats[i]
	if ff.Height <= frame.TelemetryRows || ff.Width*frame.TelemetryRows < telemetry.MinWords {
		return capture.FrameFormat{}, &SetupError{"select format",
			fmt.Errorf("format %v is too small to carry telemetry", ff)}
	}
	return ff, nil
}

// startRecorder sets up the per-session CPTV recorder, if one is
// configured.
func (p *Pipeline) startRecorder(ff capture.FrameFormat) error {
	if !p.conf.Recorder.Enabled() {
		return nil
	}
	if err := recorder.DeleteTempFiles(p.conf.Recorder.Dir); err != nil {
		return &SetupError{"start recorder", err}
	}
	var brand, model string
	if d, ok := p.service.(capture.Describer); ok {
		brand, model = d.Brand(), d.Model()
	}
	fw := recorder.NewCPTVFileRecorder(&p.conf.Recorder, ff, brand, model)
	stream := recorder.NewStreamRecorder(fw, ff, p.conf.Recorder.MaxSecs)
	p.push("finish recording", stream.Close)

	p.mu.Lock()
	p.stream = stream
	p.mu.Unlock()
	return nil
}

// startSnapshots creates the snapshot writer. Snapshot names count from
// the moment streaming started.
func (p *Pipeline) startSnapshots() {
	w := snapshot.New(p.conf.Snapshot, p.now())
	p.mu.Lock()
	p.snapshot = w
	p.mu.Unlock()
}

func (p *Pipeline) loop(ctx context.Context, ff capture.FrameFormat) error {
	hz := ff.FPS()
	if hz <= 0 {
		hz = defaultFramesPerHz
	}
	count := 0
	for {
		f, err := p.queue.Dequeue(ctx, p.conf.FrameTimeout)
		if err == framequeue.ErrTimeout {
			log.Printf("no frame received in %v, stopping", p.conf.FrameTimeout)
			return nil
		} else if err != nil {
			log.Printf("stopping: %v", err)
			return nil
		}

		if err := p.process(f); err != nil {
			return err
		}

		if count++; count%(sdNotifySecs*hz) == 0 {
			daemon.SdNotify(false, "WATCHDOG=1")
		}
		if count%(15*hz) == 0 && count <= 60*hz || count%(logIntervalSecs*hz) == 0 {
			p.logProgress(count)
		}

		if display.IsQuit(p.surface.PollKey(pollDelay)) {
			log.Print("quit requested")
			return nil
		}
	}
}

// process runs one frame through decoding, rendering, persistence and
// display.
func (p *Pipeline) process(f *frame.RawFrame) error {
	now := p.now()
	atomic.AddUint64(&p.frames, 1)

	rec := telemetry.Decode(f.TelemetryWords())
	p.mu.Lock()
	p.latest = &rec
	w := p.snapshot
	stream := p.stream
	p.mu.Unlock()
	if p.conf.Verbose {
		log.Printf("telemetry: %v", &rec)
	}

	res := p.renderer.Render(f, now)
	if p.conf.Verbose {
		log.Printf("min %v max %v centre %v", res.Min, res.Max, res.Centre)
	}

	if name, saved, err := w.Consider(res.Image, now); err != nil {
		p.errLog.Printf("snapshot failed: %v", err)
	} else if saved {
		atomic.AddUint64(&p.snapshots, 1)
		if p.conf.Verbose {
			log.Printf("saved %s", name)
		}
	}

	if stream != nil {
		if err := stream.Write(f, rec); err != nil {
			p.errLog.Printf("recording failed: %v", err)
		}
	}

	if err := p.surface.Display(res.Image, p.conf.WindowName); err != nil {
		return fmt.Errorf("display failed: %w", err)
	}
	return nil
}

func (p *Pipeline) logProgress(count int) {
	log.Printf("%d frames for this session", count)
	dropped := p.queue.Dropped()
	if dropped != p.lastDrops {
		log.Printf("%d frames dropped while processing was busy", dropped-p.lastDrops)
		p.lastDrops = dropped
	}
	if m := p.callback.Malformed(); m > 0 {
		log.Printf("%d malformed frames discarded in total", m)
	}
	if n := p.errLog.Suppressed(); n > 0 {
		log.Printf("%d repeated errors suppressed in total", n)
	}
}

func (p *Pipeline) push(name string, fn func() error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.teardown = append(p.teardown, teardownStep{name, fn})
}

// unwind runs the teardown steps in reverse order. Every step runs even
// if an earlier one fails. The error from the last step to fail is
// returned.
func (p *Pipeline) unwind() error {
	p.mu.Lock()
	steps := p.teardown
	p.teardown = nil
	p.mu.Unlock()

	var last error
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		if err := step.fn(); err != nil {
			log.Printf("%s failed: %v", step.name, err)
			last = fmt.Errorf("%s failed: %w", step.name, err)
		}
	}
	return last
}

// TakeSnapshot saves the next frame regardless of the snapshot interval.
func (p *Pipeline) TakeSnapshot() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.snapshot == nil {
		return ErrNotStreaming
	}
	if !p.snapshot.Enabled() {
		return errors.New("snapshots are not enabled")
	}
	p.snapshot.Force()
	return nil
}

// LatestTelemetry returns the telemetry of the most recently processed
// frame.
func (p *Pipeline) LatestTelemetry() (telemetry.Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest == nil {
		return telemetry.Record{}, false
	}
	return *p.latest, true
}

type Stats struct {
	State     string `json:"state"`
	Frames    uint64 `json:"frames"`
	Received  uint64 `json:"received"`
	Malformed uint64 `json:"malformed"`
	Dropped   uint64 `json:"dropped"`
	Snapshots uint64 `json:"snapshots"`
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		State:     p.State().String(),
		Frames:    atomic.LoadUint64(&p.frames),
		Received:  p.callback.Received(),
		Malformed: p.callback.Malformed(),
		Dropped:   p.queue.Dropped(),
		Snapshots: atomic.LoadUint64(&p.snapshots),
	}
}
