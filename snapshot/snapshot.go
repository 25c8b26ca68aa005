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

// Package snapshot persists rendered frames as JPEG files, no more often
// than a configured interval.
package snapshot

import (
	"fmt"
	"image"
	"image/jpeg"
	"log"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/TheCacophonyProject/window"
)

const (
	DefaultQuality = 50
	tempExt        = ".temp"
)

type Config struct {
	// Stem is the path prefix of each snapshot. Nothing is written when
	// it is empty.
	Stem string

	// Interval is the minimum number of seconds between snapshots. Zero
	// saves every frame.
	Interval float64

	Quality int

	// Window, when set, restricts snapshots to the recording window.
	Window *window.Window
}

// Writer decides which frames to save and writes them. Consider must only
// be called from one goroutine; Force may be called from any.
type Writer struct {
	force        int32
	conf         Config
	sessionStart time.Time
	lastSnapshot time.Time
	saved        int
}

// New returns a Writer for a session that started at sessionStart.
func New(conf Config, sessionStart time.Time) *Writer {
	if conf.Quality == 0 {
		conf.Quality = DefaultQuality
	}
	return &Writer{
		conf:         conf,
		sessionStart: sessionStart,
		lastSnapshot: sessionStart,
	}
}

// Enabled reports whether an output stem is configured.
func (w *Writer) Enabled() bool {
	return w.conf.Stem != ""
}

// Force makes the next frame due regardless of the interval.
func (w *Writer) Force() {
	atomic.StoreInt32(&w.force, 1)
}

// Saved returns the number of snapshots written this session.
func (w *Writer) Saved() int {
	return w.saved
}

// Due reports whether a frame arriving at frameTime should be saved.
func (w *Writer) Due(frameTime time.Time) bool {
	if !w.Enabled() {
		return false
	}
	if w.conf.Window != nil && !w.conf.Window.Active() {
		return false
	}
	if atomic.LoadInt32(&w.force) != 0 {
		return true
	}
	if w.conf.Interval <= 0 {
		return true
	}
	return frameTime.Sub(w.lastSnapshot).Seconds() > w.conf.Interval
}

// Consider saves img if a frame arriving at frameTime is due. It returns
// the path written, if any.
func (w *Writer) Consider(img image.Image, frameTime time.Time) (string, bool, error) {
	if !w.Due(frameTime) {
		return "", false, nil
	}
	atomic.StoreInt32(&w.force, 0)

	name := Filename(w.conf.Stem, frameTime.Sub(w.sessionStart), w.conf.Interval)
	if err := writeJPEG(name, img, w.conf.Quality); err != nil {
		return "", false, err
	}
	w.lastSnapshot = frameTime
	w.saved++
	return name, true, nil
}

// Filename names a snapshot taken elapsed into the session. A fractional
// interval gives centisecond names, otherwise whole seconds are used.
func Filename(stem string, elapsed time.Duration, interval float64) string {
	secs := elapsed.Seconds()
	if _, frac := math.Modf(interval); frac != 0 {
		return fmt.Sprintf("%s-%010.2f.jpg", stem, secs)
	}
	return fmt.Sprintf("%s-%08d.jpg", stem, int64(secs))
}

func writeJPEG(name string, img image.Image, quality int) error {
	tempName := name + tempExt
	f, err := os.Create(tempName)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		f.Close()
		os.Remove(tempName)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tempName)
		return err
	}
	return os.Rename(tempName, finalName(tempName))
}

var reTempName = regexp.MustCompile(`(.+)\.temp$`)

func finalName(filename string) string {
	return reTempName.ReplaceAllString(filename, `$1`)
}

// DeleteTempFiles removes snapshots left half written by an earlier run.
func DeleteTempFiles(stem string) {
	if stem == "" {
		return
	}
	matches, _ := filepath.Glob(stem + "-*.jpg" + tempExt)
	for _, name := range matches {
		if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
			log.Printf("error deleting snapshot temp file: %v", err)
		}
	}
}
