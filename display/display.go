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

// Package display shows rendered frames. The pipeline talks to a Surface;
// MJPEGSurface serves frames to browsers and Headless discards them.
package display

import (
	"image"
	"time"
)

// KeyNone is returned by PollKey when no key was pressed.
const KeyNone = -1

// KeyEsc is the escape key.
const KeyEsc = 27

// Surface displays rendered images and reports key presses.
type Surface interface {
	Display(img *image.RGBA, windowName string) error

	// PollKey waits up to delay for a key press and returns it, or KeyNone.
	PollKey(delay time.Duration) int

	Close() error
}

// IsQuit reports whether key asks the pipeline to stop.
func IsQuit(key int) bool {
	return key == 'q' || key == 'Q' || key == KeyEsc
}

// Headless is a Surface without a display.
type Headless struct{}

func (Headless) Display(*image.RGBA, string) error { return nil }
func (Headless) PollKey(time.Duration) int         { return KeyNone }
func (Headless) Close() error                      { return nil }
