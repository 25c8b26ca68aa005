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

// Package render turns raw thermal frames into annotated 8-bit colour
// images.
package render

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/TheCacophonyProject/thermal-radiometry/frame"
	"github.com/TheCacophonyProject/thermal-radiometry/radiometry"
)

// Output image size.
const (
	Width  = 640
	Height = 480
)

const (
	markerSize       = 5
	markerOutline    = 2
	timestampOutline = 1
	timestampFormat  = "2006-01-02 15:04:05.000"
)

var (
	MinColor       = color.RGBA{0, 255, 255, 255}
	MaxColor       = color.RGBA{255, 0, 0, 255}
	CentreColor    = color.RGBA{255, 255, 0, 255}
	outlineColor   = color.RGBA{0, 0, 0, 255}
	timestampColor = color.RGBA{255, 255, 255, 255}

	timestampPos = image.Pt(0, 10)
	centrePos    = image.Pt(Width/2, Height/2)
)

// Sample is a raw sensor count at a location in the rendered image.
type Sample struct {
	Raw uint16
	Pt  image.Point
}

// Celsius converts the sample using the scene pixel calibration.
func (s Sample) Celsius() float64 {
	return radiometry.CompC(s.Raw)
}

func (s Sample) String() string {
	return fmt.Sprintf("%.1f C", s.Celsius())
}

// Result is a rendered frame with the temperatures shown on it.
type Result struct {
	Image  *image.RGBA
	Min    Sample
	Max    Sample
	Centre Sample
}

// Renderer scales and annotates frames. A Renderer reuses its scaling
// buffer so it must only be used from one goroutine.
type Renderer struct {
	scaler draw.Interpolator
	scaled *image.Gray16
	face   font.Face
}

func New() *Renderer {
	return &Renderer{
		scaler: draw.BiLinear,
		scaled: image.NewGray16(image.Rect(0, 0, Width, Height)),
		face:   basicfont.Face7x13,
	}
}

// Render produces the annotated image for f, stamped with ts.
func (r *Renderer) Render(f *frame.RawFrame, ts time.Time) *Result {
	src := f.Thermal()
	r.scaler.Scale(r.scaled, r.scaled.Bounds(), src, src.Bounds(), draw.Src, nil)

	res := &Result{Image: image.NewRGBA(image.Rect(0, 0, Width, Height))}
	res.Min, res.Max = minMaxLoc(r.scaled)
	res.Centre = Sample{Raw: r.scaled.Gray16At(centrePos.X, centrePos.Y).Y, Pt: centrePos}

	toRGB(r.scaled, res.Min.Raw, res.Max.Raw, res.Image)

	r.drawTemperature(res.Image, res.Min, MinColor)
	r.drawTemperature(res.Image, res.Max, MaxColor)
	r.drawTemperature(res.Image, res.Centre, CentreColor)
	r.drawOutlinedText(res.Image, ts.Format(timestampFormat), timestampPos, timestampColor, timestampOutline)
	return res
}

// minMaxLoc finds the first occurrence, in row-major order, of the
// smallest and largest samples.
func minMaxLoc(img *image.Gray16) (lo, hi Sample) {
	b := img.Bounds()
	lo = Sample{Raw: img.Gray16At(b.Min.X, b.Min.Y).Y, Pt: b.Min}
	hi = lo
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := img.Gray16At(x, y).Y
			if v < lo.Raw {
				lo = Sample{Raw: v, Pt: image.Pt(x, y)}
			}
			if v > hi.Raw {
				hi = Sample{Raw: v, Pt: image.Pt(x, y)}
			}
		}
	}
	return lo, hi
}

// toRGB stretches [lo, hi] over the full 16-bit range, rounding to the
// nearest level, keeps the top 8 bits and writes them as grey into dst. A
// flat frame renders black.
func toRGB(src *image.Gray16, lo, hi uint16, dst *image.RGBA) {
	span := uint32(hi) - uint32(lo)
	b := src.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var v uint32
			if span > 0 {
				v = ((uint32(src.Gray16At(x, y).Y)-uint32(lo))*0xffff + span/2) / span
			}
			g := uint8(v >> 8)
			i := dst.PixOffset(x, y)
			dst.Pix[i+0] = g
			dst.Pix[i+1] = g
			dst.Pix[i+2] = g
			dst.Pix[i+3] = 0xff
		}
	}
}

func (r *Renderer) drawTemperature(img *image.RGBA, s Sample, c color.RGBA) {
	r.drawOutlinedText(img, s.String(), s.Pt, c, markerOutline)
	x, y := s.Pt.X, s.Pt.Y
	for i := -markerSize; i <= markerSize; i++ {
		setIn(img, x+i, y, c)
		setIn(img, x, y+i, c)
	}
}

// drawOutlinedText draws s with its baseline starting at pt, first in
// outline colour offset in every direction up to radius pixels, then in c.
func (r *Renderer) drawOutlinedText(img *image.RGBA, s string, pt image.Point, c color.RGBA, radius int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(outlineColor),
		Face: r.face,
	}
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			d.Dot = fixed.P(pt.X+dx, pt.Y+dy)
			d.DrawString(s)
		}
	}
	d.Src = image.NewUniform(c)
	d.Dot = fixed.P(pt.X, pt.Y)
	d.DrawString(s)
}

func setIn(img *image.RGBA, x, y int, c color.RGBA) {
	if (image.Point{x, y}).In(img.Rect) {
		img.SetRGBA(x, y, c)
	}
}
