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

package headers

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v1"
)

// Header keys sent by a frame source before the first frame.
const (
	XResolution = "ResX"
	YResolution = "ResY"
	FPS         = "FPS"
	FrameSize   = "FrameSize"
	Brand       = "Brand"
	Model       = "Model"
	VendorID    = "VendorID"
	ProductID   = "ProductID"
	Formats     = "Formats"
)

// Format is one frame size and rate supported by the device.
type Format struct {
	Width  int
	Height int
	FPS    int
}

func (f Format) String() string {
	return fmt.Sprintf("%dx%d@%d", f.Width, f.Height, f.FPS)
}

// ParseFormat parses a format written as WIDTHxHEIGHT@FPS. The rate may
// be omitted.
func ParseFormat(s string) (Format, error) {
	var f Format
	s = strings.TrimSpace(s)
	size, rate := s, ""
	if i := strings.IndexByte(s, '@'); i >= 0 {
		size, rate = s[:i], s[i+1:]
	}
	if _, err := fmt.Sscanf(size, "%dx%d", &f.Width, &f.Height); err != nil {
		return Format{}, fmt.Errorf("invalid format %q: %v", s, err)
	}
	if rate != "" {
		if _, err := fmt.Sscanf(rate, "%d", &f.FPS); err != nil {
			return Format{}, fmt.Errorf("invalid format %q: %v", s, err)
		}
	}
	if f.Width <= 0 || f.Height <= 0 || f.FPS < 0 {
		return Format{}, fmt.Errorf("invalid format %q", s)
	}
	return f, nil
}

// HeaderInfo contains the camera description fields sent by a frame
// source.
type HeaderInfo struct {
	resX      int
	resY      int
	fps       int
	framesize int
	brand     string
	model     string
	vendorID  int
	productID int
	formats   []Format
}

// ResX implements cptvframe.CameraSpec.
func (h *HeaderInfo) ResX() int {
	return h.resX
}

// ResY implements cptvframe.CameraSpec.
func (h *HeaderInfo) ResY() int {
	return h.resY
}

// FPS implements cptvframe.CameraSpec.
func (h *HeaderInfo) FPS() int {
	return h.fps
}

// FrameSize returns the number of bytes in each frame (include any
// telemetry bytes).
func (h *HeaderInfo) FrameSize() int {
	return h.framesize
}

// Model returns the camera model.
func (h *HeaderInfo) Model() string {
	return h.model
}

// Brand returns the camera brand.
func (h *HeaderInfo) Brand() string {
	return h.brand
}

// VendorID returns the USB vendor ID of the device.
func (h *HeaderInfo) VendorID() uint16 {
	return uint16(h.vendorID)
}

// ProductID returns the USB product ID of the device.
func (h *HeaderInfo) ProductID() uint16 {
	return uint16(h.productID)
}

// Formats returns the frame formats the device offers. When the source
// doesn't list any, the single format given by ResX, ResY and FPS is
// returned.
func (h *HeaderInfo) Formats() []Format {
	if len(h.formats) > 0 {
		return h.formats
	}
	if h.resX == 0 || h.resY == 0 {
		return nil
	}
	return []Format{{Width: h.resX, Height: h.resY, FPS: h.fps}}
}

func ReadHeaderInfo(reader *bufio.Reader) (*HeaderInfo, error) {
	var buf bytes.Buffer
	for {
		line, err := reader.ReadString(byte('\n'))
		if err != nil {
			return nil, err
		}
		if strings.Trim(line, " ") == "\n" {
			break
		}
		buf.WriteString(line)
	}
	h := make(map[string]interface{})
	err := yaml.Unmarshal(buf.Bytes(), &h)
	if err != nil {
		return nil, err
	}

	formats, err := toFormats(h[Formats])
	if err != nil {
		return nil, err
	}

	return &HeaderInfo{
		resX:      toInt(h[XResolution]),
		resY:      toInt(h[YResolution]),
		fps:       toInt(h[FPS]),
		framesize: toInt(h[FrameSize]),
		brand:     toStr(h[Brand]),
		model:     toStr(h[Model]),
		vendorID:  toInt(h[VendorID]),
		productID: toInt(h[ProductID]),
		formats:   formats,
	}, nil
}

func toInt(v interface{}) int {
	out, ok := v.(int)
	if !ok {
		return 0
	}
	return out
}

func toStr(v interface{}) string {
	out, ok := v.(string)
	if !ok {
		return ""
	}
	return out
}

func toFormats(v interface{}) ([]Format, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, nil
	}
	formats := make([]Format, 0, len(list))
	for _, item := range list {
		f, err := ParseFormat(toStr(item))
		if err != nil {
			return nil, err
		}
		formats = append(formats, f)
	}
	return formats, nil
}
