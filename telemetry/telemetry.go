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

// Package telemetry decodes the telemetry rows appended to each frame by
// the sensor firmware.
//
// Telemetry row A occupies the first 80 words of the telemetry region and
// row B the following words. Offsets are those documented in the FLIR
// Lepton datasheet, telemetry mode section.
package telemetry

import (
	"fmt"
	"time"

	"github.com/TheCacophonyProject/go-cptv/cptvframe"

	"github.com/TheCacophonyProject/thermal-radiometry/radiometry"
)

const (
	rowBOffset = 80

	// MinWords is the number of telemetry words Decode needs.
	MinWords = rowBOffset + 27
)

// These are the values returned by Record.FFCState.
const (
	FFCNever    = "never"
	FFCImminent = "imminent"
	FFCRunning  = "running"
	FFCComplete = "complete"
)

// Record holds the decoded telemetry for a single frame. Temperatures are
// in centi-Kelvin as reported by the sensor.
type Record struct {
	Revision                 uint16
	TimeCounter              uint32 // ms since camera start
	Status                   uint32
	Serial                   [7]uint16
	SoftwareRevision         [3]uint16
	FrameCounter             uint32
	FrameMean                uint16
	FPATempCount             uint16
	FPATempKelvin            uint16
	HousingTempCount         uint16
	HousingTempKelvin        uint16
	FPATempLastFFCKelvin     uint16
	TimeCounterLastFFC       uint32 // ms since camera start
	HousingTempLastFFCKelvin uint16

	Emissivity              uint16
	BackgroundTempKelvin    uint16
	AtmosphericTransmission uint16
	AtmosphericTemp         uint16
	WindowTransmission      uint16
	WindowReflection        uint16
	WindowTemp              uint16
	WindowReflectedTemp     uint16
}

// Decode extracts a Record from the combined telemetry rows. words must
// hold at least MinWords values.
func Decode(words []uint16) Record {
	a := words
	b := words[rowBOffset:]

	var r Record
	r.Revision = a[0]
	r.TimeCounter = combine(a[1], a[2])
	r.Status = combine(a[3], a[4])
	copy(r.Serial[:], a[5:12])
	copy(r.SoftwareRevision[:], a[13:16])
	r.FrameCounter = combine(a[20], a[21])
	r.FrameMean = a[22]
	r.FPATempCount = a[23]
	r.FPATempKelvin = a[24]
	r.HousingTempCount = a[25]
	r.HousingTempKelvin = a[26]
	r.FPATempLastFFCKelvin = a[29]
	r.TimeCounterLastFFC = combine(a[30], a[31])
	r.HousingTempLastFFCKelvin = a[32]

	r.Emissivity = b[19]
	r.BackgroundTempKelvin = b[20]
	r.AtmosphericTransmission = b[21]
	r.AtmosphericTemp = b[22]
	r.WindowTransmission = b[23]
	r.WindowReflection = b[24]
	r.WindowTemp = b[25]
	r.WindowReflectedTemp = b[26]
	return r
}

// combine joins the two words of a 32-bit field as low + (high << 16).
func combine(low, high uint16) uint32 {
	return uint32(low) + (uint32(high) << 16)
}

const (
	statusFFCStateMask  uint32 = 3 << 4
	statusFFCStateShift uint32 = 4
)

// FFCState returns the flat field correction state from the status bits.
func (r *Record) FFCState() string {
	switch (r.Status & statusFFCStateMask) >> statusFFCStateShift {
	case 0:
		return FFCNever
	case 1:
		return FFCImminent
	case 2:
		return FFCRunning
	default:
		return FFCComplete
	}
}

func (r *Record) Uptime() time.Duration {
	return time.Duration(r.TimeCounter) * time.Millisecond
}

// SinceLastFFC returns how long ago the last flat field correction ran.
func (r *Record) SinceLastFFC() time.Duration {
	if r.TimeCounterLastFFC > r.TimeCounter {
		return 0
	}
	return time.Duration(r.TimeCounter-r.TimeCounterLastFFC) * time.Millisecond
}

func (r *Record) FPATempC() float64 {
	return radiometry.KToC(r.FPATempKelvin)
}

func (r *Record) HousingTempC() float64 {
	return radiometry.KToC(r.HousingTempKelvin)
}

// CPTVTelemetry converts the record to the form stored in CPTV files.
func (r *Record) CPTVTelemetry() cptvframe.Telemetry {
	return cptvframe.Telemetry{
		TimeOn:       r.Uptime(),
		FFCState:     r.FFCState(),
		FrameCount:   int(r.FrameCounter),
		FrameMean:    r.FrameMean,
		TempC:        r.FPATempC(),
		LastFFCTempC: radiometry.KToC(r.FPATempLastFFCKelvin),
		LastFFCTime:  time.Duration(r.TimeCounterLastFFC) * time.Millisecond,
	}
}

func (r *Record) String() string {
	return fmt.Sprintf("rev=%d uptime=%s frame=%d mean=%d fpa=%.2fC housing=%.2fC ffc=%s (%s ago)",
		r.Revision, r.Uptime(), r.FrameCounter, r.FrameMean,
		r.FPATempC(), r.HousingTempC(), r.FFCState(), r.SinceLastFFC())
}
