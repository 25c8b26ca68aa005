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

// Package radiometry converts raw radiometric sensor counts into
// temperatures.
//
// Two unrelated calibrations are provided. KToC and KToF treat a count
// as a temperature in centi-Kelvin, which is how the sensor reports its
// own FPA and housing temperatures in telemetry. CompC is a linear fit
// of scene pixel counts to Celsius. The two are not expected to agree.
package radiometry

const (
	centiKelvinAtZeroC = 27315

	compSlope    = 0.0217
	compMidCount = 8192
	compKTemp    = 30250
)

// KToC converts a centi-Kelvin value to Celsius.
func KToC(raw uint16) float64 {
	return float64(int(raw)-centiKelvinAtZeroC) / 100.0
}

// KToF converts a centi-Kelvin value to Fahrenheit.
func KToF(raw uint16) float64 {
	return 1.8*KToC(raw) + 32.0
}

// CompC converts a scene pixel count to Celsius.
func CompC(raw uint16) float64 {
	return compSlope*float64(int(raw)-compMidCount) + float64(compKTemp)/100 - 273.15
}
