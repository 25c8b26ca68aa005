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

package main

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"

	"github.com/TheCacophonyProject/thermal-radiometry/pipeline"
	"github.com/TheCacophonyProject/thermal-radiometry/telemetry"
)

const (
	dbusName = "org.cacophony.thermalradiometry"
	dbusPath = "/org/cacophony/thermalradiometry"
)

type session interface {
	TakeSnapshot() error
	LatestTelemetry() (telemetry.Record, bool)
	Stats() pipeline.Stats
}

type service struct {
	session session
}

func startService(s session) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	svc := &service{session: s}
	conn.Export(svc, dbusPath, dbusName)
	conn.Export(genIntrospectable(svc), dbusPath, "org.freedesktop.DBus.Introspectable")
	return nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

// TakeSnapshot will save the next frame regardless of the snapshot interval
func (s *service) TakeSnapshot() *dbus.Error {
	if err := s.session.TakeSnapshot(); err != nil {
		return makeDbusError("TakeSnapshot", err)
	}
	return nil
}

// Telemetry returns the telemetry of the latest frame as JSON
func (s *service) Telemetry() (string, *dbus.Error) {
	rec, ok := s.session.LatestTelemetry()
	if !ok {
		return "", makeDbusError("Telemetry", pipeline.ErrNotStreaming)
	}
	buf, err := json.Marshal(newTelemetryInfo(rec))
	if err != nil {
		return "", makeDbusError("Telemetry", err)
	}
	return string(buf), nil
}

// Stats returns frame counters for the current session as JSON
func (s *service) Stats() (string, *dbus.Error) {
	buf, err := json.Marshal(s.session.Stats())
	if err != nil {
		return "", makeDbusError("Stats", err)
	}
	return string(buf), nil
}

func makeDbusError(name string, err error) *dbus.Error {
	return &dbus.Error{
		Name: dbusName + "." + name,
		Body: []interface{}{err.Error()},
	}
}

type telemetryInfo struct {
	FrameCounter uint32  `json:"frameCounter"`
	FrameMean    uint16  `json:"frameMean"`
	Uptime       string  `json:"uptime"`
	SinceFFC     string  `json:"sinceFFC"`
	FFCState     string  `json:"ffcState"`
	FPATempC     float64 `json:"fpaTempC"`
	HousingTempC float64 `json:"housingTempC"`
	Emissivity   uint16  `json:"emissivity"`
}

func newTelemetryInfo(r telemetry.Record) telemetryInfo {
	return telemetryInfo{
		FrameCounter: r.FrameCounter,
		FrameMean:    r.FrameMean,
		Uptime:       r.Uptime().Round(time.Millisecond).String(),
		SinceFFC:     r.SinceLastFFC().Round(time.Millisecond).String(),
		FFCState:     r.FFCState(),
		FPATempC:     r.FPATempC(),
		HousingTempC: r.HousingTempC(),
		Emissivity:   r.Emissivity,
	}
}
