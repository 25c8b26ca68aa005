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
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/thermal-radiometry/pipeline"
	"github.com/TheCacophonyProject/thermal-radiometry/telemetry"
)

func TestAllDefaults(t *testing.T) {
	conf, err := ParseConfig([]byte(""))
	require.NoError(t, err)
	require.NoError(t, conf.Validate())
	assert.Equal(t, defaultConfig, *conf)

	pconf := conf.pipelineConfig()
	assert.Equal(t, 1, pconf.FormatIndex)
	assert.Equal(t, 500*time.Millisecond, pconf.FrameTimeout)
	assert.Equal(t, 50, pconf.Snapshot.Quality)
	assert.False(t, pconf.Recorder.Enabled())
}

func TestAllSet(t *testing.T) {
	config := []byte(`
frame-input: "/var/run/cam"
vendor-id: 0x1e4e
product-id: 0x0100
format-index: 0
frame-timeout: 2s
window-name: "lepton"
power-pin: ""
snapshot:
  file: "/var/spool/snap/frame"
  interval: 0.5
  quality: 90
display:
  enabled: false
  listen: ":9000"
  max-fps: 4
  quality: 70
cptv-dir: "/var/spool/cptv"
max-secs: 60
min-disk-space: 100
`)
	conf, err := ParseConfig(config)
	require.NoError(t, err)
	require.NoError(t, conf.Validate())

	assert.Equal(t, Config{
		FrameInput:   "/var/run/cam",
		VendorID:     0x1e4e,
		ProductID:    0x0100,
		FormatIndex:  0,
		FrameTimeout: 2 * time.Second,
		WindowName:   "lepton",
		Snapshot: SnapshotConfig{
			File:     "/var/spool/snap/frame",
			Interval: 0.5,
			Quality:  90,
		},
		Display: DisplayConfig{
			Listen:  ":9000",
			MaxFPS:  4,
			Quality: 70,
		},
		CPTVDir:      "/var/spool/cptv",
		MaxSecs:      60,
		MinDiskSpace: 100,
	}, *conf)
	pconf := conf.pipelineConfig()
	assert.True(t, pconf.Recorder.Enabled())
}

func TestInvalidConfig(t *testing.T) {
	for _, config := range []string{
		"snapshot:\n  interval: -1\n",
		"snapshot:\n  quality: 101\n",
		"display:\n  quality: 0\n",
		"frame-timeout: 0s\n",
		"format-index: -1\n",
		"cptv-dir: /tmp\nmax-secs: 0\n",
	} {
		conf, err := ParseConfig([]byte(config))
		require.NoError(t, err, config)
		assert.Error(t, conf.Validate(), config)
	}
}

func TestMissingFileGivesDefaults(t *testing.T) {
	conf, err := ParseConfigFile("/nonexistent/thermal-radiometry.yaml")
	require.NoError(t, err)
	assert.Equal(t, defaultConfig, *conf)
}

func TestParseConfigFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "config")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	filename := filepath.Join(dir, "thermal-radiometry.yaml")
	require.NoError(t, ioutil.WriteFile(filename, []byte("window-name: cam\n"), 0644))

	conf, err := ParseConfigFile(filename)
	require.NoError(t, err)
	assert.Equal(t, "cam", conf.WindowName)

	require.NoError(t, ioutil.WriteFile(filename, []byte("window-name: [\n"), 0644))
	_, err = ParseConfigFile(filename)
	assert.Error(t, err)
}

func TestApplyArgs(t *testing.T) {
	conf, err := ParseConfig([]byte("snapshot:\n  file: a\n  interval: 3\n"))
	require.NoError(t, err)

	conf.ApplyArgs(Args{})
	assert.Equal(t, "a", conf.Snapshot.File)
	assert.Equal(t, 3.0, conf.Snapshot.Interval)

	zero := 0.0
	conf.ApplyArgs(Args{File: "b", Interval: &zero, Verbose: true})
	assert.Equal(t, "b", conf.Snapshot.File)
	assert.Equal(t, 0.0, conf.Snapshot.Interval)
	assert.True(t, conf.Verbose)
}

func TestLoadDeviceConfigMissingDir(t *testing.T) {
	conf, err := ParseConfig(nil)
	require.NoError(t, err)
	require.NoError(t, conf.LoadDeviceConfig("/nonexistent/cacophony"))
	assert.Equal(t, "", conf.DeviceName)
	assert.Nil(t, conf.Window)
}

type stubSession struct {
	snapErr error
	rec     *telemetry.Record
}

func (s *stubSession) TakeSnapshot() error { return s.snapErr }

func (s *stubSession) LatestTelemetry() (telemetry.Record, bool) {
	if s.rec == nil {
		return telemetry.Record{}, false
	}
	return *s.rec, true
}

func (s *stubSession) Stats() pipeline.Stats {
	return pipeline.Stats{State: "streaming", Frames: 10, Received: 12, Dropped: 2}
}

func TestServiceMethods(t *testing.T) {
	session := &stubSession{snapErr: errors.New("snapshots are not enabled")}
	svc := &service{session: session}

	dbusErr := svc.TakeSnapshot()
	require.NotNil(t, dbusErr)
	assert.Equal(t, dbusName+".TakeSnapshot", dbusErr.Name)
	session.snapErr = nil
	assert.Nil(t, svc.TakeSnapshot())

	_, dbusErr = svc.Telemetry()
	assert.NotNil(t, dbusErr)

	session.rec = &telemetry.Record{
		FrameCounter:       7,
		TimeCounter:        61500,
		TimeCounterLastFFC: 1500,
		Status:             3 << 4,
		FPATempKelvin:      30115,
	}
	out, dbusErr := svc.Telemetry()
	require.Nil(t, dbusErr)
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, 7.0, info["frameCounter"])
	assert.Equal(t, "1m1.5s", info["uptime"])
	assert.Equal(t, "1m0s", info["sinceFFC"])
	assert.Equal(t, telemetry.FFCComplete, info["ffcState"])
	assert.InDelta(t, 28.0, info["fpaTempC"], 1e-9)

	out, dbusErr = svc.Stats()
	require.Nil(t, dbusErr)
	assert.JSONEq(t, `{"state":"streaming","frames":10,"received":12,"malformed":0,"dropped":2,"snapshots":0}`, out)
}
