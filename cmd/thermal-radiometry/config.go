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
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"time"

	goconfig "github.com/TheCacophonyProject/go-config"
	"github.com/TheCacophonyProject/window"
	yaml "gopkg.in/yaml.v2"

	"github.com/TheCacophonyProject/thermal-radiometry/capture"
	"github.com/TheCacophonyProject/thermal-radiometry/display"
	"github.com/TheCacophonyProject/thermal-radiometry/pipeline"
	"github.com/TheCacophonyProject/thermal-radiometry/recorder"
	"github.com/TheCacophonyProject/thermal-radiometry/snapshot"
)

type Config struct {
	FrameInput   string         `yaml:"frame-input"`
	VendorID     uint16         `yaml:"vendor-id"`
	ProductID    uint16         `yaml:"product-id"`
	FormatIndex  int            `yaml:"format-index"`
	FrameTimeout time.Duration  `yaml:"frame-timeout"`
	WindowName   string         `yaml:"window-name"`
	PowerPin     string         `yaml:"power-pin"`
	Snapshot     SnapshotConfig `yaml:"snapshot"`
	Display      DisplayConfig  `yaml:"display"`
	CPTVDir      string         `yaml:"cptv-dir"`
	MaxSecs      int            `yaml:"max-secs"`
	MinDiskSpace uint64         `yaml:"min-disk-space"`
	Verbose      bool           `yaml:"verbose"`

	// Loaded from the device wide configuration.
	DeviceName string         `yaml:"-"`
	DeviceID   int            `yaml:"-"`
	Window     *window.Window `yaml:"-"`
}

type SnapshotConfig struct {
	File      string  `yaml:"file"`
	Interval  float64 `yaml:"interval"`
	Quality   int     `yaml:"quality"`
	UseWindow bool    `yaml:"use-window"`
}

type DisplayConfig struct {
	Enabled bool    `yaml:"enabled"`
	Listen  string  `yaml:"listen"`
	MaxFPS  float64 `yaml:"max-fps"`
	Quality int     `yaml:"quality"`
}

var defaultConfig = Config{
	FrameInput:   capture.DefaultSocketPath,
	FormatIndex:  pipeline.DefaultFormatIndex,
	FrameTimeout: pipeline.DefaultFrameTimeout,
	WindowName:   pipeline.DefaultWindowName,
	PowerPin:     "GPIO23",
	Snapshot: SnapshotConfig{
		Quality: snapshot.DefaultQuality,
	},
	Display: DisplayConfig{
		Enabled: true,
		Listen:  display.DefaultListen,
		MaxFPS:  9,
		Quality: display.DefaultQuality,
	},
	MaxSecs:      600,
	MinDiskSpace: 200,
}

func (conf *Config) Validate() error {
	if conf.Snapshot.Interval < 0 {
		return errors.New("snapshot interval can't be negative")
	}
	if conf.Snapshot.Quality < 1 || conf.Snapshot.Quality > 100 {
		return errors.New("snapshot quality should be in range 1 - 100")
	}
	if conf.Display.Quality < 1 || conf.Display.Quality > 100 {
		return errors.New("display quality should be in range 1 - 100")
	}
	if conf.FrameTimeout <= 0 {
		return errors.New("frame-timeout must be positive")
	}
	if conf.FormatIndex < 0 {
		return errors.New("format-index can't be negative")
	}
	rc := conf.recorderConfig()
	return rc.Validate()
}

// ParseConfigFile reads filename. A missing file gives the defaults.
func ParseConfigFile(filename string) (*Config, error) {
	buf, err := ioutil.ReadFile(filename)
	if os.IsNotExist(err) {
		buf = nil
	} else if err != nil {
		return nil, err
	}
	return ParseConfig(buf)
}

func ParseConfig(buf []byte) (*Config, error) {
	conf := defaultConfig
	if err := yaml.Unmarshal(buf, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

// LoadDeviceConfig fills in the device identity and, when snapshots are
// limited to the recording window, the window. Nothing is loaded if
// configDir doesn't exist.
func (conf *Config) LoadDeviceConfig(configDir string) error {
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return nil
	}
	configRW, err := goconfig.New(configDir)
	if err != nil {
		return err
	}

	var deviceConfig goconfig.Device
	if err := configRW.Unmarshal(goconfig.DeviceKey, &deviceConfig); err != nil {
		return err
	}
	conf.DeviceName = deviceConfig.Name
	conf.DeviceID = deviceConfig.ID

	if !conf.Snapshot.UseWindow {
		return nil
	}
	windowLocationConfig := goconfig.DefaultWindowLocation()
	if err := configRW.Unmarshal(goconfig.LocationKey, &windowLocationConfig); err != nil {
		return err
	}
	windowsConfig := goconfig.DefaultWindows()
	if err := configRW.Unmarshal(goconfig.WindowsKey, &windowsConfig); err != nil {
		return err
	}
	w, err := window.New(
		windowsConfig.StartRecording,
		windowsConfig.StopRecording,
		float64(windowLocationConfig.Latitude),
		float64(windowLocationConfig.Longitude))
	if err != nil {
		return fmt.Errorf("invalid recording window: %w", err)
	}
	conf.Window = w
	return nil
}

// ApplyArgs overrides file settings with those given on the command line.
func (conf *Config) ApplyArgs(args Args) {
	if args.File != "" {
		conf.Snapshot.File = args.File
	}
	if args.Interval != nil {
		conf.Snapshot.Interval = *args.Interval
	}
	if args.Verbose {
		conf.Verbose = true
	}
}

func (conf *Config) recorderConfig() recorder.Config {
	return recorder.Config{
		Dir:          conf.CPTVDir,
		MinDiskSpace: conf.MinDiskSpace,
		MaxSecs:      conf.MaxSecs,
		DeviceName:   conf.DeviceName,
		DeviceID:     conf.DeviceID,
	}
}

func (conf *Config) pipelineConfig() pipeline.Config {
	return pipeline.Config{
		VendorID:     conf.VendorID,
		ProductID:    conf.ProductID,
		FormatIndex:  conf.FormatIndex,
		FrameTimeout: conf.FrameTimeout,
		WindowName:   conf.WindowName,
		Snapshot: snapshot.Config{
			Stem:     conf.Snapshot.File,
			Interval: conf.Snapshot.Interval,
			Quality:  conf.Snapshot.Quality,
			Window:   conf.Window,
		},
		Recorder: conf.recorderConfig(),
		Verbose:  conf.Verbose,
	}
}

func (conf *Config) mjpegConfig() display.MJPEGConfig {
	return display.MJPEGConfig{
		Listen:  conf.Display.Listen,
		MaxFPS:  conf.Display.MaxFPS,
		Quality: conf.Display.Quality,
	}
}
