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
	"context"
	"log"

	goconfig "github.com/TheCacophonyProject/go-config"
	arg "github.com/alexflint/go-arg"
	"github.com/maruel/interrupt"
	"golang.org/x/sync/errgroup"

	"github.com/TheCacophonyProject/thermal-radiometry/capture"
	"github.com/TheCacophonyProject/thermal-radiometry/display"
	"github.com/TheCacophonyProject/thermal-radiometry/pipeline"
)

var version = "<not set>"

type Args struct {
	File       string   `arg:"-f,--file" help:"save snapshots using this path prefix"`
	Interval   *float64 `arg:"-i,--interval" help:"minimum seconds between snapshots, 0 saves every frame"`
	ConfigFile string   `arg:"-c,--config" help:"path to configuration file"`
	ConfigDir  string   `arg:"--config-dir" help:"path to device configuration directory"`
	Fake       bool     `arg:"--fake" help:"use a synthetic camera"`
	Quick      bool     `arg:"-q,--quick" help:"don't cycle camera power on startup"`
	Timestamps bool     `arg:"-t,--timestamps" help:"include timestamps in log output"`
	Verbose    bool     `arg:"-v,--verbose" help:"log telemetry for every frame"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	args.ConfigFile = "/etc/thermal-radiometry.yaml"
	args.ConfigDir = goconfig.DefaultConfigDir
	arg.MustParse(&args)
	return args
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	args := procArgs()
	if !args.Timestamps {
		log.SetFlags(0) // Removes default timestamp flag
	}

	log.Printf("running version: %s", version)
	conf, err := ParseConfigFile(args.ConfigFile)
	if err != nil {
		return err
	}
	conf.ApplyArgs(args)
	if err := conf.LoadDeviceConfig(args.ConfigDir); err != nil {
		return err
	}
	if err := conf.Validate(); err != nil {
		return err
	}
	logConfig(conf)

	var service capture.Service
	if args.Fake {
		log.Print("using synthetic camera")
		service = capture.NewFakeService()
	} else {
		if !args.Quick {
			if err := cycleCameraPower(conf.PowerPin); err != nil {
				return err
			}
		}
		service = capture.NewSocketService(conf.FrameInput)
	}

	var surface display.Surface = display.Headless{}
	var mjpeg *display.MJPEGSurface
	if conf.Display.Enabled {
		mjpeg = display.NewMJPEGSurface(conf.mjpegConfig())
		surface = mjpeg
	}

	p := pipeline.New(conf.pipelineConfig(), service, surface)

	log.Println("starting d-bus service")
	if err := startService(p); err != nil {
		log.Printf("d-bus service not available: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	interrupt.HandleCtrlC()
	go func() {
		select {
		case <-interrupt.Channel:
			log.Print("interrupted, stopping")
			cancel()
		case <-ctx.Done():
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	if mjpeg != nil {
		log.Printf("serving display on %s", conf.Display.Listen)
		g.Go(mjpeg.ListenAndServe)
	}
	g.Go(func() error {
		defer surface.Close()
		return p.Run(ctx)
	})
	return g.Wait()
}

func logConfig(conf *Config) {
	log.Printf("device name: %s", conf.DeviceName)
	log.Printf("frame input: %s", conf.FrameInput)
	log.Printf("camera: %04x:%04x format index %d", conf.VendorID, conf.ProductID, conf.FormatIndex)
	log.Printf("frame timeout: %v", conf.FrameTimeout)
	log.Printf("power pin: %s", conf.PowerPin)
	if conf.Snapshot.File != "" {
		log.Printf("snapshots: %s every %.2fs, quality %d",
			conf.Snapshot.File, conf.Snapshot.Interval, conf.Snapshot.Quality)
	}
	if conf.Window != nil {
		log.Printf("snapshot window: %v", conf.Window)
	}
	if conf.CPTVDir != "" {
		log.Printf("cptv dir: %s", conf.CPTVDir)
		log.Printf("recording limit: %ds", conf.MaxSecs)
		log.Printf("minimum disk space: %d", conf.MinDiskSpace)
	}
	log.Printf("display: %+v", conf.Display)
}
