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

package recorder

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"syscall"
	"time"

	cptv "github.com/TheCacophonyProject/go-cptv"
	"github.com/TheCacophonyProject/go-cptv/cptvframe"
)

const cptvTempExt = "cptv.temp"

// ErrDiskFull is returned by CheckCanRecord when there is not enough free
// space in the output directory.
var ErrDiskFull = errors.New("not enough free disk space to start recording")

func NewCPTVFileRecorder(conf *Config, camera cptvframe.CameraSpec, brand, model string) *CPTVFileRecorder {
	cptvHeader := cptv.Header{
		DeviceName: conf.DeviceName,
		FPS:        camera.FPS(),
		Brand:      brand,
		Model:      model,
	}
	if conf.DeviceID > 0 {
		cptvHeader.DeviceID = conf.DeviceID
	}
	return &CPTVFileRecorder{
		outputDir:    conf.Dir,
		header:       cptvHeader,
		minDiskSpace: conf.MinDiskSpace,
		camera:       camera,
		nowFunc:      time.Now,
	}
}

// CPTVFileRecorder writes recordings to CPTV files. Files are written
// with a temporary extension and renamed once complete.
type CPTVFileRecorder struct {
	outputDir    string
	header       cptv.Header
	minDiskSpace uint64
	camera       cptvframe.CameraSpec
	writer       *cptv.FileWriter
	nowFunc      func() time.Time
}

func (fw *CPTVFileRecorder) CheckCanRecord() error {
	enoughSpace, err := checkDiskSpace(fw.minDiskSpace, fw.outputDir)
	if err != nil {
		return fmt.Errorf("problem with checking disk space: %v", err)
	} else if !enoughSpace {
		return ErrDiskFull
	}
	return nil
}

func (fw *CPTVFileRecorder) StartRecording() error {
	filename := filepath.Join(fw.outputDir, newRecordingTempName(fw.nowFunc()))
	log.Printf("recording started: %s", filename)

	writer, err := cptv.NewFileWriter(filename, fw.camera)
	if err != nil {
		return err
	}

	if err = writer.WriteHeader(fw.header); err != nil {
		writer.Close()
		return err
	}

	fw.writer = writer
	return nil
}

func (fw *CPTVFileRecorder) StopRecording() error {
	if fw.writer != nil {
		fw.writer.Close()

		finalName, err := renameTempRecording(fw.writer.Name())
		log.Printf("recording stopped: %s", finalName)
		fw.writer = nil

		return err
	}
	return nil
}

// Stop abandons any recording in progress.
func (fw *CPTVFileRecorder) Stop() {
	if fw.writer != nil {
		fw.writer.Close()
		os.Remove(fw.writer.Name())
		fw.writer = nil
	}
}

func (fw *CPTVFileRecorder) WriteFrame(frame *cptvframe.Frame) error {
	if fw.writer == nil {
		return errors.New("no recording in progress")
	}
	return fw.writer.WriteFrame(frame)
}

func newRecordingTempName(now time.Time) string {
	return now.Format("20060102.150405.000." + cptvTempExt)
}

func renameTempRecording(tempName string) (string, error) {
	finalName := recordingFinalName(tempName)
	err := os.Rename(tempName, finalName)
	if err != nil {
		return "", err
	}
	return finalName, nil
}

var reTempName = regexp.MustCompile(`(.+)\.temp$`)

func recordingFinalName(filename string) string {
	return reTempName.ReplaceAllString(filename, `$1`)
}

// DeleteTempFiles removes recordings left unfinished by an earlier run.
func DeleteTempFiles(directory string) error {
	matches, _ := filepath.Glob(filepath.Join(directory, "*."+cptvTempExt))
	for _, filename := range matches {
		if err := os.Remove(filename); err != nil {
			return err
		}
	}
	return nil
}

func checkDiskSpace(mb uint64, dir string) (bool, error) {
	var fs syscall.Statfs_t
	if err := syscall.Statfs(dir, &fs); err != nil {
		return false, err
	}
	return fs.Bavail*uint64(fs.Bsize)/1024/1024 >= mb, nil
}
