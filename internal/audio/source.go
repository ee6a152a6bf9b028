package audio

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/petems/interview-capture/internal/config"
)

// Source selects which physical or virtual device(s) a session records.
type Source string

const (
	SourceInterviewer Source = "interviewer"
	SourceInterviewee Source = "interviewee"
	SourceBoth        Source = "both"
	SourceSystem      Source = "system"
)

// Sources lists every supported source in display order.
var Sources = []Source{SourceInterviewer, SourceInterviewee, SourceBoth, SourceSystem}

// ParseSource accepts a source name case-insensitively.
func ParseSource(s string) (Source, error) {
	src := Source(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Sources {
		if src == known {
			return src, nil
		}
	}
	return "", &UnsupportedSourceError{Source: Source(s)}
}

// Device is the ffmpeg input for one source.
type Device struct {
	Format  string `yaml:"format"`
	Input   string `yaml:"input"`
	Virtual bool   `yaml:"virtual"` // loopback/aggregate device that must be installed separately
}

// DeviceTable maps each source to its capture device.
type DeviceTable map[Source]Device

// Lookup returns the device for source, or an *UnsupportedSourceError.
func (t DeviceTable) Lookup(source Source) (Device, error) {
	dev, ok := t[source]
	if !ok || dev.Input == "" {
		return Device{}, &UnsupportedSourceError{Source: source}
	}
	return dev, nil
}

// DefaultDevices returns the built-in device table for an OS.
func DefaultDevices(goos string) DeviceTable {
	switch goos {
	case "darwin":
		return DeviceTable{
			SourceInterviewee: {Format: "avfoundation", Input: ":default"},
			SourceInterviewer: {Format: "avfoundation", Input: ":BlackHole 2ch", Virtual: true},
			SourceSystem:      {Format: "avfoundation", Input: ":BlackHole 2ch", Virtual: true},
			SourceBoth:        {Format: "avfoundation", Input: ":Interview Aggregate", Virtual: true},
		}
	case "windows":
		return DeviceTable{
			SourceInterviewee: {Format: "dshow", Input: "audio=Microphone"},
			SourceInterviewer: {Format: "dshow", Input: "audio=Stereo Mix", Virtual: true},
			SourceSystem:      {Format: "dshow", Input: "audio=Stereo Mix", Virtual: true},
			SourceBoth:        {Format: "dshow", Input: "audio=CABLE Output", Virtual: true},
		}
	default:
		return DeviceTable{
			SourceInterviewee: {Format: "pulse", Input: "default"},
			SourceInterviewer: {Format: "pulse", Input: "@DEFAULT_MONITOR@", Virtual: true},
			SourceSystem:      {Format: "pulse", Input: "@DEFAULT_MONITOR@", Virtual: true},
			SourceBoth:        {Format: "pulse", Input: "interview_combined.monitor", Virtual: true},
		}
	}
}

// NewDeviceTable builds the device table for this OS with config overrides applied.
func NewDeviceTable(cfg config.CaptureConfig) (DeviceTable, error) {
	table := DefaultDevices(runtime.GOOS)
	for name, dc := range cfg.Devices {
		src, err := ParseSource(name)
		if err != nil {
			return nil, fmt.Errorf("capture device override %q: %w", name, err)
		}
		dev := table[src]
		if dc.Format != "" {
			dev.Format = dc.Format
		}
		if dc.Input != "" {
			dev.Input = dc.Input
		}
		dev.Virtual = dev.Virtual || dc.Virtual
		table[src] = dev
	}
	return table, nil
}

// CaptureArgs returns the ffmpeg arguments recording dev to outputPath as
// mono 16kHz 16-bit PCM.
func CaptureArgs(dev Device, outputPath string) []string {
	return []string{
		"-hide_banner",
		"-nostats",
		"-y",
		"-f", dev.Format,
		"-i", dev.Input,
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outputPath,
	}
}
