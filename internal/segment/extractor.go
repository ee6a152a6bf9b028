// Package segment cuts the trailing window out of a capture file that is
// still being written.
package segment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Step names the external invocation an ExtractionError came from.
type Step string

const (
	StepProbe Step = "probe"
	StepTrim  Step = "trim"
)

// ExtractionError reports a failed probe or trim.
type ExtractionError struct {
	Step  Step
	Input string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("segment %s of %s failed: %v", e.Step, e.Input, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ErrNoDuration is wrapped when the probe cannot report a positive duration.
var ErrNoDuration = errors.New("duration unavailable")

// Extractor runs ffprobe and ffmpeg to cut segments.
type Extractor struct {
	FFprobe string
	FFmpeg  string
	Log     zerolog.Logger
}

func NewExtractor(ffprobe, ffmpeg string, log zerolog.Logger) *Extractor {
	return &Extractor{FFprobe: ffprobe, FFmpeg: ffmpeg, Log: log}
}

// Duration probes the current length of file.
func (e *Extractor) Duration(ctx context.Context, file string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, e.FFprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		file,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return 0, &ExtractionError{Step: StepProbe, Input: file, Err: withStderr(err, &stderr)}
	}

	secs, err := parseSeconds(string(out))
	if err != nil {
		return 0, &ExtractionError{Step: StepProbe, Input: file, Err: err}
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// Extract writes the last window of input to output, replacing any existing
// file. The duration is probed on every call because input keeps growing.
func (e *Extractor) Extract(ctx context.Context, input, output string, window time.Duration) error {
	total, err := e.Duration(ctx, input)
	if err != nil {
		return err
	}

	start := TrailingOffset(total, window)
	args := TrimArgs(input, output, start, window)

	cmd := exec.CommandContext(ctx, e.FFmpeg, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return &ExtractionError{
			Step:  StepTrim,
			Input: input,
			Err:   fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out))),
		}
	}

	e.Log.Debug().
		Str("input", input).
		Str("output", output).
		Dur("total", total).
		Dur("start", start).
		Msg("Segment extracted")
	return nil
}

// TrailingOffset is where the last window of a file of length total begins.
func TrailingOffset(total, window time.Duration) time.Duration {
	if total <= window {
		return 0
	}
	return total - window
}

// TrimArgs builds a codec-copy trim of window seconds starting at start.
func TrimArgs(input, output string, start, window time.Duration) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-ss", formatSeconds(start),
		"-i", input,
		"-t", formatSeconds(window),
		"-c", "copy",
		output,
	}
}

func parseSeconds(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0, ErrNoDuration
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNoDuration, s)
	}
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrNoDuration, s)
	}
	return v, nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func withStderr(err error, stderr *bytes.Buffer) error {
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		return fmt.Errorf("%w: %s", err, msg)
	}
	return err
}
