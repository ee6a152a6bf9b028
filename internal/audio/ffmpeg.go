package audio

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// FFmpegCapturer records audio by running ffmpeg against a device from its table.
type FFmpegCapturer struct {
	binary string
	table  DeviceTable
	log    zerolog.Logger
}

func NewFFmpegCapturer(binary string, table DeviceTable, log zerolog.Logger) *FFmpegCapturer {
	return &FFmpegCapturer{binary: binary, table: table, log: log}
}

func (c *FFmpegCapturer) Start(source Source, outputPath string) (Process, error) {
	dev, err := c.table.Lookup(source)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(c.binary, CaptureArgs(dev, outputPath)...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &CaptureSpawnError{Binary: c.binary, Source: source, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &CaptureSpawnError{Binary: c.binary, Source: source, Err: err}
	}

	p := &ffmpegProcess{
		cmd:        cmd,
		outputPath: outputPath,
		events:     make(chan Event, 32),
		done:       make(chan struct{}),
	}
	go p.supervise(stderr)

	c.log.Debug().
		Str("source", string(source)).
		Str("device", dev.Input).
		Int("pid", cmd.Process.Pid).
		Str("output", outputPath).
		Msg("Capture process started")

	return p, nil
}

type ffmpegProcess struct {
	cmd         *exec.Cmd
	outputPath  string
	events      chan Event
	done        chan struct{}
	terminating atomic.Bool
}

func (p *ffmpegProcess) Pid() int              { return p.cmd.Process.Pid }
func (p *ffmpegProcess) OutputPath() string    { return p.outputPath }
func (p *ffmpegProcess) Events() <-chan Event  { return p.events }
func (p *ffmpegProcess) Done() <-chan struct{} { return p.done }

func (p *ffmpegProcess) Terminate(grace time.Duration) error {
	p.terminating.Store(true)

	select {
	case <-p.done:
		return nil
	default:
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			<-p.done
			return nil
		}
		// SIGTERM is unsupported on some platforms; go straight to kill
		grace = 0
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(grace):
	}

	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill capture process %d: %w", p.Pid(), err)
	}
	<-p.done
	return nil
}

// supervise forwards stderr lines as diagnostics, then reaps the process and
// emits a single exit or error event before closing the channel.
func (p *ffmpegProcess) supervise(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Split(scanLines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case p.events <- Event{Kind: EventDiagnostic, Line: line}:
		default:
			// drop diagnostics nobody is keeping up with
		}
	}
	if scanner.Err() != nil {
		_, _ = io.Copy(io.Discard, stderr)
	}

	final := p.exitEvent(p.cmd.Wait())
	close(p.done)
	p.events <- final
	close(p.events)
}

func (p *ffmpegProcess) exitEvent(err error) Event {
	if err == nil {
		return Event{Kind: EventExit, ExitCode: 0, Killed: p.terminating.Load()}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// ExitCode is -1 when a signal we did not send ended the process.
		return Event{Kind: EventExit, ExitCode: exitErr.ExitCode(), Killed: p.terminating.Load()}
	}
	return Event{Kind: EventError, Err: err}
}

// scanLines splits on \n or \r so ffmpeg's carriage-return progress output
// still yields lines.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
