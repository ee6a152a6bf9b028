package audio

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stubs need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func testTable() DeviceTable {
	return DeviceTable{SourceInterviewee: {Format: "lavfi", Input: "anullsrc"}}
}

func collect(t *testing.T, p Process, timeout time.Duration) []Event {
	t.Helper()
	var events []Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-p.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("events channel not closed after %s", timeout)
		}
	}
}

func drain(p Process) []Event {
	var events []Event
	for ev := range p.Events() {
		events = append(events, ev)
	}
	return events
}

func TestCaptureUnexpectedExit(t *testing.T) {
	bin := writeScript(t, "echo 'Input/output error' >&2\nexit 1")
	c := NewFFmpegCapturer(bin, testTable(), zerolog.Nop())

	p, err := c.Start(SourceInterviewee, filepath.Join(t.TempDir(), "out.wav"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	events := collect(t, p, 5*time.Second)
	if len(events) != 2 {
		t.Fatalf("expected diagnostic + exit events, got %+v", events)
	}
	if events[0].Kind != EventDiagnostic || events[0].Line != "Input/output error" {
		t.Errorf("unexpected diagnostic %+v", events[0])
	}
	last := events[1]
	if last.Kind != EventExit || last.ExitCode != 1 || last.Killed {
		t.Errorf("expected unkilled exit code 1, got %+v", last)
	}
}

func TestCaptureTerminate(t *testing.T) {
	bin := writeScript(t, "exec sleep 30")
	c := NewFFmpegCapturer(bin, testTable(), zerolog.Nop())

	p, err := c.Start(SourceInterviewee, filepath.Join(t.TempDir(), "out.wav"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan []Event)
	go func() { done <- drain(p) }()

	start := time.Now()
	if err := p.Terminate(time.Second); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("terminate took %s", elapsed)
	}

	select {
	case <-p.Done():
	default:
		t.Fatal("Done should be closed after Terminate returns")
	}

	events := <-done
	last := events[len(events)-1]
	if last.Kind != EventExit || !last.Killed {
		t.Errorf("expected killed exit event, got %+v", last)
	}

	// second terminate is a no-op
	if err := p.Terminate(time.Second); err != nil {
		t.Errorf("second Terminate: %v", err)
	}
}

func TestCaptureTerminateEscalatesToKill(t *testing.T) {
	bin := writeScript(t, "trap '' TERM\nwhile true; do sleep 0.05; done")
	c := NewFFmpegCapturer(bin, testTable(), zerolog.Nop())

	p, err := c.Start(SourceInterviewee, filepath.Join(t.TempDir(), "out.wav"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	go drain(p)

	// give the shell time to install its trap
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	if err := p.Terminate(100 * time.Millisecond); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("expected grace period before kill, returned after %s", elapsed)
	}
}

func TestCaptureSpawnError(t *testing.T) {
	c := NewFFmpegCapturer(filepath.Join(t.TempDir(), "missing-ffmpeg"), testTable(), zerolog.Nop())

	_, err := c.Start(SourceInterviewee, filepath.Join(t.TempDir(), "out.wav"))
	var spawnErr *CaptureSpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected CaptureSpawnError, got %v", err)
	}
	if spawnErr.Source != SourceInterviewee {
		t.Errorf("unexpected source %s", spawnErr.Source)
	}
}

func TestCaptureUnsupportedSource(t *testing.T) {
	c := NewFFmpegCapturer("ffmpeg", testTable(), zerolog.Nop())

	_, err := c.Start(SourceSystem, "out.wav")
	var unsupported *UnsupportedSourceError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedSourceError, got %v", err)
	}
}

func TestScanLinesSplitsCarriageReturns(t *testing.T) {
	data := []byte("size=1kB\rsize=2kB\nerror\n")
	var lines []string
	for len(data) > 0 {
		adv, tok, _ := scanLines(data, true)
		lines = append(lines, string(tok))
		data = data[adv:]
	}
	want := []string{"size=1kB", "size=2kB", "error"}
	if len(lines) != len(want) {
		t.Fatalf("expected %v, got %v", want, lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d: expected %q, got %q", i, want[i], lines[i])
		}
	}
}
