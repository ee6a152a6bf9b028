package audio

import "time"

// Capturer starts one external capture process per recording.
type Capturer interface {
	Start(source Source, outputPath string) (Process, error)
}

// Process is a running capture process. Events must be drained until closed.
type Process interface {
	Pid() int
	OutputPath() string
	Events() <-chan Event
	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}
	// Terminate signals the process, escalates to a kill after grace and
	// returns once it has exited.
	Terminate(grace time.Duration) error
}

type EventKind int

const (
	EventDiagnostic EventKind = iota // one line of tool output
	EventExit                        // process exited; ExitCode and Killed are set
	EventError                       // process could not be waited on; Err is set
)

// Event is an asynchronous signal from a capture process.
type Event struct {
	Kind     EventKind
	Line     string
	ExitCode int
	Killed   bool
	Err      error
}

// DeviceLister enumerates audio input devices
type DeviceLister interface {
	ListDevices() ([]AudioDevice, error)
}

// AudioDevice represents an audio input device
type AudioDevice struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Host    string `yaml:"host,omitempty"`
	Default bool   `yaml:"default"`
}
