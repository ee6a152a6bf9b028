package audio

import "fmt"

// UnsupportedSourceError is returned for a source missing from the device table.
type UnsupportedSourceError struct {
	Source Source
}

func (e *UnsupportedSourceError) Error() string {
	return fmt.Sprintf("unsupported audio source %q", string(e.Source))
}

// CaptureSpawnError is returned when the capture tool cannot be started.
type CaptureSpawnError struct {
	Binary string
	Source Source
	Err    error
}

func (e *CaptureSpawnError) Error() string {
	return fmt.Sprintf("failed to start %s for %s capture: %v", e.Binary, e.Source, e.Err)
}

func (e *CaptureSpawnError) Unwrap() error {
	return e.Err
}
