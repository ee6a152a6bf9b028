// Package recovery classifies capture failures and decides how a session
// should react to each of them.
package recovery

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/petems/interview-capture/internal/config"
)

// Kind is a class of capture failure.
type Kind int

const (
	KindNone Kind = iota
	KindDeviceBusy
	KindDeviceNotFound
	KindUnexpectedExit
	KindProcessError
)

func (k Kind) String() string {
	switch k {
	case KindDeviceBusy:
		return "device_busy"
	case KindDeviceNotFound:
		return "device_not_found"
	case KindUnexpectedExit:
		return "unexpected_exit"
	case KindProcessError:
		return "process_error"
	default:
		return "none"
	}
}

var (
	busyMarkers     = []string{"device or resource busy", "resource busy", "device busy"}
	notFoundMarkers = []string{"no such device", "device not found"}
)

// recoverableErrnos are OS errors that usually clear up on their own.
var recoverableErrnos = []syscall.Errno{
	syscall.EAGAIN,
	syscall.EINTR,
	syscall.EBUSY,
	syscall.EACCES,
	syscall.ENOENT,
}

// ClassifyDiagnostic maps one line of capture tool output to a failure kind.
// Lines that match no known error return KindNone.
func ClassifyDiagnostic(line string) Kind {
	l := strings.ToLower(line)
	for _, m := range busyMarkers {
		if strings.Contains(l, m) {
			return KindDeviceBusy
		}
	}
	for _, m := range notFoundMarkers {
		if strings.Contains(l, m) {
			return KindDeviceNotFound
		}
	}
	return KindNone
}

// IsRecoverableError reports whether err wraps a transient OS error.
func IsRecoverableError(err error) bool {
	for _, errno := range recoverableErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

// Action is what a session should do about a failure. Restart actions wait
// StopDelay before stopping capture (device busy only) and RestartDelay
// before spawning the replacement.
type Action struct {
	Kind         Kind
	Restart      bool
	StopDelay    time.Duration
	RestartDelay time.Duration
	// Fatal means the session needs a manual restart.
	Fatal  bool
	Reason string
}

// Policy holds the delays and limits of automatic recovery.
type Policy struct {
	BusyDelay            time.Duration
	BusyRestartDelay     time.Duration
	ExitRestartDelay     time.Duration
	ErrorRestartDelay    time.Duration
	RecoverableExitCodes []int
	// MaxRestarts caps automatic restarts for one recording; 0 disables them.
	MaxRestarts int
}

func DefaultPolicy() Policy {
	return NewPolicy(config.Default().Recovery)
}

func NewPolicy(cfg config.RecoveryConfig) Policy {
	return Policy{
		BusyDelay:            cfg.BusyDelay.Duration,
		BusyRestartDelay:     cfg.BusyRestartDelay.Duration,
		ExitRestartDelay:     cfg.ExitRestartDelay.Duration,
		ErrorRestartDelay:    cfg.ErrorRestartDelay.Duration,
		RecoverableExitCodes: slices.Clone(cfg.RecoverableExitCodes),
		MaxRestarts:          cfg.MaxRestarts,
	}
}

// ForDiagnostic returns the action for a classified diagnostic line.
func (p Policy) ForDiagnostic(kind Kind) Action {
	switch kind {
	case KindDeviceBusy:
		return Action{
			Kind:         kind,
			Restart:      true,
			StopDelay:    p.BusyDelay,
			RestartDelay: p.BusyRestartDelay,
			Reason:       "capture device is busy",
		}
	case KindDeviceNotFound:
		return Action{Kind: kind, Reason: "capture device not found"}
	default:
		return Action{Kind: KindNone}
	}
}

// ForExit returns the action for a capture process that exited on its own
// with a non-zero code.
func (p Policy) ForExit(code int) Action {
	if slices.Contains(p.RecoverableExitCodes, code) {
		return Action{
			Kind:         KindUnexpectedExit,
			Restart:      true,
			RestartDelay: p.ExitRestartDelay,
			Reason:       fmt.Sprintf("capture exited with recoverable code %d", code),
		}
	}
	return Action{
		Kind:   KindUnexpectedExit,
		Fatal:  true,
		Reason: fmt.Sprintf("capture exited with code %d", code),
	}
}

// ForError returns the action for a process-level error.
func (p Policy) ForError(err error) Action {
	if IsRecoverableError(err) {
		return Action{
			Kind:         KindProcessError,
			Restart:      true,
			RestartDelay: p.ErrorRestartDelay,
			Reason:       err.Error(),
		}
	}
	return Action{Kind: KindProcessError, Fatal: true, Reason: err.Error()}
}

// Allow applies the restart budget: a restart action that would exceed
// MaxRestarts becomes fatal.
func (p Policy) Allow(a Action, restartsSoFar int) Action {
	if a.Restart && restartsSoFar >= p.MaxRestarts {
		a.Restart = false
		a.Fatal = true
		a.Reason = fmt.Sprintf("%s; restart limit of %d reached", a.Reason, p.MaxRestarts)
	}
	return a
}
