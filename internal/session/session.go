// Package session holds per-session recording state and the registry that
// owns it.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/petems/interview-capture/internal/audio"
)

// State is where a session is in its capture lifecycle.
type State int

const (
	StateIdle State = iota
	StateActive
	StateRecovering
	StateStopping
	StateFailed // needs a manual restart
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateRecovering:
		return "recovering"
	case StateStopping:
		return "stopping"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Segment is one extracted slice of a recording.
type Segment struct {
	ID        string
	FilePath  string
	StartTime time.Time
	Duration  time.Duration
	// Transcription is empty when extraction or transcription failed or
	// found no speech.
	Transcription string
}

// RecordingSession is the recording state of one session id.
type RecordingSession struct {
	ID     string
	Source audio.Source

	mu          sync.Mutex
	state       State
	process     audio.Process
	outputPath  string
	startTime   time.Time
	segments    []Segment
	restarts    int
	autoRestart bool

	recent *TranscriptionQueue
}

func New(id string, source audio.Source) *RecordingSession {
	return &RecordingSession{
		ID:          id,
		Source:      source,
		autoRestart: true,
		recent:      NewTranscriptionQueue(RecentCapacity),
	}
}

// Attach hands a freshly spawned capture process to the session and marks it active.
func (s *RecordingSession) Attach(p audio.Process, startTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.process = p
	s.outputPath = p.OutputPath()
	s.startTime = startTime
	s.state = StateActive
}

// Detach releases the capture process and moves the session to next.
// The returned process may be nil.
func (s *RecordingSession) Detach(next State) audio.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.process
	s.process = nil
	s.state = next
	return p
}

// Release detaches p only if it is still the current process.
func (s *RecordingSession) Release(p audio.Process, next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.process == nil || s.process != p {
		return false
	}
	s.process = nil
	s.state = next
	return true
}

func (s *RecordingSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState moves the session to next unless it is already stopping.
func (s *RecordingSession) SetState(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopping {
		return false
	}
	s.state = next
	return true
}

// BeginStop marks the session as stopping. It reports false if it already was.
func (s *RecordingSession) BeginStop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopping {
		return false
	}
	s.state = StateStopping
	return true
}

func (s *RecordingSession) IsActive() bool {
	return s.State() == StateActive
}

// Owns reports whether p is the session's current capture process.
func (s *RecordingSession) Owns(p audio.Process) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.process != nil && s.process == p
}

func (s *RecordingSession) OutputPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputPath
}

func (s *RecordingSession) StartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

// AppendSegment records a finished tick and queues its text when non-empty.
func (s *RecordingSession) AppendSegment(seg Segment) {
	s.mu.Lock()
	s.segments = append(s.segments, seg)
	s.mu.Unlock()

	if seg.Transcription != "" {
		s.recent.Push(TranscriptionEvent{
			Text:      seg.Transcription,
			Timestamp: seg.StartTime,
			SegmentID: seg.ID,
		})
	}
}

// Segments returns a copy of the segments in temporal order.
func (s *RecordingSession) Segments() []Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Segment, len(s.segments))
	copy(out, s.segments)
	return out
}

// Transcript joins all segment transcriptions with single spaces.
func (s *RecordingSession) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts := make([]string, 0, len(s.segments))
	for _, seg := range s.segments {
		if seg.Transcription != "" {
			parts = append(parts, seg.Transcription)
		}
	}
	return strings.Join(parts, " ")
}

func (s *RecordingSession) Recent() *TranscriptionQueue {
	return s.recent
}

// Restarts is the number of automatic restarts so far.
func (s *RecordingSession) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

func (s *RecordingSession) CountRestart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restarts++
}

// AutoRestart reports whether automatic restarts are still allowed.
func (s *RecordingSession) AutoRestart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoRestart
}

func (s *RecordingSession) DisableAutoRestart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoRestart = false
}
