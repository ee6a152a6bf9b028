package session

import (
	"sort"
	"sync"
	"time"

	"github.com/petems/interview-capture/internal/audio"
)

// Status is the externally visible recording state of a session id.
type Status struct {
	IsRecording bool         `json:"is_recording" yaml:"is_recording"`
	Source      audio.Source `json:"source,omitempty" yaml:"source,omitempty"`
	StartTime   time.Time    `json:"start_time,omitempty" yaml:"start_time,omitempty"`
}

// Registry is the keyed store of recording sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*RecordingSession
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*RecordingSession)}
}

// Get returns the session for id, or nil.
func (r *Registry) Get(id string) *RecordingSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Set stores s under its id and returns the session it replaced, if any.
func (r *Registry) Set(s *RecordingSession) *RecordingSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.sessions[s.ID]
	r.sessions[s.ID] = s
	return prev
}

func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Holds reports whether s is still the registered session for its id.
func (r *Registry) Holds(s *RecordingSession) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[s.ID] == s
}

// Status returns a zero "not recording" status for unknown ids.
func (r *Registry) Status(id string) Status {
	s := r.Get(id)
	if s == nil {
		return Status{}
	}
	return Status{
		IsRecording: s.IsActive(),
		Source:      s.Source,
		StartTime:   s.StartTime(),
	}
}

// DrainRecentTranscriptions removes and returns the buffered events for id.
func (r *Registry) DrainRecentTranscriptions(id string) []TranscriptionEvent {
	s := r.Get(id)
	if s == nil {
		return []TranscriptionEvent{}
	}
	return s.Recent().Drain()
}

// IDs returns the registered session ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
