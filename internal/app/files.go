package app

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

func capturePath(dir, sessionID string, at time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%d.wav", sessionID, at.UnixMilli()))
}

func segmentID(sessionID string, at time.Time) string {
	return fmt.Sprintf("%s-%d", sessionID, at.UnixMilli())
}

func segmentPath(dir, segID string) string {
	return filepath.Join(dir, "segment-"+segID+".wav")
}

// janitor deletes processed audio files after a delay.
type janitor struct {
	delay time.Duration
	keep  bool
	log   zerolog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func newJanitor(delay time.Duration, keep bool, log zerolog.Logger) *janitor {
	return &janitor{
		delay:   delay,
		keep:    keep,
		log:     log,
		pending: make(map[string]*time.Timer),
	}
}

// Schedule deletes path once the cleanup delay has passed.
func (j *janitor) Schedule(path string) {
	if j.keep || path == "" {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.pending[path]; ok {
		return
	}
	j.pending[path] = time.AfterFunc(j.delay, func() {
		j.mu.Lock()
		delete(j.pending, path)
		j.mu.Unlock()
		j.remove(path)
	})
}

// Discard deletes path now, cancelling any scheduled deletion.
func (j *janitor) Discard(path string) {
	if j.keep || path == "" {
		return
	}
	j.mu.Lock()
	if t, ok := j.pending[path]; ok {
		t.Stop()
		delete(j.pending, path)
	}
	j.mu.Unlock()
	j.remove(path)
}

// Flush deletes every pending file immediately.
func (j *janitor) Flush() {
	j.mu.Lock()
	paths := make([]string, 0, len(j.pending))
	for path, t := range j.pending {
		if t.Stop() {
			paths = append(paths, path)
		}
		delete(j.pending, path)
	}
	j.mu.Unlock()

	for _, p := range paths {
		j.remove(p)
	}
}

func (j *janitor) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pending)
}

func (j *janitor) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		j.log.Warn().Err(err).Str("file", path).Msg("Failed to delete audio file")
		return
	}
	j.log.Debug().Str("file", path).Msg("Deleted audio file")
}
