package session

import (
	"sync"
	"time"
)

// RecentCapacity is how many transcription events a session buffers.
const RecentCapacity = 10

// TranscriptionEvent is one non-empty segment transcription.
type TranscriptionEvent struct {
	Text      string    `json:"text" yaml:"text"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	SegmentID string    `json:"segment_id" yaml:"segment_id"`
}

// TranscriptionQueue is a fixed-capacity FIFO that evicts its oldest entry
// when full. Drain empties it atomically.
type TranscriptionQueue struct {
	mu    sync.Mutex
	buf   []TranscriptionEvent
	head  int
	count int
}

func NewTranscriptionQueue(capacity int) *TranscriptionQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &TranscriptionQueue{buf: make([]TranscriptionEvent, capacity)}
}

// Push appends ev, dropping the oldest entry if the queue is full.
func (q *TranscriptionQueue) Push(ev TranscriptionEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()

	tail := (q.head + q.count) % len(q.buf)
	q.buf[tail] = ev
	if q.count == len(q.buf) {
		q.head = (q.head + 1) % len(q.buf)
		return
	}
	q.count++
}

// Drain returns all buffered entries oldest first and empties the queue.
func (q *TranscriptionQueue) Drain() []TranscriptionEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]TranscriptionEvent, q.count)
	for i := range out {
		idx := (q.head + i) % len(q.buf)
		out[i] = q.buf[idx]
		q.buf[idx] = TranscriptionEvent{}
	}
	q.head, q.count = 0, 0
	return out
}

func (q *TranscriptionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}
