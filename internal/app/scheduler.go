package app

import (
	"context"
	"sync"
	"time"

	"github.com/petems/interview-capture/internal/audio"
	"github.com/petems/interview-capture/internal/session"
	"github.com/rs/zerolog"
)

// run tracks the goroutines working for one session. ctx is cancelled when
// the session stops; wg covers the scheduler, monitors and recoveries.
type run struct {
	sess   *session.RecordingSession
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	stopTicks  context.CancelFunc
	ticksDone  chan struct{}
	recovering bool
}

func newRun(sess *session.RecordingSession, log zerolog.Logger) *run {
	ctx, cancel := context.WithCancel(context.Background())
	return &run{sess: sess, log: log, ctx: ctx, cancel: cancel}
}

// beginRecovery reports false if a recovery is already pending.
func (r *run) beginRecovery() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recovering {
		return false
	}
	r.recovering = true
	return true
}

func (r *run) endRecovery() {
	r.mu.Lock()
	r.recovering = false
	r.mu.Unlock()
}

// toolContext bounds one ffprobe or ffmpeg call by the transcription timeout.
func (a *App) toolContext(parent context.Context) (context.Context, context.CancelFunc) {
	if d := a.cfg.Whisper.Timeout.Duration; d > 0 {
		return context.WithTimeout(parent, d)
	}
	return context.WithCancel(parent)
}

// stopScheduler cancels the current scheduler and waits for its in-flight tick.
func (r *run) stopScheduler() {
	r.mu.Lock()
	stop, done := r.stopTicks, r.ticksDone
	r.stopTicks, r.ticksDone = nil, nil
	r.mu.Unlock()

	if stop == nil {
		return
	}
	stop()
	<-done
}

// spawn starts a capture process for the session along with its monitor
// and scheduler.
func (a *App) spawn(r *run) error {
	now := time.Now()
	proc, err := a.capture.Start(r.sess.Source, capturePath(a.cfg.TempDir, r.sess.ID, now))
	if err != nil {
		return err
	}
	r.sess.Attach(proc, now)
	r.log.Debug().Int("pid", proc.Pid()).Str("file", proc.OutputPath()).Msg("Capture process started")

	r.wg.Add(1)
	go a.monitor(r, proc)

	ctx, stop := context.WithCancel(r.ctx)
	done := make(chan struct{})
	r.mu.Lock()
	r.stopTicks, r.ticksDone = stop, done
	r.mu.Unlock()

	r.wg.Add(1)
	go a.schedule(ctx, r, proc, done)
	return nil
}

// schedule runs segment ticks for one capture process. The first tick fires
// one window after start; later ticks fire one window after the previous
// tick started.
func (a *App) schedule(ctx context.Context, r *run, proc audio.Process, done chan struct{}) {
	defer r.wg.Done()
	defer close(done)

	window := a.cfg.Segment.Window.Duration
	timer := time.NewTimer(window)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if !r.sess.IsActive() || !r.sess.Owns(proc) {
			return
		}

		started := time.Now()
		a.tick(r, proc.OutputPath(), started)

		if ctx.Err() != nil {
			return
		}
		next := window - time.Since(started)
		if next < 0 {
			next = 0
		}
		timer.Reset(next)
	}
}

// tick extracts and transcribes the trailing window. The segment is kept
// even when extraction fails, with no transcription.
func (a *App) tick(r *run, input string, at time.Time) {
	window := a.cfg.Segment.Window.Duration
	seg := session.Segment{
		ID:        segmentID(r.sess.ID, at),
		StartTime: at,
		Duration:  window,
	}
	seg.FilePath = segmentPath(a.cfg.TempDir, seg.ID)
	log := r.log.With().Str("segment", seg.ID).Logger()

	// In-flight ticks run to completion even if the session stops meanwhile.
	ctx, cancel := a.toolContext(context.Background())
	err := a.extract.Extract(ctx, input, seg.FilePath, window)
	cancel()
	if err != nil {
		log.Warn().Err(err).Msg("Segment extraction failed")
	} else {
		seg.Transcription = a.transcribe(context.Background(), seg.FilePath, log)
	}
	a.files.Schedule(seg.FilePath)

	if !a.sessions.Holds(r.sess) {
		log.Debug().Msg("Session replaced, discarding segment")
		return
	}
	r.sess.AppendSegment(seg)
	if seg.Transcription != "" {
		log.Info().Str("text", seg.Transcription).Msg("Segment transcribed")
	}
}
