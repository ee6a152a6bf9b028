package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/petems/interview-capture/internal/audio"
	"github.com/petems/interview-capture/internal/config"
	"github.com/petems/interview-capture/internal/recovery"
	"github.com/petems/interview-capture/internal/session"
	"github.com/petems/interview-capture/internal/whisper"
	"github.com/rs/zerolog"
)

// ErrNotInitialized is returned when recording is requested before a
// successful Initialize.
var ErrNotInitialized = errors.New("audio pipeline not initialized")

// Extractor cuts the trailing window out of a growing recording.
type Extractor interface {
	Duration(ctx context.Context, file string) (time.Duration, error)
	Extract(ctx context.Context, input, output string, window time.Duration) error
}

type Config struct {
	Capturer    audio.Capturer
	Extractor   Extractor
	Transcriber whisper.Transcriber
	Devices     audio.DeviceTable
	// Lister is optional; it is only used to log what is available when a
	// capture device goes missing.
	Lister audio.DeviceLister
	Config *config.Config
	Logger zerolog.Logger
}

// App owns the recording sessions and everything that runs on their behalf.
type App struct {
	capture audio.Capturer
	extract Extractor
	stt     whisper.Transcriber
	devices audio.DeviceTable
	lister  audio.DeviceLister
	policy  recovery.Policy
	cfg     *config.Config
	log     zerolog.Logger

	sessions *session.Registry
	locks    *idLocks
	files    *janitor

	mu    sync.Mutex
	ready bool
	runs  map[string]*run
}

func New(cfg Config) *App {
	c := cfg.Config
	if c == nil {
		c = config.Default()
	}
	devices := cfg.Devices
	if devices == nil {
		devices = audio.DefaultDevices(runtime.GOOS)
	}
	return &App{
		capture:  cfg.Capturer,
		extract:  cfg.Extractor,
		stt:      cfg.Transcriber,
		devices:  devices,
		lister:   cfg.Lister,
		policy:   recovery.NewPolicy(c.Recovery),
		cfg:      c,
		log:      cfg.Logger,
		sessions: session.NewRegistry(),
		locks:    newIDLocks(),
		files:    newJanitor(c.Segment.CleanupDelay.Duration, c.KeepFiles, cfg.Logger),
		runs:     make(map[string]*run),
	}
}

// Initialize checks the external tools and model, and creates the temp
// directory. All missing dependencies are reported together.
func (a *App) Initialize() error {
	var errs []error
	for _, bin := range []string{a.cfg.Capture.FFmpegPath, a.cfg.Segment.FFprobePath, a.cfg.Whisper.Binary} {
		if _, err := exec.LookPath(bin); err != nil {
			errs = append(errs, fmt.Errorf("%s not found: %w", bin, err))
		}
	}
	if model := a.cfg.ModelPath(); model != "" {
		if _, err := os.Stat(model); err != nil {
			errs = append(errs, fmt.Errorf("whisper model %s: %w", model, err))
		}
	}
	if err := os.MkdirAll(a.cfg.TempDir, 0755); err != nil {
		errs = append(errs, fmt.Errorf("create temp dir: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Error().Err(err).Msg("Audio pipeline not ready")
		return err
	}

	a.mu.Lock()
	a.ready = true
	a.mu.Unlock()
	a.log.Info().Str("temp_dir", a.cfg.TempDir).Msg("Audio pipeline ready")
	return nil
}

func (a *App) IsReady() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready
}

// StartRecording begins capturing source for sessionID. A session already
// recording under the same id is stopped first, without a final transcription.
func (a *App) StartRecording(ctx context.Context, source audio.Source, sessionID string) error {
	if !a.IsReady() {
		return ErrNotInitialized
	}
	if _, err := a.devices.Lookup(source); err != nil {
		return err
	}

	unlock, err := a.locks.Lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	log := a.log.With().Str("session", sessionID).Logger()

	if old := a.sessions.Get(sessionID); old != nil {
		log.Info().Msg("Replacing existing recording")
		// Unregister first so an in-flight tick of old is discarded.
		a.sessions.Delete(sessionID)
		a.halt(old)
		if out := old.OutputPath(); out != "" {
			a.files.Schedule(out)
		}
	}

	sess := session.New(sessionID, source)
	r := newRun(sess, log)
	if err := a.spawn(r); err != nil {
		r.cancel()
		log.Error().Err(err).Str("source", string(source)).Msg("Failed to start capture")
		return err
	}

	a.sessions.Set(sess)
	a.mu.Lock()
	a.runs[sessionID] = r
	a.mu.Unlock()

	log.Info().Str("source", string(source)).Msg("Recording started")
	return nil
}

// StopRecording ends the session, transcribes what is left and returns the
// whole transcript. It reports false when there is no session or no text.
func (a *App) StopRecording(ctx context.Context, sessionID string) (string, bool) {
	unlock, err := a.locks.Lock(ctx, sessionID)
	if err != nil {
		a.log.Warn().Err(err).Str("session", sessionID).Msg("Stop abandoned")
		return "", false
	}
	defer unlock()

	sess := a.sessions.Get(sessionID)
	if sess == nil {
		return "", false
	}
	log := a.log.With().Str("session", sessionID).Logger()
	log.Info().Msg("Stopping recording")

	a.halt(sess)

	if seg, ok := a.finalSegment(ctx, sess, log); ok {
		sess.AppendSegment(seg)
	}
	a.files.Schedule(sess.OutputPath())
	a.sessions.Delete(sessionID)

	text := sess.Transcript()
	log.Info().Int("segments", len(sess.Segments())).Int("chars", len(text)).Msg("Recording stopped")
	return text, text != ""
}

// halt stops capture and every goroutine working for sess, and waits for them.
func (a *App) halt(sess *session.RecordingSession) {
	sess.BeginStop()

	a.mu.Lock()
	r := a.runs[sess.ID]
	if r != nil && r.sess == sess {
		delete(a.runs, sess.ID)
	} else {
		r = nil
	}
	a.mu.Unlock()

	if r != nil {
		r.cancel()
	}
	if p := sess.Detach(session.StateStopping); p != nil {
		if err := p.Terminate(a.cfg.Recovery.TerminateGrace.Duration); err != nil {
			a.log.Warn().Err(err).Str("session", sess.ID).Int("pid", p.Pid()).Msg("Terminate capture")
		}
	}
	if r != nil {
		r.wg.Wait()
	}
}

// finalSegment transcribes the tail of the recording, or all of it when it
// is no longer than one window.
func (a *App) finalSegment(ctx context.Context, sess *session.RecordingSession, log zerolog.Logger) (session.Segment, bool) {
	input := sess.OutputPath()
	if input == "" {
		return session.Segment{}, false
	}
	window := a.cfg.Segment.Window.Duration

	durCtx, cancel := a.toolContext(ctx)
	total, err := a.extract.Duration(durCtx, input)
	cancel()
	if err != nil {
		log.Warn().Err(err).Msg("No final segment")
		return session.Segment{}, false
	}

	now := time.Now()
	seg := session.Segment{
		ID:        segmentID(sess.ID, now),
		StartTime: now,
		Duration:  total,
		FilePath:  input,
	}
	if total > window {
		seg.FilePath = segmentPath(a.cfg.TempDir, seg.ID)
		seg.Duration = window
		trimCtx, cancel := a.toolContext(ctx)
		err := a.extract.Extract(trimCtx, input, seg.FilePath, window)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("Final segment extraction failed")
			return session.Segment{}, false
		}
		defer a.files.Schedule(seg.FilePath)
	}

	seg.Transcription = a.transcribe(ctx, seg.FilePath, log)
	return seg, seg.Transcription != ""
}

// transcribe applies the size gate, then runs the engine. Failures are
// logged and produce no text.
func (a *App) transcribe(ctx context.Context, file string, log zerolog.Logger) string {
	if !whisper.Eligible(file, a.cfg.Segment.MinAudioBytes) {
		log.Debug().Str("file", file).Msg("Segment below size threshold")
		return ""
	}
	text, err := a.stt.Transcribe(ctx, file)
	if err != nil {
		log.Warn().Err(err).Msg("Transcription failed")
		return ""
	}
	return text
}

func (a *App) GetRecordingStatus(sessionID string) session.Status {
	return a.sessions.Status(sessionID)
}

// GetRecentTranscriptions drains the session's buffered transcriptions.
func (a *App) GetRecentTranscriptions(sessionID string) []session.TranscriptionEvent {
	return a.sessions.DrainRecentTranscriptions(sessionID)
}

func (a *App) GetTranscript(sessionID string) string {
	sess := a.sessions.Get(sessionID)
	if sess == nil {
		return ""
	}
	return sess.Transcript()
}

// Sessions lists the ids of all registered sessions.
func (a *App) Sessions() []string {
	return a.sessions.IDs()
}

// Shutdown stops every session and deletes pending audio files.
func (a *App) Shutdown(ctx context.Context) error {
	for _, id := range a.sessions.IDs() {
		if text, ok := a.StopRecording(ctx, id); ok {
			a.log.Info().Str("session", id).Int("chars", len(text)).Msg("Session stopped on shutdown")
		}
	}
	a.files.Flush()

	a.mu.Lock()
	a.ready = false
	a.mu.Unlock()
	return ctx.Err()
}
