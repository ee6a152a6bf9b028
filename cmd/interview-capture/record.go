package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/google/uuid"
	"github.com/petems/interview-capture/internal/app"
	"github.com/petems/interview-capture/internal/audio"
	"github.com/petems/interview-capture/internal/segment"
	"github.com/petems/interview-capture/internal/session"
	"github.com/petems/interview-capture/internal/whisper"
	"github.com/spf13/cobra"
)

func newRecordCmd(d *deps) *cobra.Command {
	var (
		sourceName string
		sessionID  string
		duration   time.Duration
		copyText   bool
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record and transcribe until interrupted",
		Long:  "Starts a recording session, prints each transcribed segment as it arrives and prints the full transcript when stopped with Ctrl+C or after --duration.",
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := audio.ParseSource(sourceName)
			if err != nil {
				return err
			}
			if sessionID == "" {
				sessionID = uuid.NewString()
			}

			application, err := newApp(d)
			if err != nil {
				return err
			}
			if err := application.Initialize(); err != nil {
				return fmt.Errorf("not ready to record (run 'interview-capture doctor'): %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			out := cmd.OutOrStdout()
			if err := application.StartRecording(ctx, source, sessionID); err != nil {
				return err
			}
			fmt.Fprintf(out, "Recording %s (session %s). Press Ctrl+C to stop.\n", source, sessionID)

			follow(ctx, application, sessionID, out)

			// The session context is done at this point; stopping gets its own.
			stopCtx, cancel := context.WithTimeout(context.Background(), d.cfg.Whisper.Timeout.Duration+10*time.Second)
			defer cancel()

			text, ok := finish(stopCtx, application, sessionID, out)
			if err := application.Shutdown(stopCtx); err != nil {
				d.log.Warn().Err(err).Msg("Shutdown error")
			}

			if !ok {
				fmt.Fprintln(out, "No speech was transcribed.")
				return nil
			}
			fmt.Fprintf(out, "\nTranscript:\n%s\n", text)

			if copyText {
				if err := clipboard.WriteAll(text); err != nil {
					return fmt.Errorf("copy transcript: %w", err)
				}
				fmt.Fprintln(out, "Transcript copied to clipboard.")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sourceName, "source", "s", string(audio.SourceInterviewee),
		"Audio source: "+strings.Join(sourceNames(), ", "))
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id (random if empty)")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop after this long (0 records until interrupted)")
	cmd.Flags().BoolVar(&copyText, "copy", false, "Copy the final transcript to the clipboard")
	return cmd
}

// follow prints transcriptions as they arrive until ctx is done.
func follow(ctx context.Context, a *app.App, sessionID string, out io.Writer) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	wasRecording := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		printEvents(out, a.GetRecentTranscriptions(sessionID))

		recording := a.GetRecordingStatus(sessionID).IsRecording
		if wasRecording && !recording {
			fmt.Fprintln(out, "Capture interrupted, waiting for recovery...")
		} else if !wasRecording && recording {
			fmt.Fprintln(out, "Capture resumed.")
		}
		wasRecording = recording
	}
}

// finish prints what is still queued, then stops the session and returns
// its transcript.
func finish(ctx context.Context, a *app.App, sessionID string, out io.Writer) (string, bool) {
	// Stopping removes the session, so drain its queue first.
	printEvents(out, a.GetRecentTranscriptions(sessionID))
	fmt.Fprintln(out, "Stopping...")
	return a.StopRecording(ctx, sessionID)
}

func printEvents(out io.Writer, events []session.TranscriptionEvent) {
	for _, ev := range events {
		fmt.Fprintf(out, "[%s] %s\n", ev.Timestamp.Format("15:04:05"), ev.Text)
	}
}

func newApp(d *deps) (*app.App, error) {
	cfg := d.cfg
	table, err := audio.NewDeviceTable(cfg.Capture)
	if err != nil {
		return nil, err
	}

	return app.New(app.Config{
		Capturer:    audio.NewFFmpegCapturer(cfg.Capture.FFmpegPath, table, d.log.With().Str("component", "capture").Logger()),
		Extractor:   segment.NewExtractor(cfg.Segment.FFprobePath, cfg.Capture.FFmpegPath, d.log.With().Str("component", "segment").Logger()),
		Transcriber: whisper.New(cfg, d.log.With().Str("component", "whisper").Logger()),
		Devices:     table,
		Lister:      audio.NewPortAudioLister(),
		Config:      cfg,
		Logger:      d.log,
	}), nil
}
