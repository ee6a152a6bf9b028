package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/petems/interview-capture/internal/config"
)

// Transcriber turns one audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioFile string) (string, error)
}

// TranscriptionError reports an engine failure. An empty result is not an error.
type TranscriptionError struct {
	File string
	Err  error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription of %s failed: %v", e.File, e.Err)
}

func (e *TranscriptionError) Unwrap() error {
	return e.Err
}

// CLI runs a whisper.cpp style command line engine.
type CLI struct {
	Binary   string
	Model    string
	Language string
	Timeout  time.Duration
	// MinBytes is the smallest file worth sending to the engine.
	MinBytes int64
	Log      zerolog.Logger
}

// New creates a CLI transcriber from config.
func New(cfg *config.Config, log zerolog.Logger) *CLI {
	return &CLI{
		Binary:   cfg.Whisper.Binary,
		Model:    cfg.ModelPath(),
		Language: cfg.Whisper.Language,
		Timeout:  cfg.Whisper.Timeout.Duration,
		MinBytes: cfg.Segment.MinAudioBytes,
		Log:      log,
	}
}

// Eligible reports whether path exists and holds at least min bytes.
func Eligible(path string, min int64) bool {
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return false
	}
	return fi.Size() >= min
}

func (w *CLI) Transcribe(ctx context.Context, audioFile string) (string, error) {
	if !Eligible(audioFile, w.MinBytes) {
		w.Log.Debug().Str("file", audioFile).Msg("Skipping missing or undersized audio")
		return "", nil
	}

	if w.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}

	base := strings.TrimSuffix(audioFile, filepath.Ext(audioFile))
	sidecars := []string{base + ".txt", audioFile + ".txt"}
	defer func() {
		for _, s := range sidecars {
			os.Remove(s)
		}
	}()

	cmd := exec.CommandContext(ctx, w.Binary, w.args(base, audioFile)...)
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", w.Timeout, ctx.Err())
		} else if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, lastLine(msg))
		}
		return "", &TranscriptionError{File: audioFile, Err: err}
	}

	raw := stdout.String()
	if strings.TrimSpace(raw) == "" {
		raw = readSidecar(sidecars)
	}
	text := CleanText(raw)

	w.Log.Debug().
		Str("file", audioFile).
		Dur("took", time.Since(start)).
		Int("chars", len(text)).
		Msg("Transcribed")
	return text, nil
}

func (w *CLI) args(outBase, audioFile string) []string {
	lang := w.Language
	if lang == "" {
		lang = "auto"
	}
	return []string{
		"-m", w.Model,
		"-otxt",
		"-of", outBase,
		"-np",
		"-l", lang,
		audioFile,
	}
}

func readSidecar(paths []string) string {
	for _, p := range paths {
		if data, err := os.ReadFile(p); err == nil {
			return string(data)
		}
	}
	return ""
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

var (
	timestampRange = regexp.MustCompile(`\[\d{2}:\d{2}:\d{2}\.\d{3}\s*-->\s*\d{2}:\d{2}:\d{2}\.\d{3}\]`)
	whitespace     = regexp.MustCompile(`\s+`)
)

// quotePairs maps each opening quote to its closing quote.
var quotePairs = map[rune]rune{
	'"': '"',
	'\'': '\'',
	'`': '`',
	'“': '”',
	'‘': '’',
}

// CleanText strips timestamp ranges, collapses whitespace and removes
// wrapping quotes from engine output.
func CleanText(s string) string {
	s = timestampRange.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	return unquote(strings.TrimSpace(s))
}

// unquote removes matched quote pairs around the whole of s. Unpaired
// quotes at either end are kept.
func unquote(s string) string {
	for {
		open, osize := utf8.DecodeRuneInString(s)
		want, ok := quotePairs[open]
		if !ok {
			return s
		}
		closing, csize := utf8.DecodeLastRuneInString(s)
		if closing != want || len(s) < osize+csize {
			return s
		}
		s = strings.TrimSpace(s[osize : len(s)-csize])
	}
}
