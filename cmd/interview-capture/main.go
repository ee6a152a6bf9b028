package main

import (
	"fmt"
	"os"

	"github.com/petems/interview-capture/internal/audio"
	"github.com/petems/interview-capture/internal/config"
	"github.com/petems/interview-capture/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

type deps struct {
	cfg *config.Config
	log zerolog.Logger
}

func main() {
	// Load config from XDG/Library/AppData
	cfg, err := config.Load()
	if err != nil {
		// Use default logger if config fails to load
		log := logging.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	log := logging.NewWithLevel(cfg.LogLevel)

	if err := newRootCmd(&deps{cfg: cfg, log: log}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(d *deps) *cobra.Command {
	root := &cobra.Command{
		Use:           "interview-capture",
		Short:         "Record interview audio and transcribe it as it happens",
		Long:          "Captures interview audio with ffmpeg, slices the recording into short trailing segments and transcribes each one with whisper.cpp while the interview runs.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Version = Version
	root.SetVersionTemplate(fmt.Sprintf("interview-capture %s (%s)\n", Version, Commit))

	root.AddCommand(newRecordCmd(d))
	root.AddCommand(newDoctorCmd(d))
	root.AddCommand(newDevicesCmd(d))
	root.AddCommand(newModelCmd(d))
	root.AddCommand(newConfigCmd(d))
	return root
}

func sourceNames() []string {
	names := make([]string, len(audio.Sources))
	for i, s := range audio.Sources {
		names[i] = string(s)
	}
	return names
}
