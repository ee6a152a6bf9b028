package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

func newDoctorCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ok := true

			tools := []struct{ name, path, hint string }{
				{"ffmpeg", d.cfg.Capture.FFmpegPath, "install ffmpeg or set capture.ffmpeg_path"},
				{"ffprobe", d.cfg.Segment.FFprobePath, "ships with ffmpeg; or set segment.ffprobe_path"},
				{"whisper", d.cfg.Whisper.Binary, "build whisper.cpp or set whisper.binary"},
			}
			for _, tool := range tools {
				if p, err := exec.LookPath(tool.path); err != nil {
					check(out, tool.name, false, "not found: "+tool.hint)
					ok = false
				} else {
					check(out, tool.name, true, p)
				}
			}

			model := d.cfg.ModelPath()
			if _, err := os.Stat(model); err != nil {
				check(out, "model", false, model+" missing; run 'interview-capture model download'")
				ok = false
			} else {
				check(out, "model", true, model)
			}

			if err := os.MkdirAll(d.cfg.TempDir, 0755); err != nil {
				check(out, "temp dir", false, err.Error())
				ok = false
			} else {
				check(out, "temp dir", true, d.cfg.TempDir)
			}

			if !ok {
				return errors.New("some prerequisites are missing")
			}
			fmt.Fprintln(out, "\nAll prerequisites met. Ready to record!")
			return nil
		},
	}
}

func check(out io.Writer, name string, ok bool, detail string) {
	mark := "✓"
	if !ok {
		mark = "✗"
	}
	fmt.Fprintf(out, "  %s %-9s %s\n", mark, name, detail)
}
