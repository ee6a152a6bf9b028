package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/petems/interview-capture/internal/config"
	"github.com/petems/interview-capture/internal/whisper"
	"github.com/spf13/cobra"
)

func newModelCmd(d *deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Manage whisper models",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List downloadable models",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(whisper.KnownModels(), "\n"))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "download [model]",
		Short: "Download a ggml model (defaults to the configured one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := d.cfg.Whisper.Model
			dest := d.cfg.ModelPath()
			if len(args) == 1 {
				name = args[0]
				dest = filepath.Join(config.ModelsPath(), "ggml-"+name+".bin")
			}
			if err := whisper.DownloadModel(cmd.Context(), name, dest, d.log); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Model %s ready at %s\n", name, dest)
			return nil
		},
	})
	return cmd
}

func newConfigCmd(d *deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or write the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.Path())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the current configuration to the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := d.cfg.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", config.Path())
			return nil
		},
	})
	return cmd
}
