package main

import (
	"github.com/petems/interview-capture/internal/audio"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type devicesReport struct {
	Sources audio.DeviceTable   `yaml:"sources"`
	Inputs  []audio.AudioDevice `yaml:"inputs,omitempty"`
	Error   string              `yaml:"error,omitempty"`
}

func newDevicesCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "Show capture devices per source and the input devices available",
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := audio.NewDeviceTable(d.cfg.Capture)
			if err != nil {
				return err
			}

			report := devicesReport{Sources: table}
			inputs, err := audio.NewPortAudioLister().ListDevices()
			if err != nil {
				report.Error = err.Error()
			}
			report.Inputs = inputs

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(report)
		},
	}
}
