package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orneryd/solvanity/pkg/gpu/opencl"
)

func newDevicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List compute devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if b, _ := cmd.Flags().GetString("backend"); b != "" {
				cfg.Devices.Backend = b
			}
			if n, _ := cmd.Flags().GetInt("cpu-devices"); n > 0 {
				cfg.Devices.CPUDevices = n
			}

			accel, err := openAccelerator(cfg)
			if err != nil {
				return err
			}
			defer accel.Release()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "OpenCL available: %v\n", opencl.IsAvailable())
			fmt.Fprintf(out, "Backend: %s\n", accel.Backend())
			for _, d := range accel.Devices() {
				fmt.Fprintf(out, "  [%d] %-8s %s\n", d.Index(), d.Backend(), d.Name())
			}
			return nil
		},
	}
	cmd.Flags().String("backend", "", "device backend (auto, cpu, opencl)")
	cmd.Flags().Int("cpu-devices", 0, "number of logical CPU devices")
	return cmd
}
