package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orneryd/solvanity/pkg/storage"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <keypair.json>...",
		Short: "Re-derive saved keypairs and print their addresses",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, path := range args {
				kp, err := storage.LoadKeypair(path)
				if err != nil {
					return err
				}
				addr := kp.Address()
				name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				if name != addr {
					fmt.Fprintf(out, "⚠️  %s: file name does not match address %s\n", path, addr)
					continue
				}
				fmt.Fprintf(out, "✅ %s\n", addr)
			}
			return nil
		},
	}
}
