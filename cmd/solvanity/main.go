// Command solvanity searches for Solana vanity addresses on GPUs and CPUs.
//
// Usage:
//
//	solvanity search --starts-with abc --ends-with 9 --count 2
//	solvanity devices
//	solvanity verify keypairs/<address>.json
//
// Matches are written to --output-dir as <address>.json in the Solana CLI
// keypair format, and optionally indexed in a Badger database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "solvanity",
		Short:         "Solana vanity address search",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "YAML configuration file")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "", "log format (text, json)")

	root.AddCommand(newSearchCmd(), newDevicesCmd(), newVerifyCmd())
	return root
}
