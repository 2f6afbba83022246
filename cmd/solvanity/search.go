package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/orneryd/solvanity/pkg/config"
	"github.com/orneryd/solvanity/pkg/coord"
	"github.com/orneryd/solvanity/pkg/gpu"
	"github.com/orneryd/solvanity/pkg/logging"
	"github.com/orneryd/solvanity/pkg/search"
	"github.com/orneryd/solvanity/pkg/storage"
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search for keypairs whose address matches a pattern",
		Example: `  solvanity search --starts-with abc
  solvanity search --starts-with abc --starts-with xyz --ends-with 9 --count 3 --case-sensitive=false
  solvanity search --backend cpu --cpu-devices 4 --ends-with pump`,
		Args: cobra.NoArgs,
		RunE: runSearch,
	}

	f := cmd.Flags()
	f.StringArray("starts-with", nil, "address prefix (repeatable; any one must match)")
	f.String("ends-with", "", "address suffix")
	f.Int("count", 1, "number of keypairs to find")
	f.String("output-dir", "", "directory for <address>.json keypair files")
	f.Int("iteration-bits", 24, "log2 of candidates per dispatch")
	f.Bool("case-sensitive", true, "match case exactly")
	f.IntSlice("select-device", nil, "device index to use (repeatable)")
	f.String("backend", "", "device backend (auto, cpu, opencl)")
	f.Int("cpu-devices", 1, "number of logical CPU devices")
	f.String("kernel-path", "", "OpenCL kernel source template")
	f.String("badger-dir", "", "also index matches in a Badger database here")
	f.Int("batch-size", 5, "dispatches between stop checks")
	f.Duration("check-interval", 0, "minimum time between stop checks (default 1s per device)")
	f.Bool("shared-channel", false, "coordinate workers through shared memory")
	return cmd
}

// loadConfig layers the config file, the environment and any flags the user
// actually set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("log-level") {
		cfg.Logging.Level, _ = f.GetString("log-level")
	}
	if f.Changed("log-format") {
		cfg.Logging.Format, _ = f.GetString("log-format")
	}
	if f.Lookup("starts-with") == nil {
		return cfg, nil
	}

	if f.Changed("starts-with") {
		cfg.Search.StartsWith, _ = f.GetStringArray("starts-with")
	}
	if f.Changed("ends-with") {
		cfg.Search.EndsWith, _ = f.GetString("ends-with")
	}
	if f.Changed("count") {
		cfg.Search.Count, _ = f.GetInt("count")
	}
	if f.Changed("iteration-bits") {
		cfg.Search.IterationBits, _ = f.GetInt("iteration-bits")
	}
	if f.Changed("case-sensitive") {
		cfg.Search.CaseSensitive, _ = f.GetBool("case-sensitive")
	}
	if f.Changed("output-dir") {
		cfg.Output.Dir, _ = f.GetString("output-dir")
	}
	if f.Changed("badger-dir") {
		cfg.Output.BadgerDir, _ = f.GetString("badger-dir")
	}
	if f.Changed("select-device") {
		cfg.Devices.Select, _ = f.GetIntSlice("select-device")
	}
	if f.Changed("backend") {
		cfg.Devices.Backend, _ = f.GetString("backend")
	}
	if f.Changed("cpu-devices") {
		cfg.Devices.CPUDevices, _ = f.GetInt("cpu-devices")
	}
	if f.Changed("kernel-path") {
		cfg.Devices.KernelPath, _ = f.GetString("kernel-path")
	}
	if f.Changed("batch-size") {
		cfg.Worker.BatchSize, _ = f.GetInt("batch-size")
	}
	if f.Changed("check-interval") {
		cfg.Worker.CheckInterval, _ = f.GetDuration("check-interval")
	}
	if f.Changed("shared-channel") {
		cfg.Worker.SharedChannel, _ = f.GetBool("shared-channel")
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	return logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Writer: cmd.ErrOrStderr(),
	})
}

// openAccelerator discovers devices, reading the kernel template if one is
// configured.
func openAccelerator(cfg *config.Config) (*gpu.Accelerator, error) {
	var source string
	if cfg.Devices.KernelPath != "" {
		data, err := os.ReadFile(cfg.Devices.KernelPath)
		if err != nil {
			return nil, fmt.Errorf("reading kernel: %w", err)
		}
		source = string(data)
	}
	return gpu.NewAccelerator(cfg.GPU(source))
}

func openSink(cfg *config.Config, logger *slog.Logger) (storage.ResultSink, error) {
	dir, err := storage.NewDirSink(cfg.Output.Dir)
	if err != nil {
		return nil, err
	}
	if cfg.Output.BadgerDir == "" {
		return dir, nil
	}
	db, err := storage.NewBadgerSink(cfg.Output.BadgerDir, logger)
	if err != nil {
		return nil, err
	}
	return storage.NewMultiSink(dir, db), nil
}

func runSearch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "🔎 solvanity %s\n\n", version)
	fmt.Fprintf(out, "Search:\n")
	fmt.Fprintf(out, "  Pattern:        %s\n", cfg.Pattern())
	fmt.Fprintf(out, "  Count:          %d\n", cfg.Search.Count)
	fmt.Fprintf(out, "  Iteration bits: %d\n", cfg.Search.IterationBits)
	fmt.Fprintf(out, "  Output:         %s\n\n", cfg.Output.Dir)

	accel, err := openAccelerator(cfg)
	if err != nil {
		return err
	}
	defer accel.Release()

	fmt.Fprintf(out, "🖥️  Devices (%s):\n", accel.Backend())
	for _, d := range accel.Devices() {
		fmt.Fprintf(out, "  [%d] %s\n", d.Index(), d.Name())
	}
	fmt.Fprintln(out)

	sink, err := openSink(cfg, logger)
	if err != nil {
		return err
	}
	defer sink.Close()

	channels := coord.LocalFactory
	if cfg.Worker.SharedChannel {
		channels = coord.SharedFactory
	}
	opts := []search.Option{
		search.WithLogger(logger),
		search.WithChannelFactory(channels),
		search.WithBatchSize(cfg.Worker.BatchSize),
		search.WithStatsInterval(cfg.Worker.StatsInterval),
		search.WithStatsRecorder(accel),
	}
	if cfg.Worker.CheckInterval > 0 {
		opts = append(opts, search.WithCheckInterval(cfg.Worker.CheckInterval))
	}
	orch := search.New(accel.Devices(), sink, opts...)

	started := time.Now()
	report, err := orch.Run(cmd.Context(), search.Request{
		Pattern:       cfg.Pattern(),
		IterationBits: cfg.Search.IterationBits,
		Count:         cfg.Search.Count,
	})
	if report != nil {
		for _, m := range report.Matches {
			fmt.Fprintf(out, "✅ %s (device %d, round %d)\n", m.Address, m.Device, m.Round)
		}
	}
	if err != nil {
		if cmd.Context().Err() != nil {
			fmt.Fprintf(out, "\n🛑 Interrupted\n")
		}
		return err
	}

	stats := accel.Stats()
	fmt.Fprintf(out, "\nFound %d keypair(s) in %d round(s), %s, %d candidates checked\n",
		len(report.Matches), report.Rounds, time.Since(started).Round(time.Millisecond), stats.Candidates)
	return nil
}
