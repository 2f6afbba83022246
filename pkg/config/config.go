// Package config loads solvanity configuration from YAML and the environment.
//
// Configuration is layered:
//  1. Default() values
//  2. a YAML file (optional)
//  3. SOLVANITY_* environment variables
//  4. command-line flags (applied by cmd/solvanity)
//
// Example YAML:
//
//	search:
//	  starts_with: ["abc", "xyz"]
//	  ends_with: "9"
//	  case_sensitive: false
//	  count: 3
//	  iteration_bits: 24
//	devices:
//	  backend: auto
//	  select: [0, 2]
//	  kernel_path: ./kernel.cl
//	worker:
//	  batch_size: 5
//	  check_interval: 2s
//	output:
//	  dir: ./keypairs
//	  badger_dir: ./keypairs/index
//	logging:
//	  level: info
//	  format: text
//
// Environment variables:
//   - SOLVANITY_STARTS_WITH: comma-separated prefixes
//   - SOLVANITY_ENDS_WITH
//   - SOLVANITY_CASE_SENSITIVE: true/false
//   - SOLVANITY_COUNT
//   - SOLVANITY_ITERATION_BITS
//   - SOLVANITY_BACKEND
//   - SOLVANITY_SELECT_DEVICE: comma-separated indexes
//   - SOLVANITY_CPU_DEVICES
//   - SOLVANITY_KERNEL_PATH
//   - SOLVANITY_BATCH_SIZE
//   - SOLVANITY_CHECK_INTERVAL: Go duration, e.g. "1500ms"
//   - SOLVANITY_OUTPUT_DIR
//   - SOLVANITY_BADGER_DIR
//   - SOLVANITY_LOG_LEVEL
//   - SOLVANITY_LOG_FORMAT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/orneryd/solvanity/pkg/gpu"
	"github.com/orneryd/solvanity/pkg/keyspace"
	"github.com/orneryd/solvanity/pkg/logging"
	"github.com/orneryd/solvanity/pkg/pattern"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SOLVANITY_"

// Config is the full solvanity configuration.
type Config struct {
	Search  SearchConfig  `yaml:"search"`
	Devices DevicesConfig `yaml:"devices"`
	Worker  WorkerConfig  `yaml:"worker"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
}

// SearchConfig is what to search for.
type SearchConfig struct {
	StartsWith    []string `yaml:"starts_with"`
	EndsWith      string   `yaml:"ends_with"`
	CaseSensitive bool     `yaml:"case_sensitive"`
	Count         int      `yaml:"count"`
	IterationBits int      `yaml:"iteration_bits"`
}

// DevicesConfig selects compute devices.
type DevicesConfig struct {
	Backend       string `yaml:"backend"`
	Select        []int  `yaml:"select"`
	CPUDevices    int    `yaml:"cpu_devices"`
	CPULanes      int    `yaml:"cpu_lanes"`
	KernelPath    string `yaml:"kernel_path"`
	LocalWorkSize int    `yaml:"local_work_size"`
	StripGeneric  bool   `yaml:"strip_generic"`
}

// WorkerConfig tunes the per-device loop. A zero CheckInterval means one
// second per device.
type WorkerConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	CheckInterval time.Duration `yaml:"check_interval"`
	StatsInterval time.Duration `yaml:"stats_interval"`
	SharedChannel bool          `yaml:"shared_channel"`
}

// OutputConfig is where matches go. BadgerDir is optional.
type OutputConfig struct {
	Dir       string `yaml:"dir"`
	BadgerDir string `yaml:"badger_dir"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Search: SearchConfig{
			CaseSensitive: true,
			Count:         1,
			IterationBits: 24,
		},
		Devices: DevicesConfig{
			Backend:       string(gpu.BackendAuto),
			CPUDevices:    1,
			LocalWorkSize: 128,
		},
		Worker: WorkerConfig{
			BatchSize:     5,
			StatsInterval: 10 * time.Second,
		},
		Output: OutputConfig{
			Dir: "./keypairs",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: logging.FormatText,
		},
	}
}

// Load reads path over Default() and then applies the environment. An
// empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv applies SOLVANITY_* overrides.
func (c *Config) LoadFromEnv() error {
	if v, ok := lookup("STARTS_WITH"); ok {
		c.Search.StartsWith = splitList(v)
	}
	if v, ok := lookup("ENDS_WITH"); ok {
		c.Search.EndsWith = v
	}
	if err := envBool("CASE_SENSITIVE", &c.Search.CaseSensitive); err != nil {
		return err
	}
	if err := envInt("COUNT", &c.Search.Count); err != nil {
		return err
	}
	if err := envInt("ITERATION_BITS", &c.Search.IterationBits); err != nil {
		return err
	}
	if v, ok := lookup("BACKEND"); ok {
		c.Devices.Backend = v
	}
	if v, ok := lookup("SELECT_DEVICE"); ok {
		sel, err := parseInts(v)
		if err != nil {
			return fmt.Errorf("%w: %sSELECT_DEVICE: %v", ErrInvalidConfig, EnvPrefix, err)
		}
		c.Devices.Select = sel
	}
	if err := envInt("CPU_DEVICES", &c.Devices.CPUDevices); err != nil {
		return err
	}
	if v, ok := lookup("KERNEL_PATH"); ok {
		c.Devices.KernelPath = v
	}
	if err := envInt("BATCH_SIZE", &c.Worker.BatchSize); err != nil {
		return err
	}
	if v, ok := lookup("CHECK_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %sCHECK_INTERVAL: %v", ErrInvalidConfig, EnvPrefix, err)
		}
		c.Worker.CheckInterval = d
	}
	if v, ok := lookup("OUTPUT_DIR"); ok {
		c.Output.Dir = v
	}
	if v, ok := lookup("BADGER_DIR"); ok {
		c.Output.BadgerDir = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok {
		c.Logging.Format = v
	}
	return nil
}

// Validate checks the configuration without touching any device.
func (c *Config) Validate() error {
	if err := c.Pattern().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Search.Count <= 0 {
		return fmt.Errorf("%w: search.count must be positive", ErrInvalidConfig)
	}
	if err := keyspace.ValidateBits(c.Search.IterationBits); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := gpu.ParseBackend(c.Devices.Backend); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	for _, s := range c.Devices.Select {
		if s < 0 {
			return fmt.Errorf("%w: devices.select contains negative index %d", ErrInvalidConfig, s)
		}
	}
	if c.Devices.LocalWorkSize < 0 || c.Worker.BatchSize < 0 || c.Worker.CheckInterval < 0 {
		return fmt.Errorf("%w: sizes and intervals must not be negative", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return fmt.Errorf("%w: output.dir is required", ErrInvalidConfig)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Pattern returns the search pattern.
func (c *Config) Pattern() pattern.Spec {
	return pattern.Spec{
		Prefixes:      c.Search.StartsWith,
		Suffix:        c.Search.EndsWith,
		CaseSensitive: c.Search.CaseSensitive,
	}
}

// GPU builds the device discovery configuration. kernelSource is the
// contents of Devices.KernelPath, read by the caller.
func (c *Config) GPU(kernelSource string) *gpu.Config {
	g := gpu.DefaultConfig()
	g.Backend = gpu.Backend(c.Devices.Backend)
	g.Select = c.Devices.Select
	g.CPUDevices = c.Devices.CPUDevices
	g.CPULanes = c.Devices.CPULanes
	g.KernelTemplate = kernelSource
	g.StripGeneric = c.Devices.StripGeneric
	if c.Devices.LocalWorkSize > 0 {
		g.LocalWorkSize = c.Devices.LocalWorkSize
	}
	return g
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func envInt(name string, dst *int) error {
	v, ok := lookup(name)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s%s: %v", ErrInvalidConfig, EnvPrefix, name, err)
	}
	*dst = n
	return nil
}

func envBool(name string, dst *bool) error {
	v, ok := lookup(name)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%w: %s%s: %v", ErrInvalidConfig, EnvPrefix, name, err)
	}
	*dst = b
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInts(v string) ([]int, error) {
	var out []int
	for _, p := range splitList(v) {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
