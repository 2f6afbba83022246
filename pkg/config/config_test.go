package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/solvanity/pkg/gpu"
	"github.com/orneryd/solvanity/pkg/pattern"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "solvanity.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 24, cfg.Search.IterationBits)
	assert.Equal(t, 1, cfg.Search.Count)
	assert.True(t, cfg.Search.CaseSensitive)
	assert.Equal(t, 5, cfg.Worker.BatchSize)
	assert.Equal(t, 128, cfg.Devices.LocalWorkSize)
	assert.Equal(t, "./keypairs", cfg.Output.Dir)

	// No pattern yet.
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestLoadYAML(t *testing.T) {
	path := writeYAML(t, `
search:
  starts_with: ["abc", "XYZ"]
  ends_with: "9"
  case_sensitive: false
  count: 3
devices:
  backend: cpu
  select: [0, 2]
  cpu_devices: 3
worker:
  check_interval: 1500ms
output:
  badger_dir: /tmp/index
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"abc", "XYZ"}, cfg.Search.StartsWith)
	assert.Equal(t, "9", cfg.Search.EndsWith)
	assert.False(t, cfg.Search.CaseSensitive)
	assert.Equal(t, 3, cfg.Search.Count)
	assert.Equal(t, 24, cfg.Search.IterationBits, "unset fields keep defaults")
	assert.Equal(t, []int{0, 2}, cfg.Devices.Select)
	assert.Equal(t, 1500*time.Millisecond, cfg.Worker.CheckInterval)
	assert.Equal(t, 5, cfg.Worker.BatchSize)
	assert.Equal(t, "/tmp/index", cfg.Output.BadgerDir)

	assert.Equal(t, pattern.Spec{Prefixes: []string{"abc", "XYZ"}, Suffix: "9"}, cfg.Pattern())

	g := cfg.GPU("kernel source")
	assert.Equal(t, gpu.BackendCPU, g.Backend)
	assert.Equal(t, 3, g.CPUDevices)
	assert.Equal(t, "kernel source", g.KernelTemplate)
	assert.Equal(t, 128, g.LocalWorkSize)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeYAML(t, "search: [not, a, map]"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SOLVANITY_STARTS_WITH", "abc, def")
	t.Setenv("SOLVANITY_ENDS_WITH", "z")
	t.Setenv("SOLVANITY_CASE_SENSITIVE", "false")
	t.Setenv("SOLVANITY_COUNT", "4")
	t.Setenv("SOLVANITY_ITERATION_BITS", "20")
	t.Setenv("SOLVANITY_SELECT_DEVICE", "1,3")
	t.Setenv("SOLVANITY_CHECK_INTERVAL", "250ms")
	t.Setenv("SOLVANITY_OUTPUT_DIR", "/out")
	t.Setenv("SOLVANITY_LOG_FORMAT", "json")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"abc", "def"}, cfg.Search.StartsWith)
	assert.Equal(t, "z", cfg.Search.EndsWith)
	assert.False(t, cfg.Search.CaseSensitive)
	assert.Equal(t, 4, cfg.Search.Count)
	assert.Equal(t, 20, cfg.Search.IterationBits)
	assert.Equal(t, []int{1, 3}, cfg.Devices.Select)
	assert.Equal(t, 250*time.Millisecond, cfg.Worker.CheckInterval)
	assert.Equal(t, "/out", cfg.Output.Dir)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromEnvErrors(t *testing.T) {
	tests := map[string]string{
		"SOLVANITY_COUNT":          "many",
		"SOLVANITY_CASE_SENSITIVE": "maybe",
		"SOLVANITY_SELECT_DEVICE":  "0,x",
		"SOLVANITY_CHECK_INTERVAL": "soon",
	}
	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, value)
			_, err := Load("")
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Search.EndsWith = "abc"
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"invalid character", func(c *Config) { c.Search.EndsWith = "0" }},
		{"zero count", func(c *Config) { c.Search.Count = 0 }},
		{"iteration bits", func(c *Config) { c.Search.IterationBits = 64 }},
		{"backend", func(c *Config) { c.Devices.Backend = "tpu" }},
		{"negative select", func(c *Config) { c.Devices.Select = []int{-1} }},
		{"negative batch", func(c *Config) { c.Worker.BatchSize = -1 }},
		{"output dir", func(c *Config) { c.Output.Dir = "" }},
		{"log level", func(c *Config) { c.Logging.Level = "chatty" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
