package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/solvanity/pkg/gpu/cpu"
	"github.com/orneryd/solvanity/pkg/gpu/opencl"
)

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in      string
		want    Backend
		wantErr bool
	}{
		{"", BackendAuto, false},
		{"auto", BackendAuto, false},
		{"cpu", BackendCPU, false},
		{"opencl", BackendOpenCL, false},
		{"metal", BackendNone, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBackend(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownBackend)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewAcceleratorCPU(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendCPU
	cfg.CPUDevices = 3
	cfg.CPULanes = 2

	accel, err := NewAccelerator(cfg)
	require.NoError(t, err)
	defer accel.Release()

	assert.Equal(t, BackendCPU, accel.Backend())
	devs := accel.Devices()
	require.Len(t, devs, 3)
	for i, d := range devs {
		assert.Equal(t, i, d.Index())
		assert.Equal(t, cpu.BackendName, d.Backend())
	}
}

func TestNewAcceleratorSelection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendCPU
	cfg.CPUDevices = 4
	cfg.Select = []int{1, 3}

	accel, err := NewAccelerator(cfg)
	require.NoError(t, err)

	devs := accel.Devices()
	require.Len(t, devs, 2)
	assert.Equal(t, 1, devs[0].Index())
	assert.Equal(t, 3, devs[1].Index())
}

func TestNewAcceleratorInvalidSelection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendCPU
	cfg.CPUDevices = 2
	cfg.Select = []int{0, 5}

	_, err := NewAccelerator(cfg)
	assert.ErrorIs(t, err, ErrInvalidSelection)
}

func TestNewAcceleratorAutoFallsBackToCPU(t *testing.T) {
	if opencl.IsAvailable() {
		t.Skip("OpenCL present; fallback path not taken")
	}
	accel, err := NewAccelerator(nil)
	require.NoError(t, err)
	assert.Equal(t, BackendCPU, accel.Backend())
	assert.NotEmpty(t, accel.Devices())
}

func TestNewAcceleratorOpenCLWithoutSupport(t *testing.T) {
	if opencl.IsAvailable() {
		t.Skip("OpenCL present")
	}
	cfg := DefaultConfig()
	cfg.Backend = BackendOpenCL
	_, err := NewAccelerator(cfg)
	assert.ErrorIs(t, err, ErrGPUNotAvailable)
}

func TestNewAcceleratorUnknownBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "tpu"
	_, err := NewAccelerator(cfg)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestAcceleratorStats(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendCPU
	accel, err := NewAccelerator(cfg)
	require.NoError(t, err)

	accel.Record(BindingStats{Dispatches: 3, Candidates: 768}, false)
	accel.Record(BindingStats{Dispatches: 1, Candidates: 256}, true)
	accel.RecordBindFailure()

	s := accel.Stats()
	assert.Equal(t, int64(2), s.Binds)
	assert.Equal(t, int64(1), s.BindFailures)
	assert.Equal(t, int64(4), s.KernelExecutions)
	assert.Equal(t, int64(1), s.RuntimeFailures)
	assert.Equal(t, uint64(1024), s.Candidates)
}
