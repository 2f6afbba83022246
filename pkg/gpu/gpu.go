// Package gpu discovers compute devices and binds the vanity kernel to them.
//
// Two backends are supported:
//   - opencl: GPUs through the OpenCL bridge (requires the "opencl" build tag)
//   - cpu:    the pure-Go reference kernel, one or more logical devices
//
// With BackendAuto the accelerator tries OpenCL first and falls back to the
// CPU backend when no GPU is usable and FallbackOnError is set.
package gpu

import (
	"errors"
	"fmt"
)

// Backend names a device family.
type Backend string

const (
	BackendAuto   Backend = "auto"
	BackendCPU    Backend = "cpu"
	BackendOpenCL Backend = "opencl"
	BackendNone   Backend = "none"
)

// String implements fmt.Stringer.
func (b Backend) String() string { return string(b) }

// ParseBackend validates a backend name from configuration.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(s); b {
	case BackendAuto, BackendCPU, BackendOpenCL:
		return b, nil
	case "":
		return BackendAuto, nil
	default:
		return BackendNone, fmt.Errorf("%w: %q", ErrUnknownBackend, s)
	}
}

// Errors
var (
	ErrGPUNotAvailable  = errors.New("gpu: no usable compute device")
	ErrUnknownBackend   = errors.New("gpu: unknown backend")
	ErrInvalidSelection = errors.New("gpu: selected device index out of range")
	ErrDeviceBuild      = errors.New("gpu: device failed to bind kernel")
	ErrDeviceRuntime    = errors.New("gpu: device failed during dispatch")
)

// Config selects and configures devices.
type Config struct {
	// Backend to use. BackendAuto tries OpenCL, then CPU.
	Backend Backend

	// Select restricts discovery to these device indexes. Empty means all.
	Select []int

	// CPUDevices is the number of logical CPU devices to expose.
	CPUDevices int
	// CPULanes is the goroutine count per CPU device; 0 splits GOMAXPROCS.
	CPULanes int

	// KernelTemplate is the OpenCL kernel source before constant substitution.
	KernelTemplate string
	// LocalWorkSize is the OpenCL work-group size.
	LocalWorkSize int
	// StripGeneric removes "#define __generic" from the kernel source.
	StripGeneric bool

	// FallbackOnError lets BackendAuto drop to CPU when OpenCL fails.
	FallbackOnError bool
}

// DefaultConfig returns a configuration that works on any host.
func DefaultConfig() *Config {
	return &Config{
		Backend:         BackendAuto,
		CPUDevices:      1,
		LocalWorkSize:   128,
		FallbackOnError: true,
	}
}
