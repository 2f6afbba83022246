//go:build !opencl
// +build !opencl

package opencl

import (
	"github.com/orneryd/solvanity/pkg/kernel"
)

// Device represents an OpenCL GPU device (stub).
type Device struct{}

// IsAvailable returns false on systems without OpenCL.
func IsAvailable() bool {
	return false
}

// DeviceCount returns 0 on systems without OpenCL.
func DeviceCount() int {
	return 0
}

// NewDevice returns an error on systems without OpenCL.
func NewDevice(index int, opts Options) (*Device, error) {
	return nil, ErrOpenCLNotAvailable
}

// Release is a no-op stub.
func (d *Device) Release() {}

// Index returns 0.
func (d *Device) Index() int { return 0 }

// Name returns empty string.
func (d *Device) Name() string { return "" }

// Vendor returns empty string.
func (d *Device) Vendor() string { return "" }

// Backend returns the backend name.
func (d *Device) Backend() string { return BackendName }

// MemoryMB returns 0.
func (d *Device) MemoryMB() int { return 0 }

// Build returns an error.
func (d *Device) Build(c kernel.Constants) (kernel.Program, error) {
	return nil, ErrOpenCLNotAvailable
}
