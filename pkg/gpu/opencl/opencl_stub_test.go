//go:build !opencl
// +build !opencl

package opencl

import (
	"testing"

	"github.com/orneryd/solvanity/pkg/kernel"
)

func TestIsAvailableStub(t *testing.T) {
	if IsAvailable() {
		t.Error("IsAvailable() should return false on stub")
	}
}

func TestDeviceCountStub(t *testing.T) {
	if DeviceCount() != 0 {
		t.Error("DeviceCount() should return 0 on stub")
	}
}

func TestNewDeviceStub(t *testing.T) {
	device, err := NewDevice(0, Options{})
	if err != ErrOpenCLNotAvailable {
		t.Errorf("NewDevice() error = %v, want ErrOpenCLNotAvailable", err)
	}
	if device != nil {
		t.Error("NewDevice() should return nil device on stub")
	}
}

func TestDeviceMethodsStub(t *testing.T) {
	var device Device

	device.Release()

	if device.Index() != 0 {
		t.Error("Index() should return 0")
	}
	if device.Name() != "" {
		t.Error("Name() should return empty string")
	}
	if device.Vendor() != "" {
		t.Error("Vendor() should return empty string")
	}
	if device.MemoryMB() != 0 {
		t.Error("MemoryMB() should return 0")
	}
	if device.Backend() != BackendName {
		t.Errorf("Backend() = %q, want %q", device.Backend(), BackendName)
	}
}

func TestBuildStub(t *testing.T) {
	var device Device
	prog, err := device.Build(kernel.Constants{})
	if err != ErrOpenCLNotAvailable {
		t.Errorf("Build() error = %v, want ErrOpenCLNotAvailable", err)
	}
	if prog != nil {
		t.Error("Build() should return nil program on stub")
	}
}
