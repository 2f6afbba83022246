package gpu

import (
	"fmt"
	"strings"
	"sync"

	"github.com/orneryd/solvanity/pkg/gpu/cpu"
	"github.com/orneryd/solvanity/pkg/gpu/opencl"
	"github.com/orneryd/solvanity/pkg/kernel"
)

// Accelerator owns the compute devices used by a search.
//
// Usage:
//
//	accel, err := gpu.NewAccelerator(cfg)
//	if err != nil {
//		return err
//	}
//	defer accel.Release()
//
//	for _, dev := range accel.Devices() {
//		fmt.Println(dev.Index(), dev.Name())
//	}
type Accelerator struct {
	backend Backend
	config  *Config
	devices []kernel.Device

	// OpenCL handles to release on shutdown.
	openclDevices []*opencl.Device

	mu    sync.RWMutex
	stats AcceleratorStats
}

// AcceleratorStats tracks device usage across all bindings.
type AcceleratorStats struct {
	Binds            int64
	BindFailures     int64
	KernelExecutions int64
	RuntimeFailures  int64
	Candidates       uint64
}

// NewAccelerator discovers devices for the configured backend.
func NewAccelerator(config *Config) (*Accelerator, error) {
	if config == nil {
		config = DefaultConfig()
	}

	accel := &Accelerator{
		config:  config,
		backend: BackendNone,
	}

	if err := accel.initBackend(config.Backend); err != nil {
		return nil, err
	}
	return accel, nil
}

// initBackend initializes the requested backend, falling back for auto.
func (a *Accelerator) initBackend(preferred Backend) error {
	var backends []Backend
	switch preferred {
	case BackendAuto, "":
		backends = []Backend{BackendOpenCL}
		if a.config.FallbackOnError {
			backends = append(backends, BackendCPU)
		}
	case BackendCPU, BackendOpenCL:
		backends = []Backend{preferred}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, preferred)
	}

	var lastErr error
	for _, backend := range backends {
		if err := a.tryBackend(backend); err != nil {
			lastErr = err
			continue
		}
		return a.applySelection()
	}
	return fmt.Errorf("%w: %v", ErrGPUNotAvailable, lastErr)
}

// tryBackend attempts to initialize a specific backend.
func (a *Accelerator) tryBackend(backend Backend) error {
	switch backend {
	case BackendOpenCL:
		return a.initOpenCL()
	case BackendCPU:
		return a.initCPU()
	default:
		return ErrGPUNotAvailable
	}
}

// initOpenCL opens every OpenCL GPU.
func (a *Accelerator) initOpenCL() error {
	if !opencl.IsAvailable() {
		return opencl.ErrOpenCLNotAvailable
	}
	if strings.TrimSpace(a.config.KernelTemplate) == "" {
		return fmt.Errorf("%w: no kernel template configured", opencl.ErrDeviceCreation)
	}

	opts := opencl.Options{
		Template:      a.config.KernelTemplate,
		LocalWorkSize: a.config.LocalWorkSize,
		StripGeneric:  a.config.StripGeneric,
	}
	n := opencl.DeviceCount()
	var devices []kernel.Device
	for i := 0; i < n; i++ {
		if !a.selected(i) {
			continue
		}
		dev, err := opencl.NewDevice(i, opts)
		if err != nil {
			for _, d := range a.openclDevices {
				d.Release()
			}
			a.openclDevices = nil
			return err
		}
		a.openclDevices = append(a.openclDevices, dev)
		devices = append(devices, dev)
	}
	if len(devices) == 0 {
		return ErrGPUNotAvailable
	}

	a.devices = devices
	a.backend = BackendOpenCL
	return nil
}

// initCPU creates the logical CPU devices.
func (a *Accelerator) initCPU() error {
	n := a.config.CPUDevices
	if n <= 0 {
		n = 1
	}
	var devs []*cpu.Device
	if a.config.CPULanes > 0 {
		for i := 0; i < n; i++ {
			devs = append(devs, cpu.NewDevice(i, a.config.CPULanes))
		}
	} else {
		devs = cpu.Devices(n)
	}

	var devices []kernel.Device
	for _, d := range devs {
		if a.selected(d.Index()) {
			devices = append(devices, d)
		}
	}
	if len(devices) == 0 {
		return ErrGPUNotAvailable
	}

	a.devices = devices
	a.backend = BackendCPU
	return nil
}

func (a *Accelerator) selected(index int) bool {
	if len(a.config.Select) == 0 {
		return true
	}
	for _, s := range a.config.Select {
		if s == index {
			return true
		}
	}
	return false
}

// applySelection rejects selected indexes that no device answered to.
func (a *Accelerator) applySelection() error {
	for _, s := range a.config.Select {
		found := false
		for _, d := range a.devices {
			if d.Index() == s {
				found = true
				break
			}
		}
		if !found {
			a.Release()
			return fmt.Errorf("%w: %d", ErrInvalidSelection, s)
		}
	}
	return nil
}

// Release frees all device resources.
func (a *Accelerator) Release() {
	for _, d := range a.openclDevices {
		d.Release()
	}
	a.openclDevices = nil
	a.devices = nil
	a.backend = BackendNone
}

// Backend returns the active backend.
func (a *Accelerator) Backend() Backend {
	return a.backend
}

// Devices returns the discovered devices in index order.
func (a *Accelerator) Devices() []kernel.Device {
	return a.devices
}

// Stats returns a snapshot of usage statistics.
func (a *Accelerator) Stats() AcceleratorStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}

// Record folds a finished binding's counters into the accelerator stats.
func (a *Accelerator) Record(s BindingStats, runtimeFailed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.Binds++
	a.stats.KernelExecutions += s.Dispatches
	a.stats.Candidates += s.Candidates
	if runtimeFailed {
		a.stats.RuntimeFailures++
	}
}

// RecordBindFailure counts a device that failed to bind.
func (a *Accelerator) RecordBindFailure() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.BindFailures++
}
