//go:build opencl && (linux || windows || darwin)
// +build opencl
// +build linux windows darwin

package opencl

/*
#cgo linux CFLAGS: -I/opt/rocm/include -I/usr/include -DCL_TARGET_OPENCL_VERSION=120
#cgo linux LDFLAGS: -L/opt/rocm/lib -L/usr/lib/x86_64-linux-gnu -lOpenCL
#cgo darwin CFLAGS: -DCL_TARGET_OPENCL_VERSION=120
#cgo darwin LDFLAGS: -framework OpenCL
#cgo windows CFLAGS: -DCL_TARGET_OPENCL_VERSION=120
#cgo windows LDFLAGS: -lOpenCL

#ifdef __APPLE__
#include <OpenCL/opencl.h>
#else
#include <CL/cl.h>
#endif

#include <stdlib.h>
#include <string.h>
#include <stdio.h>

// Errors are written to a caller-owned buffer so concurrent calls on
// different devices never share state.
static void opencl_set_error(char* err, size_t errlen, const char* msg) {
    if (err == NULL || errlen == 0) return;
    strncpy(err, msg, errlen - 1);
    err[errlen - 1] = '\0';
}

typedef struct {
    cl_platform_id platform;
    cl_device_id device;
    cl_context context;
    cl_command_queue queue;
    int device_id;
} VanityDevice;

typedef struct {
    VanityDevice* dev;
    cl_program program;
    cl_kernel kernel;
    cl_mem key32;
    cl_mem output;
    cl_mem occupied_bytes;
    cl_mem group_offset;
} VanityProgram;

static int opencl_get_device_count() {
    cl_uint num_platforms;
    cl_int err = clGetPlatformIDs(0, NULL, &num_platforms);
    if (err != CL_SUCCESS || num_platforms == 0) {
        return 0;
    }

    cl_platform_id* platforms = (cl_platform_id*)malloc(num_platforms * sizeof(cl_platform_id));
    clGetPlatformIDs(num_platforms, platforms, NULL);

    int total = 0;
    for (cl_uint i = 0; i < num_platforms; i++) {
        cl_uint num_devices;
        if (clGetDeviceIDs(platforms[i], CL_DEVICE_TYPE_GPU, 0, NULL, &num_devices) == CL_SUCCESS) {
            total += num_devices;
        }
    }

    free(platforms);
    return total;
}

static int opencl_get_device_by_index(int index, cl_platform_id* out_platform, cl_device_id* out_device) {
    cl_uint num_platforms;
    cl_int err = clGetPlatformIDs(0, NULL, &num_platforms);
    if (err != CL_SUCCESS || num_platforms == 0) {
        return -1;
    }

    cl_platform_id* platforms = (cl_platform_id*)malloc(num_platforms * sizeof(cl_platform_id));
    clGetPlatformIDs(num_platforms, platforms, NULL);

    int current = 0;
    for (cl_uint i = 0; i < num_platforms; i++) {
        cl_uint num_devices;
        if (clGetDeviceIDs(platforms[i], CL_DEVICE_TYPE_GPU, 0, NULL, &num_devices) != CL_SUCCESS) continue;

        if (index < current + (int)num_devices) {
            cl_device_id* devices = (cl_device_id*)malloc(num_devices * sizeof(cl_device_id));
            clGetDeviceIDs(platforms[i], CL_DEVICE_TYPE_GPU, num_devices, devices, NULL);
            *out_platform = platforms[i];
            *out_device = devices[index - current];
            free(devices);
            free(platforms);
            return 0;
        }
        current += num_devices;
    }

    free(platforms);
    return -1;
}

static VanityDevice* opencl_create_device(int device_id, char* errbuf, size_t errlen) {
    VanityDevice* dev = (VanityDevice*)calloc(1, sizeof(VanityDevice));
    if (!dev) {
        opencl_set_error(errbuf, errlen, "failed to allocate device struct");
        return NULL;
    }
    dev->device_id = device_id;

    if (opencl_get_device_by_index(device_id, &dev->platform, &dev->device) != 0) {
        opencl_set_error(errbuf, errlen, "device not found");
        free(dev);
        return NULL;
    }

    cl_int err;
    dev->context = clCreateContext(NULL, 1, &dev->device, NULL, NULL, &err);
    if (err != CL_SUCCESS) {
        char msg[128];
        snprintf(msg, sizeof(msg), "clCreateContext failed: %d", err);
        opencl_set_error(errbuf, errlen, msg);
        free(dev);
        return NULL;
    }

    dev->queue = clCreateCommandQueue(dev->context, dev->device, 0, &err);
    if (err != CL_SUCCESS) {
        char msg[128];
        snprintf(msg, sizeof(msg), "clCreateCommandQueue failed: %d", err);
        opencl_set_error(errbuf, errlen, msg);
        clReleaseContext(dev->context);
        free(dev);
        return NULL;
    }
    return dev;
}

static void opencl_release_device(VanityDevice* dev) {
    if (dev) {
        if (dev->queue) clReleaseCommandQueue(dev->queue);
        if (dev->context) clReleaseContext(dev->context);
        free(dev);
    }
}

static void opencl_device_info(VanityDevice* dev, cl_device_info param, char* out, size_t n) {
    if (clGetDeviceInfo(dev->device, param, n, out, NULL) != CL_SUCCESS) {
        strncpy(out, "Unknown", n - 1);
    }
}

static unsigned long long opencl_device_memory(VanityDevice* dev) {
    cl_ulong mem_size = 0;
    clGetDeviceInfo(dev->device, CL_DEVICE_GLOBAL_MEM_SIZE, sizeof(mem_size), &mem_size, NULL);
    return (unsigned long long)mem_size;
}

static void opencl_release_program(VanityProgram* p) {
    if (p) {
        if (p->group_offset) clReleaseMemObject(p->group_offset);
        if (p->occupied_bytes) clReleaseMemObject(p->occupied_bytes);
        if (p->output) clReleaseMemObject(p->output);
        if (p->key32) clReleaseMemObject(p->key32);
        if (p->kernel) clReleaseKernel(p->kernel);
        if (p->program) clReleaseProgram(p->program);
        free(p);
    }
}

static VanityProgram* opencl_build_program(VanityDevice* dev, const char* source, char* errbuf, size_t errlen) {
    VanityProgram* p = (VanityProgram*)calloc(1, sizeof(VanityProgram));
    if (!p) {
        opencl_set_error(errbuf, errlen, "failed to allocate program struct");
        return NULL;
    }
    p->dev = dev;

    cl_int err;
    size_t source_len = strlen(source);
    p->program = clCreateProgramWithSource(dev->context, 1, &source, &source_len, &err);
    if (err != CL_SUCCESS) {
        char msg[128];
        snprintf(msg, sizeof(msg), "clCreateProgramWithSource failed: %d", err);
        opencl_set_error(errbuf, errlen, msg);
        opencl_release_program(p);
        return NULL;
    }

    err = clBuildProgram(p->program, 1, &dev->device, NULL, NULL, NULL);
    if (err != CL_SUCCESS) {
        size_t log_size = 0;
        clGetProgramBuildInfo(p->program, dev->device, CL_PROGRAM_BUILD_LOG, 0, NULL, &log_size);
        char* log = (char*)malloc(log_size + 1);
        clGetProgramBuildInfo(p->program, dev->device, CL_PROGRAM_BUILD_LOG, log_size, log, NULL);
        log[log_size] = '\0';
        opencl_set_error(errbuf, errlen, log);
        free(log);
        opencl_release_program(p);
        return NULL;
    }

    p->kernel = clCreateKernel(p->program, "generate_pubkey", &err);
    if (err != CL_SUCCESS) {
        opencl_set_error(errbuf, errlen, "failed to create kernel: generate_pubkey");
        opencl_release_program(p);
        return NULL;
    }

    p->key32 = clCreateBuffer(dev->context, CL_MEM_READ_ONLY, 32, NULL, &err);
    if (err == CL_SUCCESS) p->output = clCreateBuffer(dev->context, CL_MEM_READ_WRITE, 33, NULL, &err);
    if (err == CL_SUCCESS) p->occupied_bytes = clCreateBuffer(dev->context, CL_MEM_READ_WRITE, 1, NULL, &err);
    if (err == CL_SUCCESS) p->group_offset = clCreateBuffer(dev->context, CL_MEM_READ_WRITE, sizeof(cl_int), NULL, &err);
    if (err != CL_SUCCESS) {
        char msg[128];
        snprintf(msg, sizeof(msg), "clCreateBuffer failed: %d", err);
        opencl_set_error(errbuf, errlen, msg);
        opencl_release_program(p);
        return NULL;
    }

    err = clSetKernelArg(p->kernel, 0, sizeof(cl_mem), &p->key32);
    err |= clSetKernelArg(p->kernel, 1, sizeof(cl_mem), &p->output);
    err |= clSetKernelArg(p->kernel, 2, sizeof(cl_mem), &p->occupied_bytes);
    err |= clSetKernelArg(p->kernel, 3, sizeof(cl_mem), &p->group_offset);
    if (err != CL_SUCCESS) {
        opencl_set_error(errbuf, errlen, "failed to set kernel args");
        opencl_release_program(p);
        return NULL;
    }
    return p;
}

static int opencl_run(VanityProgram* p, const unsigned char* seed, unsigned char occupied,
                      int offset, size_t global_size, size_t local_size, unsigned char* out,
                      char* errbuf, size_t errlen) {
    cl_command_queue q = p->dev->queue;
    cl_int err;

    unsigned char zero[33] = {0};
    err = clEnqueueWriteBuffer(q, p->output, CL_FALSE, 0, 33, zero, 0, NULL, NULL);
    err |= clEnqueueWriteBuffer(q, p->key32, CL_FALSE, 0, 32, seed, 0, NULL, NULL);
    err |= clEnqueueWriteBuffer(q, p->occupied_bytes, CL_FALSE, 0, 1, &occupied, 0, NULL, NULL);
    err |= clEnqueueWriteBuffer(q, p->group_offset, CL_FALSE, 0, sizeof(cl_int), &offset, 0, NULL, NULL);
    if (err != CL_SUCCESS) {
        opencl_set_error(errbuf, errlen, "failed to upload dispatch inputs");
        return -1;
    }

    size_t* local = local_size > 0 && global_size % local_size == 0 ? &local_size : NULL;
    err = clEnqueueNDRangeKernel(q, p->kernel, 1, NULL, &global_size, local, 0, NULL, NULL);
    if (err != CL_SUCCESS) {
        char msg[128];
        snprintf(msg, sizeof(msg), "clEnqueueNDRangeKernel failed: %d", err);
        opencl_set_error(errbuf, errlen, msg);
        return -1;
    }

    err = clEnqueueReadBuffer(q, p->output, CL_TRUE, 0, 33, out, 0, NULL, NULL);
    if (err != CL_SUCCESS) {
        char msg[128];
        snprintf(msg, sizeof(msg), "clEnqueueReadBuffer failed: %d", err);
        opencl_set_error(errbuf, errlen, msg);
        return -1;
    }
    return 0;
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/orneryd/solvanity/pkg/kernel"
	"github.com/orneryd/solvanity/pkg/keyspace"
)

// errBufSize bounds the driver messages copied back from the C side.
const errBufSize = 512

// errBuf receives a C-side error message. Each call site owns its buffer.
type errBuf [errBufSize]C.char

func (b *errBuf) ptr() (*C.char, C.size_t) { return &b[0], C.size_t(len(b)) }

func (b *errBuf) String() string { return C.GoString(&b[0]) }

// Device represents an OpenCL GPU device.
type Device struct {
	ptr    *C.VanityDevice
	index  int
	name   string
	vendor string
	memory uint64
	opts   Options
	mu     sync.Mutex
}

// IsAvailable checks if OpenCL is available on this system.
func IsAvailable() bool {
	return C.opencl_get_device_count() > 0
}

// DeviceCount returns the number of OpenCL GPU devices.
func DeviceCount() int {
	count := C.opencl_get_device_count()
	if count < 0 {
		return 0
	}
	return int(count)
}

// NewDevice opens the index-th GPU across all platforms.
func NewDevice(index int, opts Options) (*Device, error) {
	if !IsAvailable() {
		return nil, ErrOpenCLNotAvailable
	}
	if opts.LocalWorkSize <= 0 {
		opts.LocalWorkSize = DefaultLocalWorkSize
	}

	var eb errBuf
	ebp, ebn := eb.ptr()
	ptr := C.opencl_create_device(C.int(index), ebp, ebn)
	if ptr == nil {
		return nil, fmt.Errorf("%w: %s", ErrDeviceCreation, eb.String())
	}

	var buf [256]C.char
	C.opencl_device_info(ptr, C.CL_DEVICE_NAME, &buf[0], C.size_t(len(buf)))
	name := C.GoString(&buf[0])
	C.opencl_device_info(ptr, C.CL_DEVICE_VENDOR, &buf[0], C.size_t(len(buf)))
	vendor := C.GoString(&buf[0])

	return &Device{
		ptr:    ptr,
		index:  index,
		name:   name,
		vendor: vendor,
		memory: uint64(C.opencl_device_memory(ptr)),
		opts:   opts,
	}, nil
}

// Release frees the OpenCL device resources.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ptr != nil {
		C.opencl_release_device(d.ptr)
		d.ptr = nil
	}
}

// Index returns the device index.
func (d *Device) Index() int { return d.index }

// Name returns the GPU device name.
func (d *Device) Name() string { return d.name }

// Vendor returns the GPU vendor name.
func (d *Device) Vendor() string { return d.vendor }

// Backend returns the backend name.
func (d *Device) Backend() string { return BackendName }

// MemoryMB returns the GPU memory size in megabytes.
func (d *Device) MemoryMB() int { return int(d.memory / (1024 * 1024)) }

// Build renders the kernel template with c and compiles it.
func (d *Device) Build(c kernel.Constants) (kernel.Program, error) {
	src, err := Render(d.opts.Template, c, d.opts.StripGeneric)
	if err != nil {
		return nil, err
	}
	csrc := C.CString(src)
	defer C.free(unsafe.Pointer(csrc))

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ptr == nil {
		return nil, fmt.Errorf("%w: device released", ErrDeviceCreation)
	}

	var eb errBuf
	ebp, ebn := eb.ptr()
	ptr := C.opencl_build_program(d.ptr, csrc, ebp, ebn)
	if ptr == nil {
		return nil, fmt.Errorf("%w: %s", ErrProgramBuild, eb.String())
	}

	return &Program{ptr: ptr, device: d}, nil
}

// Program is a compiled generate_pubkey kernel plus its buffers.
type Program struct {
	ptr    *C.VanityProgram
	device *Device
	out    [kernel.ResultSize]byte
	errs   errBuf
}

// Run implements kernel.Program. The seed is copied to the device; the
// host-side value is never written. Only the owning device's queue is
// locked, so programs on different devices run concurrently.
func (p *Program) Run(seed *keyspace.Seed, args kernel.DispatchArgs, out *kernel.MatchResult) error {
	if p.ptr == nil {
		return fmt.Errorf("%w: program released", ErrKernelExecution)
	}
	in := *seed

	p.device.mu.Lock()
	ebp, ebn := p.errs.ptr()
	ret := C.opencl_run(p.ptr,
		(*C.uchar)(unsafe.Pointer(&in[0])),
		C.uchar(args.IterationBytes),
		C.int(args.WorkerOffset),
		C.size_t(args.GlobalSize),
		C.size_t(p.device.opts.LocalWorkSize),
		(*C.uchar)(unsafe.Pointer(&p.out[0])),
		ebp, ebn)
	p.device.mu.Unlock()

	if ret != 0 {
		return fmt.Errorf("%w: %s", ErrKernelExecution, p.errs.String())
	}

	res, err := kernel.ParseMatchResult(p.out[:])
	if err != nil {
		return err
	}
	*out = res
	return nil
}

// Release frees the program and its buffers.
func (p *Program) Release() {
	if p.ptr != nil {
		C.opencl_release_program(p.ptr)
		p.ptr = nil
	}
}
