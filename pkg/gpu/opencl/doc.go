// Package opencl runs the vanity search kernel on OpenCL devices.
//
// The kernel source is not part of this package. It is loaded from disk
// (see config devices.kernel_path) and must define a kernel named
// "generate_pubkey" with this signature:
//
//	__kernel void generate_pubkey(
//	    constant uchar *key32,          // 32-byte dispatch seed, read only
//	    global uchar *output,           // 33 bytes: [flag][seed]
//	    global uchar *occupied_bytes,   // width of the counter region
//	    global int *group_offset)       // this device's worker offset
//
// The template must contain these lines, which Render rewrites with the
// pattern constants:
//
//	#define N <anything>
//	#define L <anything>
//	constant uchar PREFIXES[N][L] = {{83, 111, 76}};
//	constant uchar SUFFIX[] = {};
//	constant bool CASE_SENSITIVE = true;
//
// # Requirements
//
// For AMD GPUs on Linux:
//   - ROCm (Radeon Open Compute): https://rocm.docs.amd.com/
//   - Or AMD GPU drivers with OpenCL support
//
// For NVIDIA GPUs:
//   - NVIDIA drivers with OpenCL support
//
// For Intel GPUs:
//   - Intel oneAPI or Intel OpenCL runtime
//
// # Build Tags
//
// The cgo bridge is only compiled when the "opencl" build tag is present:
//
//	go build -tags opencl
//
// Without the tag every constructor returns ErrOpenCLNotAvailable and the
// search falls back to the CPU backend.
//
// # Example
//
//	src, _ := os.ReadFile("kernel.cl")
//	device, err := opencl.NewDevice(0, opencl.Options{Template: string(src)})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer device.Release()
//
//	prog, err := device.Build(kernel.ConstantsFor(spec))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer prog.Release()
//
//	var out kernel.MatchResult
//	err = prog.Run(&seed, args, &out)
package opencl
