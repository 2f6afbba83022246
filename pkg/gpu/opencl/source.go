package opencl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/orneryd/solvanity/pkg/cache"
	"github.com/orneryd/solvanity/pkg/kernel"
)

// Errors
var (
	ErrOpenCLNotAvailable = errors.New("opencl: OpenCL is not available")
	ErrDeviceCreation     = errors.New("opencl: failed to create OpenCL device")
	ErrProgramBuild       = errors.New("opencl: failed to build kernel program")
	ErrKernelExecution    = errors.New("opencl: kernel execution failed")
	ErrTemplate           = errors.New("opencl: kernel template is missing a placeholder")
)

// BackendName identifies this backend in logs and device listings.
const BackendName = "opencl"

// DefaultLocalWorkSize is the work-group size used when none is configured.
const DefaultLocalWorkSize = 128

// Options configure an OpenCL device.
type Options struct {
	// Template is the kernel source before constant substitution.
	Template string
	// LocalWorkSize is the work-group size passed to the NDRange launch.
	LocalWorkSize int
	// StripGeneric removes a "#define __generic" line, which OpenCL 2.x
	// compilers reject.
	StripGeneric bool
}

const (
	placeholderPrefixes = "constant uchar PREFIXES[N][L] = {{83, 111, 76}};"
	placeholderSuffix   = "constant uchar SUFFIX[] = {};"
	placeholderCase     = "constant bool CASE_SENSITIVE = true;"
	genericDefine       = "#define __generic\n"
)

// renders caches rendered sources across rounds and devices.
var renders = cache.NewProgramCache(32, 0)

// Render substitutes pattern constants into the kernel template.
func Render(template string, c kernel.Constants, stripGeneric bool) (string, error) {
	parts := make([][]byte, 0, len(c.Prefixes)+2)
	parts = append(parts, []byte(template), []byte(strconv.FormatBool(stripGeneric)))
	key := cache.Key(append(parts, c.Prefixes...), c.Suffix, c.CaseSensitive)
	v, err := renders.GetOrCreate(key, func() (any, error) {
		return render(template, c, stripGeneric)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func render(template string, c kernel.Constants, stripGeneric bool) (string, error) {
	for _, p := range []string{"#define N ", "#define L ", placeholderPrefixes, placeholderSuffix, placeholderCase} {
		if !strings.Contains(template, p) {
			return "", fmt.Errorf("%w: %q", ErrTemplate, p)
		}
	}

	src := replaceLine(template, "#define N ", fmt.Sprintf("#define N %d", len(c.Prefixes)))
	src = replaceLine(src, "#define L ", fmt.Sprintf("#define L %d", c.PrefixWidth))

	rows := make([]string, len(c.Prefixes))
	for i, p := range c.Prefixes {
		rows[i] = "{" + joinBytes(p) + "}"
	}
	src = strings.Replace(src, placeholderPrefixes,
		fmt.Sprintf("constant uchar PREFIXES[N][L] = {%s};", strings.Join(rows, ", ")), 1)
	src = strings.Replace(src, placeholderSuffix,
		fmt.Sprintf("constant uchar SUFFIX[] = {%s};", joinBytes(c.Suffix)), 1)
	src = strings.Replace(src, placeholderCase,
		fmt.Sprintf("constant bool CASE_SENSITIVE = %t;", c.CaseSensitive), 1)

	if stripGeneric {
		src = strings.Replace(src, genericDefine, "", 1)
	}
	return src, nil
}

// replaceLine replaces the whole line starting with prefix.
func replaceLine(src, prefix, line string) string {
	idx := strings.Index(src, prefix)
	if idx < 0 {
		return src
	}
	end := strings.IndexByte(src[idx:], '\n')
	if end < 0 {
		return src[:idx] + line
	}
	return src[:idx] + line + src[idx+end:]
}

func joinBytes(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = strconv.Itoa(int(v))
	}
	return strings.Join(parts, ", ")
}
