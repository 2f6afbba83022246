//go:build !(unix || linux || darwin || freebsd || openbsd || netbsd)

package coord

// Shared falls back to a process-local channel where shared anonymous
// mappings are unavailable.
type Shared = Local

// NewShared returns a local channel.
func NewShared() (*Shared, error) {
	return NewLocal(), nil
}
