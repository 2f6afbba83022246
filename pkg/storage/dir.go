package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/orneryd/solvanity/pkg/keypair"
)

// DirSink writes each keypair to <dir>/<address>.json as a JSON array of the
// 64 bytes seed||public key.
type DirSink struct {
	dir string

	mu     sync.Mutex
	closed bool
}

// NewDirSink creates dir if needed.
func NewDirSink(dir string) (*DirSink, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage: output directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("storage: creating %s: %w", dir, err)
	}
	return &DirSink{dir: dir}, nil
}

// Dir returns the output directory.
func (s *DirSink) Dir() string { return s.dir }

// Path returns the file a keypair with address is stored in.
func (s *DirSink) Path(address string) string {
	return filepath.Join(s.dir, address+".json")
}

func (s *DirSink) Save(rec Record) (bool, error) {
	kp, err := rec.Keypair()
	if err != nil {
		return false, err
	}
	data, err := json.Marshal(kp)
	if err != nil {
		return false, fmt.Errorf("encoding keypair: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}

	path := s.Path(rec.Address)
	existing, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Other writers format the array differently; compare key material.
		var stored keypair.Keypair
		if json.Unmarshal(existing, &stored) == nil && stored == kp {
			return false, nil
		}
		return false, fmt.Errorf("%w: %s", ErrConflict, path)
	case !errors.Is(err, fs.ErrNotExist):
		return false, fmt.Errorf("storage: reading %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+rec.Address+".*.tmp")
	if err != nil {
		return false, fmt.Errorf("storage: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, fmt.Errorf("storage: writing %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return false, fmt.Errorf("storage: syncing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("storage: closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return false, fmt.Errorf("storage: renaming to %s: %w", path, err)
	}
	return true, nil
}

func (s *DirSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// LoadKeypair reads a keypair file written by DirSink (or by the Solana CLI)
// and re-derives its public key.
func LoadKeypair(path string) (keypair.Keypair, error) {
	var kp keypair.Keypair
	data, err := os.ReadFile(path)
	if err != nil {
		return kp, fmt.Errorf("storage: reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &kp); err != nil {
		return kp, fmt.Errorf("storage: decoding %s: %w", path, err)
	}
	return kp, nil
}
