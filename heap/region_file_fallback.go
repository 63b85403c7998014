//go:build !unix

package heap

import (
	"fmt"
	"math"
	"os"
)

// FileProvider keeps the arena in memory and writes it out on Sync when mmap
// is not available.
type FileProvider struct {
	f    *os.File
	data []byte
}

// NewFileProvider creates (or truncates) the file at path and returns a
// provider over it.
func NewFileProvider(path string) (*FileProvider, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, err
	}
	return &FileProvider{f: f}, nil
}

// Extend grows the arena by n bytes.
func (p *FileProvider) Extend(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("heap: negative extension (%d)", n)
	}
	if int64(len(p.data))+int64(n) > math.MaxUint32 {
		return nil, fmt.Errorf("heap: file arena too large")
	}
	p.data = append(p.data, make([]byte, n)...)
	return p.data, nil
}

// Sync rewrites the backing file from the in-memory arena.
func (p *FileProvider) Sync() error {
	if _, err := p.f.WriteAt(p.data, 0); err != nil {
		return err
	}
	return p.f.Sync()
}

// Close syncs and closes the backing file.
func (p *FileProvider) Close() error {
	if err := p.Sync(); err != nil {
		p.f.Close()
		return err
	}
	return p.f.Close()
}
