//go:build unix

package heap

import (
	"fmt"
	"math"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// FileProvider backs the arena with a memory-mapped file. Growth truncates
// the file to its new length and remaps; the mapping keeps pages alive until
// Close. There is no reload guarantee: the file is a backing store, not an
// interchange format.
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

// Extend grows the backing file by n bytes and remaps it.
func (p *FileProvider) Extend(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("heap: negative extension (%d)", n)
	}
	newSize := int64(len(p.data)) + int64(n)
	if newSize > math.MaxUint32 {
		return nil, fmt.Errorf("heap: file arena too large (%d bytes)", newSize)
	}
	if err := unix.Ftruncate(int(p.f.Fd()), newSize); err != nil {
		return nil, err
	}
	if p.data != nil {
		if err := syscall.Munmap(p.data); err != nil {
			return nil, err
		}
		p.data = nil
	}
	data, err := syscall.Mmap(int(p.f.Fd()), 0, int(newSize),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	p.data = data
	return p.data, nil
}

// Sync flushes the mapped arena to the backing file.
func (p *FileProvider) Sync() error {
	if p.data == nil {
		return nil
	}
	return unix.Msync(p.data, unix.MS_SYNC)
}

// Close unmaps the arena and closes the backing file.
func (p *FileProvider) Close() error {
	if p.data != nil {
		if err := syscall.Munmap(p.data); err != nil {
			return err
		}
		p.data = nil
	}
	return p.f.Close()
}
