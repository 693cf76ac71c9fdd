// Package mmap maps files read-only into memory.
package mmap

import (
	"fmt"
	"os"
	"sync"
)

// File is a read-only memory mapping of a whole file.
type File struct {
	mu   sync.Mutex
	path string
	data []byte
}

// Open maps the file at path. An empty file yields an empty mapping.
func Open(path string) (*File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	// The mapping stays valid after the descriptor is closed.
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size == 0 {
		return &File{path: path}, nil
	}
	if int64(int(size)) != size {
		return nil, fmt.Errorf("file %s too large to map (%d bytes)", path, size)
	}

	data, err := mmapFile(file.Fd(), int(size))
	if err != nil {
		return nil, fmt.Errorf("failed to map %s: %w", path, err)
	}
	return &File{path: path, data: data}, nil
}

// Bytes returns the mapped contents. The slice is invalid after Close and
// must not be written to.
func (f *File) Bytes() []byte {
	return f.data
}

// Len returns the size of the mapping.
func (f *File) Len() int {
	return len(f.data)
}

// Close unmaps the file. It is safe to call more than once.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.data == nil {
		return nil
	}
	err := munmapFile(f.data)
	f.data = nil
	return err
}
