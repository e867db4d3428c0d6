// Package mmap provides read-only memory-mapped file access for zero-copy
// input loading.
package mmap

import (
	"fmt"
	"os"
	"sync"
)

// Reader exposes a file's contents as a memory-mapped byte slice. Slices
// returned by Data are valid only until Close.
type Reader struct {
	mu       sync.RWMutex
	file     *os.File
	data     []byte
	size     int64
	pageSize int
}

// Open memory-maps the file at path for reading and advises the kernel that
// access will be sequential.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.Size() == 0 {
		f.Close()
		return nil, fmt.Errorf("mmap %s: file is empty", path)
	}

	data, err := mapRO(int(f.Fd()), int(st.Size()))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	adviseSequential(data)

	return &Reader{
		file:     f,
		data:     data,
		size:     st.Size(),
		pageSize: os.Getpagesize(),
	}, nil
}

// Data returns the entire mapped contents.
func (r *Reader) Data() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data
}

// Size returns the mapped file size in bytes.
func (r *Reader) Size() int64 {
	return r.size
}

// Prefetch advises the kernel that the byte range will be needed soon.
// Parse workers call this for their chunk before scanning it.
func (r *Reader) Prefetch(start, end int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.data == nil {
		return
	}

	ps := int64(r.pageSize)
	lo := start / ps * ps
	hi := (end + ps - 1) / ps * ps
	if hi > r.size {
		hi = r.size
	}
	if hi <= lo {
		return
	}
	adviseWillNeed(r.data[lo:hi])
}

// Close unmaps and closes the file. Slices derived from Data become invalid.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if r.data != nil {
		err = unmap(r.data)
		r.data = nil
	}
	if r.file != nil {
		if cerr := r.file.Close(); cerr != nil && err == nil {
			err = cerr
		}
		r.file = nil
	}
	return err
}
