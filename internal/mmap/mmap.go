package mmap

import (
	"errors"
	"os"
	"sync/atomic"
)

// File is a read-only view of a file's contents.
type File struct {
	data   []byte
	f      *os.File
	closed atomic.Bool
}

// Open maps the file at path into memory as read-only.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	size := fi.Size()
	if size < 0 {
		_ = f.Close()
		return nil, errors.New("mmap: file size is negative")
	}
	if size == 0 {
		return &File{f: f}, nil
	}

	data, err := mapFile(f, int(size))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &File{data: data, f: f}, nil
}

// Bytes returns the mapped contents. The slice is invalid after Close.
func (m *File) Bytes() []byte {
	return m.data
}

// Close unmaps the memory and closes the underlying file. It is idempotent.
func (m *File) Close() error {
	if m == nil || !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if m.data != nil {
		err = unmapFile(m.data)
		m.data = nil
	}
	if closeErr := m.f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
