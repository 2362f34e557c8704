// Package mmap provides read-only memory-mapped file access.
//
//	m, err := mmap.Open("snapshots/0000000003-ab12.vfs")
//	if err != nil { ... }
//	defer m.Close()
//	data := m.Bytes()
//
// On Unix the file is mapped with mmap(2). Other platforms fall back to reading the
// file into memory; the API is identical.
package mmap
