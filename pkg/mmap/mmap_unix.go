//go:build linux || darwin

package mmap

import "golang.org/x/sys/unix"

func mapRO(fd int, size int) ([]byte, error) {
	return unix.Mmap(fd, 0, size, unix.PROT_READ, unix.MAP_SHARED)
}

func unmap(b []byte) error {
	return unix.Munmap(b)
}

func adviseSequential(b []byte) {
	_ = unix.Madvise(b, unix.MADV_SEQUENTIAL)
}

func adviseWillNeed(b []byte) {
	_ = unix.Madvise(b, unix.MADV_WILLNEED)
}
