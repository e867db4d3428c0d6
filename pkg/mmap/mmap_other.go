//go:build !linux && !darwin

package mmap

import "errors"

var errUnsupported = errors.New("mmap is not supported on this platform")

func mapRO(fd int, size int) ([]byte, error) {
	return nil, errUnsupported
}

func unmap(b []byte) error { return nil }

func adviseSequential(b []byte) {}

func adviseWillNeed(b []byte) {}
