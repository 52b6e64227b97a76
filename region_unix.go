// Copyright 2011 Evan Shaw. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE-MMAP-GO file.

// Modifications (c) 2017 The Memory Authors.

//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

package memory

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

var osPageSize = os.Getpagesize()

func mapChunk(size int) ([]byte, error) {
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, ErrOutOfMemory
	}

	if uintptr(unsafe.Pointer(&b[0]))&uintptr(osPageSize-1) != 0 {
		panic("memory: mmap returned a non-page-aligned region")
	}

	return b, nil
}

func unmapChunk(b []byte) error {
	return unix.Munmap(b)
}
