// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memory

import "errors"

// ErrOutOfMemory is returned when the Region Provider cannot satisfy a
// request for a fresh chunk (the OS refused the mapping).
var ErrOutOfMemory = errors.New("memory: out of memory")

// mapChunk and unmapChunk are implemented per-OS in region_unix.go and
// region_windows.go. mapChunk must return a page-aligned, zeroed,
// read/write region of exactly size bytes.
