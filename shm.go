// Copyright (c) 2025 Mohamed Yasser
//
// Licensed under the MIT License.

package nabd

import (
	"strings"

	"golang.org/x/sys/unix"
)

// shmPath maps a POSIX-style shared-memory name ("/orders") onto a backing
// file under /dev/shm, the same convention the original C library relies
// on for shm_open — on Linux shm_open is itself a thin wrapper over
// open(2) against a tmpfs mount at /dev/shm.
func shmPath(name string) string {
	return "/dev/shm/" + strings.TrimPrefix(name, "/")
}

// mapping holds a page-granular memory mapping plus the descriptor it came
// from, so Close can unmap and close in the right order.
type mapping struct {
	fd   int
	data []byte
}

// openCreate creates a new segment, or falls back to opening an existing
// one on EEXIST (spec §6: Create "requests exclusive creation but falls
// back to attach if the segment already exists").
func openCreate(name string) (fd int, created bool, err error) {
	path := shmPath(name)
	fd, err = unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, 0666)
	if err == nil {
		return fd, true, nil
	}
	if err == unix.EEXIST {
		fd, err = unix.Open(path, unix.O_RDWR, 0666)
		if err != nil {
			return -1, false, err
		}
		return fd, false, nil
	}
	return -1, false, err
}

// openAttach opens an existing segment for read-write attach.
func openAttach(name string) (int, error) {
	return unix.Open(shmPath(name), unix.O_RDWR, 0666)
}

// openReadOnly opens an existing segment for diagnostic inspection only.
func openReadOnly(name string) (int, error) {
	return unix.Open(shmPath(name), unix.O_RDONLY, 0)
}

// mapFull truncates fd to size and maps it read-write in its entirety.
func mapFull(fd int, size uint64) ([]byte, error) {
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		return nil, err
	}
	return unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

// mapExisting maps an already-sized fd without truncating it: read-write
// when writable is set, read-only otherwise.
func mapExisting(fd int, size uint64, writable bool) ([]byte, error) {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	return unix.Mmap(fd, 0, int(size), prot, unix.MAP_SHARED)
}

func unmap(data []byte) error {
	if data == nil {
		return nil
	}
	return unix.Munmap(data)
}

func closeRaw(fd int) error {
	return unix.Close(fd)
}

// unlinkSegment removes the named segment from the filesystem namespace.
// Existing attachers keep their mapping until they close it; the backing
// tmpfs inode is reclaimed once the last one detaches, exactly like
// POSIX shm_unlink.
func unlinkSegment(name string) error {
	return unix.Unlink(shmPath(name))
}

// statSize returns the current on-disk size of an open segment fd.
func statSize(fd int) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return 0, err
	}
	return uint64(st.Size), nil
}
