//go:build unix

package stream

import "syscall"

// mmapFile maps size bytes of fd read-only. The fd can be closed after
// mapping.
func mmapFile(fd uintptr, size int) ([]byte, error) {
	return syscall.Mmap(int(fd), 0, size, syscall.PROT_READ, syscall.MAP_PRIVATE)
}

func munmapFile(data []byte) error {
	return syscall.Munmap(data)
}
