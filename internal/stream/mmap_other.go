//go:build !unix

package stream

import "github.com/juju/errors"

// mmapFile is not supported on non-Unix platforms; Open falls back to
// reading the file into memory.
func mmapFile(fd uintptr, size int) ([]byte, error) {
	return nil, errors.NotSupportedf("memory mapping on this platform")
}

func munmapFile(data []byte) error {
	return nil
}
