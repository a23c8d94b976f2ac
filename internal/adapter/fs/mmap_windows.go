//go:build windows

package fs

import (
	"errors"
	"os"
)

var errMmapUnsupported = errors.New("mmap read mode is not supported on windows")

func mmapFile(*os.File, int64) ([]byte, error) {
	return nil, errMmapUnsupported
}

func munmapFile([]byte) error {
	return nil
}
