//go:build unix

package arena

import (
	"golang.org/x/sys/unix"
)

// region is an anonymous private mapping. Pages are zero-filled by the kernel
// and committed lazily on first touch.
type region struct {
	data []byte
}

func reserve(size int) (*region, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return &region{data: data}, nil
}

func (r *region) bytes() []byte {
	return r.data
}

func (r *region) release() error {
	if r.data == nil {
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	return err
}
