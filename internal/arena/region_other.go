//go:build !unix

package arena

// region falls back to a heap slice where anonymous mappings are unavailable.
type region struct {
	data []byte
}

func reserve(size int) (*region, error) {
	return &region{data: make([]byte, size)}, nil
}

func (r *region) bytes() []byte {
	return r.data
}

func (r *region) release() error {
	r.data = nil
	return nil
}
