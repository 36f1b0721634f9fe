//go:build !linux

package gpio

// RealReader is not available on non-Linux platforms.
type RealReader struct{}

// NewRealReader returns an error on non-Linux platforms.
func NewRealReader(opts Options) (*RealReader, error) {
	return nil, errNotSupported
}

// Read is not implemented on non-Linux platforms.
func (r *RealReader) Read() (uint8, error) {
	return 0, errNotSupported
}

// Close is not implemented on non-Linux platforms.
func (r *RealReader) Close() error {
	return nil
}
