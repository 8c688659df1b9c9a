// Package serialport opens and enumerates the serial links rangefinders are
// attached to.
package serialport

import (
	"io"
	"time"
)

// Porter is the subset of go.bug.st/serial's Port the link driver needs.
// Read returns 0, nil when the read timeout elapses without data.
type Porter interface {
	io.ReadWriteCloser
	// SetReadTimeout bounds each Read call.
	SetReadTimeout(timeout time.Duration) error
	// ResetInputBuffer discards unread input.
	ResetInputBuffer() error
}

// Factory opens serial ports.
type Factory interface {
	// Open opens the port at path with the given options.
	Open(path string, opts PortOptions) (Porter, error)
}

// OpenerFunc adapts a function to the Factory interface.
type OpenerFunc func(path string, opts PortOptions) (Porter, error)

// Open calls f.
func (f OpenerFunc) Open(path string, opts PortOptions) (Porter, error) {
	return f(path, opts)
}
