// Package lmserr defines the closed set of error kinds produced by the
// rangefinder session core and the drivers beneath it.
//
// Every failure surfaced by the dispatcher, the registry or a driver carries
// exactly one Kind. Callers branch on the kind rather than on concrete error
// types:
//
//	if errors.Is(err, lmserr.DriverConfigError) { ... }
//	switch lmserr.KindOf(err) { ... }
package lmserr

import (
	"errors"
	"strings"
)

// Kind classifies an error.
type Kind int

const (
	// Unknown is returned by KindOf for errors that carry no kind.
	Unknown Kind = iota
	// UsageError is a wrong argument count or type.
	UsageError
	// UnknownCommand is a command token the dispatcher does not recognise.
	UnknownCommand
	// DeviceNotFound is an explicit path with no session behind it.
	DeviceNotFound
	// AmbiguousDevice is an omitted path while several sessions are live.
	AmbiguousDevice
	// NoDeviceInitialized is an omitted path while no session is live.
	NoDeviceInitialized
	// NotInitialized is a session that exists but is not initialized.
	NotInitialized
	// AlreadyInitialized is reported as a warning ahead of re-initialization.
	AlreadyInitialized
	// InvalidBaudRate is a rate outside 9600, 19200, 38400 and 500000.
	InvalidBaudRate
	// InvalidScanAngle is a field of view other than 100 or 180 degrees.
	InvalidScanAngle
	// InvalidScanResolution is a step other than 0.25, 0.50 or 1.00 degrees.
	InvalidScanResolution
	// UnsupportedOperation is a variant change on a fast-family device.
	UnsupportedOperation
	// RegistryFull means the session cap has been reached.
	RegistryFull
	// InitializationFailed is a non-I/O failure while initializing a device.
	InitializationFailed
	// DriverIOError is a transport failure; the device state is unknown.
	DriverIOError
	// DriverConfigError is a setting the device rejected and left unapplied.
	DriverConfigError
	// DriverTimeoutError is a device that did not answer in time.
	DriverTimeoutError
)

var kindNames = map[Kind]string{
	Unknown:               "unknown error",
	UsageError:            "usage error",
	UnknownCommand:        "unknown command",
	DeviceNotFound:        "device not found",
	AmbiguousDevice:       "ambiguous device",
	NoDeviceInitialized:   "no device initialized",
	NotInitialized:        "device not initialized",
	AlreadyInitialized:    "device already initialized",
	InvalidBaudRate:       "invalid baud rate",
	InvalidScanAngle:      "invalid scan angle",
	InvalidScanResolution: "invalid scan resolution",
	UnsupportedOperation:  "unsupported operation",
	RegistryFull:          "registry full",
	InitializationFailed:  "initialization failed",
	DriverIOError:         "driver I/O error",
	DriverConfigError:     "driver config error",
	DriverTimeoutError:    "driver timeout",
}

// String returns the human readable name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[Unknown]
}

// Error lets a Kind be used directly as an errors.Is target.
func (k Kind) Error() string { return k.String() }

// Error is the concrete error carried through the core.
type Error struct {
	Kind Kind
	// Op is the command or driver operation that failed, e.g. "grab".
	Op string
	// Path is the device path involved, if any.
	Path string
	// Msg is an optional user-facing detail.
	Msg string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("lms")
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	b.WriteString(": ")
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the Kind of e.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New creates an Error of the given kind.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap tags err with a kind. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithPath returns a copy of e naming the device path.
func (e *Error) WithPath(path string) *Error {
	c := *e
	c.Path = path
	return &c
}

// KindOf returns the kind carried by err, or Unknown.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return Unknown
}

// IsDriverFault reports whether err is an I/O or timeout failure reported by
// a driver, i.e. one that leaves the device in an unknown state.
func IsDriverFault(err error) bool {
	switch KindOf(err) {
	case DriverIOError, DriverTimeoutError:
		return true
	}
	return false
}
