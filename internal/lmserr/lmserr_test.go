package lmserr

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{name: "kind only", err: &Error{Kind: RegistryFull}, want: "lms: registry full"},
		{name: "op and path", err: &Error{Kind: NotInitialized, Op: "grab", Path: "/dev/ttyUSB0"}, want: "lms grab: /dev/ttyUSB0: device not initialized"},
		{name: "message", err: New(InvalidBaudRate, "init", "use 9600, 19200, 38400 or 500000"), want: "lms init: invalid baud rate: use 9600, 19200, 38400 or 500000"},
		{name: "cause", err: &Error{Kind: DriverIOError, Op: "scan", Err: errors.New("short read")}, want: "lms scan: driver I/O error: short read"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: Unknown},
		{name: "plain", err: cause, want: Unknown},
		{name: "tagged", err: Wrap(DriverTimeoutError, "scan", cause), want: DriverTimeoutError},
		{name: "wrapped with fmt", err: fmt.Errorf("grab: %w", Wrap(DriverConfigError, "set variant", cause)), want: DriverConfigError},
		{name: "bare kind", err: UnknownCommand, want: UnknownCommand},
		{name: "outermost wins", err: &Error{Kind: InitializationFailed, Err: Wrap(DriverTimeoutError, "init", cause)}, want: InitializationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorsIs(t *testing.T) {
	cause := errors.New("no reply")
	err := fmt.Errorf("variant: %w", Wrap(DriverTimeoutError, "set variant", cause))

	if !errors.Is(err, DriverTimeoutError) {
		t.Error("errors.Is should match the tagged kind")
	}
	if errors.Is(err, DriverIOError) {
		t.Error("errors.Is matched the wrong kind")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the underlying cause")
	}
}

func TestWrap_Nil(t *testing.T) {
	if err := Wrap(DriverIOError, "scan", nil); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestWithPath(t *testing.T) {
	base := New(DeviceNotFound, "clear", "")
	withPath := base.WithPath("/dev/ttyS1")
	if base.Path != "" {
		t.Error("WithPath mutated the receiver")
	}
	if withPath.Path != "/dev/ttyS1" || withPath.Kind != DeviceNotFound {
		t.Errorf("WithPath = %+v", withPath)
	}
}

func TestIsDriverFault(t *testing.T) {
	for kind, want := range map[Kind]bool{
		DriverIOError:        true,
		DriverTimeoutError:   true,
		DriverConfigError:    false,
		InitializationFailed: false,
		Unknown:              false,
	} {
		if got := IsDriverFault(Wrap(kind, "op", errors.New("x"))); got != want {
			t.Errorf("IsDriverFault(%v) = %v, want %v", kind, got, want)
		}
	}
}

func TestKind_StringOutOfRange(t *testing.T) {
	if got := Kind(999).String(); got != "unknown error" {
		t.Errorf("String() = %q", got)
	}
}

func TestKind_EveryKindNamed(t *testing.T) {
	seen := make(map[string]Kind)
	for k := UsageError; k <= DriverTimeoutError; k++ {
		name := k.String()
		if name == kindNames[Unknown] {
			t.Errorf("kind %d has no name", int(k))
		}
		if prev, ok := seen[name]; ok {
			t.Errorf("kinds %d and %d share name %q", int(prev), int(k), name)
		}
		seen[name] = k
	}
}
