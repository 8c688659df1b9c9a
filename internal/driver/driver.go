// Package driver describes the call contract of a SICK LMS 2xx driver as seen
// by the session core. Framing, checksums, baud negotiation and retries belong
// to the implementations (linkdriver, simdriver) and never leak through this
// interface.
//
// Implementations report failures tagged with lmserr.DriverIOError,
// lmserr.DriverConfigError or lmserr.DriverTimeoutError so callers can decide
// whether a device must be torn down.
package driver

import "fmt"

// MaxMeasurements is the largest number of samples a single scan can hold.
const MaxMeasurements = 721

// Baud is one of the serial rates the LMS 2xx family supports.
type Baud int

const (
	BaudUnknown Baud = 0
	Baud9600    Baud = 9600
	Baud19200   Baud = 19200
	Baud38400   Baud = 38400
	Baud500K    Baud = 500000
)

// BaudFromInt maps a numeric rate onto the closed set, or BaudUnknown.
func BaudFromInt(v int) Baud {
	switch Baud(v) {
	case Baud9600, Baud19200, Baud38400, Baud500K:
		return Baud(v)
	}
	return BaudUnknown
}

func (b Baud) String() string {
	if b == BaudUnknown {
		return "unknown baud"
	}
	return fmt.Sprintf("%dbps", int(b))
}

// ScanAngle is the field of view in degrees.
type ScanAngle int

const (
	ScanAngleUnknown ScanAngle = 0
	ScanAngle100     ScanAngle = 100
	ScanAngle180     ScanAngle = 180
)

// ScanAngleFromInt maps degrees onto the closed set, or ScanAngleUnknown.
func ScanAngleFromInt(v int) ScanAngle {
	switch ScanAngle(v) {
	case ScanAngle100, ScanAngle180:
		return ScanAngle(v)
	}
	return ScanAngleUnknown
}

// Degrees returns the field of view as a float.
func (a ScanAngle) Degrees() float64 { return float64(a) }

// ScanResolution is the angular step between samples, stored in hundredths
// of a degree.
type ScanResolution int

const (
	ScanResolutionUnknown ScanResolution = 0
	ScanResolution25      ScanResolution = 25
	ScanResolution50      ScanResolution = 50
	ScanResolution100     ScanResolution = 100
)

// ScanResolutionFromFloat maps degrees per sample onto the closed set. Only
// an exact match is accepted.
func ScanResolutionFromFloat(v float64) ScanResolution {
	switch v {
	case 0.25:
		return ScanResolution25
	case 0.5:
		return ScanResolution50
	case 1.0:
		return ScanResolution100
	}
	return ScanResolutionUnknown
}

// Degrees returns the angular step in degrees.
func (r ScanResolution) Degrees() float64 { return float64(r) / 100 }

// Family is the device capability class.
type Family int

const (
	// Classic devices stream either range or reflectivity and can change
	// their variant.
	Classic Family = iota
	// Fast devices stream range and reflectivity together on a fixed variant.
	Fast
)

func (f Family) String() string {
	if f == Fast {
		return "fast"
	}
	return "classic"
}

// MeasuringUnits is the unit range values are reported in.
type MeasuringUnits int

const (
	UnitsOther MeasuringUnits = iota
	UnitsMillimeters
)

func (u MeasuringUnits) String() string {
	if u == UnitsMillimeters {
		return "mm"
	}
	return "other"
}

// MeasuringMode is the quantity a device currently reports.
type MeasuringMode int

const (
	ModeUnknown MeasuringMode = iota
	ModeRange
	ModeReflectivity
	ModeRangeAndReflectivity
)

func (m MeasuringMode) String() string {
	switch m {
	case ModeRange:
		return "range"
	case ModeReflectivity:
		return "reflectivity"
	case ModeRangeAndReflectivity:
		return "range+reflectivity"
	}
	return "unknown"
}

// Driver is a handle on one physical device. A freshly constructed handle is
// allocated but not initialized; Initialize and Uninitialize are the fallible
// open/close pair and Close releases whatever the handle still holds.
type Driver interface {
	// DevicePath returns the path the handle was constructed with.
	DevicePath() string

	Initialize(baud Baud) error
	Uninitialize() error
	IsInitialized() bool

	// IsFast reports whether the device belongs to the fast family.
	IsFast() bool
	MeasuringUnits() (MeasuringUnits, error)
	MeasuringMode() (MeasuringMode, error)

	// Variant returns the active field of view and resolution in degrees.
	Variant() (fov, resolution float64, err error)
	SetVariant(angle ScanAngle, res ScanResolution) error

	// Scan returns one classic-family scan.
	Scan() ([]uint, error)
	// ScanRangeAndReflectivity returns one fast-family scan.
	ScanRangeAndReflectivity() (ranges, reflect []uint, err error)

	// Status and SoftwareVersion return formatted text blocks.
	Status() (string, error)
	SoftwareVersion() (string, error)

	// Close releases the handle. It is called exactly once.
	Close() error
}

// Factory allocates a driver handle for a device path without touching the
// device.
type Factory func(path string) (Driver, error)

// MarshalText encodes the family by name.
func (f Family) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *Family) UnmarshalText(b []byte) error {
	switch string(b) {
	case "classic":
		*f = Classic
	case "fast":
		*f = Fast
	default:
		return fmt.Errorf("unknown device family %q", b)
	}
	return nil
}

// MarshalText encodes the units by name.
func (u MeasuringUnits) MarshalText() ([]byte, error) { return []byte(u.String()), nil }

func (u *MeasuringUnits) UnmarshalText(b []byte) error {
	switch string(b) {
	case "mm":
		*u = UnitsMillimeters
	case "other":
		*u = UnitsOther
	default:
		return fmt.Errorf("unknown measuring units %q", b)
	}
	return nil
}

// MarshalText encodes the mode by name.
func (m MeasuringMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *MeasuringMode) UnmarshalText(b []byte) error {
	for _, mode := range []MeasuringMode{ModeUnknown, ModeRange, ModeReflectivity, ModeRangeAndReflectivity} {
		if mode.String() == string(b) {
			*m = mode
			return nil
		}
	}
	return fmt.Errorf("unknown measuring mode %q", b)
}
