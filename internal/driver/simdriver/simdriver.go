// Package simdriver provides an in-memory LMS 2xx used for dev mode and
// tests. Failures can be injected per operation and every call is counted so
// tests can assert on how the session core drove the device.
package simdriver

import (
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/lmsctl/internal/driver"
	"github.com/banshee-data/lmsctl/internal/lmserr"
)

// ErrSimulated is the default cause attached to injected failures.
var ErrSimulated = errors.New("simulated failure")

// Device implements driver.Driver with configurable behaviour.
type Device struct {
	mu sync.Mutex

	path        string
	initialized bool
	baud        driver.Baud

	// Fast selects the fast family (range and reflectivity, fixed variant).
	Fast bool
	// Units and Mode are reported after initialization.
	Units driver.MeasuringUnits
	Mode  driver.MeasuringMode

	// FOV and Resolution hold the active variant in degrees.
	FOV        float64
	Resolution float64

	// RejectVariants makes SetVariant fail with a config error, like models
	// that do not support variant switching.
	RejectVariants bool

	// RangeBase is added to the sample index to build range values.
	RangeBase uint
	// ReflectBase is added to the sample index to build reflectivity values.
	ReflectBase uint

	// StatusText and VersionText are returned by Status and SoftwareVersion.
	StatusText  string
	VersionText string

	// Injected errors. Each one is returned by the next call of the
	// matching operation and then cleared.
	InitializeError   error
	UninitializeError error
	SetVariantError   error
	ScanError         error
	ModeError         error
	StatusError       error
	CloseError        error

	// Call counters.
	InitializeCalls   int
	UninitializeCalls int
	SetVariantCalls   int
	ScanCalls         int
	CloseCalls        int

	// Closed indicates whether Close was called.
	Closed bool
}

// NewDevice returns a classic-family device reporting millimetre ranges on a
// 180/0.5 variant.
func NewDevice(path string) *Device {
	return &Device{
		path:        path,
		Units:       driver.UnitsMillimeters,
		Mode:        driver.ModeRange,
		FOV:         180,
		Resolution:  0.5,
		RangeBase:   1000,
		ReflectBase: 10,
		StatusText:  fmt.Sprintf("\t======== Sick LMS Status ========\n\tDevice path: %s\n\tOperating mode: monitor\n", path),
		VersionText: "\t======== Sick Software Version ========\n\tSystem software: sim-1.0\n",
	}
}

// NewFastDevice returns a fast-family device on its fixed 180/0.5 variant.
func NewFastDevice(path string) *Device {
	d := NewDevice(path)
	d.Fast = true
	d.Mode = driver.ModeRangeAndReflectivity
	return d
}

func takeErr(slot *error) error {
	err := *slot
	*slot = nil
	return err
}

func (d *Device) DevicePath() string { return d.path }

func (d *Device) Initialize(baud driver.Baud) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.InitializeCalls++
	if d.Closed {
		return lmserr.Wrap(lmserr.DriverIOError, "initialize", errors.New("device handle released"))
	}
	if err := takeErr(&d.InitializeError); err != nil {
		return err
	}
	if driver.BaudFromInt(int(baud)) == driver.BaudUnknown {
		return lmserr.Wrap(lmserr.DriverConfigError, "initialize", fmt.Errorf("unsupported baud %d", int(baud)))
	}
	d.baud = baud
	d.initialized = true
	return nil
}

func (d *Device) Uninitialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.UninitializeCalls++
	d.initialized = false
	return takeErr(&d.UninitializeError)
}

// IsInitialized reports the device's own view of its state.
func (d *Device) IsInitialized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initialized
}

// PowerCycle drops the initialized state without the session core's
// involvement, as a device reset would.
func (d *Device) PowerCycle() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initialized = false
}

// Baud returns the rate the device was last initialized at.
func (d *Device) Baud() driver.Baud {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.baud
}

func (d *Device) IsFast() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Fast
}

func (d *Device) MeasuringUnits() (driver.MeasuringUnits, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Units, nil
}

func (d *Device) MeasuringMode() (driver.MeasuringMode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := takeErr(&d.ModeError); err != nil {
		return driver.ModeUnknown, err
	}
	return d.Mode, nil
}

func (d *Device) Variant() (float64, float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.FOV, d.Resolution, nil
}

func (d *Device) SetVariant(angle driver.ScanAngle, res driver.ScanResolution) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.SetVariantCalls++
	if err := takeErr(&d.SetVariantError); err != nil {
		return err
	}
	if d.Fast || d.RejectVariants {
		return lmserr.Wrap(lmserr.DriverConfigError, "set variant", fmt.Errorf("variant %d/%.2f not supported", int(angle), res.Degrees()))
	}
	d.FOV = angle.Degrees()
	d.Resolution = res.Degrees()
	return nil
}

// sampleCount mirrors the device: one sample per step across the field of
// view, both extremes included.
func (d *Device) sampleCount() int {
	if d.Resolution <= 0 {
		return 0
	}
	n := int(d.FOV/d.Resolution) + 1
	if n > driver.MaxMeasurements {
		n = driver.MaxMeasurements
	}
	return n
}

func (d *Device) scanLocked() error {
	d.ScanCalls++
	if err := takeErr(&d.ScanError); err != nil {
		return err
	}
	if !d.initialized {
		return lmserr.Wrap(lmserr.DriverIOError, "scan", errors.New("device not streaming"))
	}
	return nil
}

func (d *Device) Scan() ([]uint, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.scanLocked(); err != nil {
		return nil, err
	}
	base := d.RangeBase
	if d.Mode == driver.ModeReflectivity {
		base = d.ReflectBase
	}
	values := make([]uint, d.sampleCount())
	for i := range values {
		values[i] = base + uint(i)
	}
	return values, nil
}

func (d *Device) ScanRangeAndReflectivity() ([]uint, []uint, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.scanLocked(); err != nil {
		return nil, nil, err
	}
	n := d.sampleCount()
	ranges := make([]uint, n)
	reflect := make([]uint, n)
	for i := 0; i < n; i++ {
		ranges[i] = d.RangeBase + uint(i)
		reflect[i] = d.ReflectBase + uint(i%8)
	}
	return ranges, reflect, nil
}

func (d *Device) Status() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := takeErr(&d.StatusError); err != nil {
		return "", err
	}
	return d.StatusText, nil
}

func (d *Device) SoftwareVersion() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.VersionText, nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.CloseCalls++
	d.Closed = true
	return takeErr(&d.CloseError)
}

// Bench hands out simulated devices through a driver.Factory and remembers
// every device it created.
type Bench struct {
	mu sync.Mutex

	// Template builds the device for a path. NewDevice is used when nil.
	Template func(path string) *Device

	// OpenError is returned by the factory if set.
	OpenError error

	created []*Device
	latest  map[string]*Device
}

// NewBench creates a Bench producing classic devices.
func NewBench() *Bench {
	return &Bench{latest: make(map[string]*Device)}
}

// Factory returns a driver.Factory backed by the bench.
func (b *Bench) Factory() driver.Factory {
	return func(path string) (driver.Driver, error) {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.OpenError != nil {
			return nil, b.OpenError
		}
		build := b.Template
		if build == nil {
			build = NewDevice
		}
		d := build(path)
		d.path = path
		b.created = append(b.created, d)
		b.latest[path] = d
		return d, nil
	}
}

// Device returns the most recently created device for path, or nil.
func (b *Bench) Device(path string) *Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest[path]
}

// Created returns every device the bench has created, oldest first.
func (b *Bench) Created() []*Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Device, len(b.created))
	copy(out, b.created)
	return out
}
