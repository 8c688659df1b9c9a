package registry

import (
	"github.com/google/uuid"

	"github.com/banshee-data/lmsctl/internal/driver"
	"github.com/banshee-data/lmsctl/internal/lmserr"
	"github.com/banshee-data/lmsctl/internal/monitoring"
	"github.com/banshee-data/lmsctl/internal/scan"
)

// State is the lifecycle position of a session.
type State int

const (
	// Constructed sessions hold a driver handle that is not initialized.
	Constructed State = iota
	// Ready sessions are initialized and can scan.
	Ready
	// Configuring is held only while a variant change is in flight.
	Configuring
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Configuring:
		return "configuring"
	}
	return "constructed"
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// session binds one device path to its exclusively owned driver handle and
// the device descriptors read from it.
type session struct {
	id   string
	path string
	drv  driver.Driver

	family driver.Family
	units  driver.MeasuringUnits
	mode   driver.MeasuringMode

	// Active variant in degrees.
	fov float64
	res float64

	configuring bool
}

func newSession(path string, drv driver.Driver) *session {
	return &session{
		id:   uuid.NewString(),
		path: path,
		drv:  drv,
	}
}

// initialized asks the driver rather than caching, so a device that dropped
// out from under the session is seen as uninitialized.
func (s *session) initialized() bool {
	return s.drv.IsInitialized()
}

func (s *session) state() State {
	switch {
	case s.configuring:
		return Configuring
	case s.initialized():
		return Ready
	}
	return Constructed
}

// initialize brings the device up and reads its descriptors.
func (s *session) initialize(baud driver.Baud) error {
	if err := s.drv.Initialize(baud); err != nil {
		return err
	}

	s.family = driver.Classic
	if s.drv.IsFast() {
		s.family = driver.Fast
	}

	var err error
	if s.units, err = s.drv.MeasuringUnits(); err != nil {
		return err
	}
	if s.mode, err = s.drv.MeasuringMode(); err != nil {
		return err
	}
	if s.fov, s.res, err = s.drv.Variant(); err != nil {
		return err
	}
	return nil
}

// setVariant changes the field of view and resolution of a classic device.
// Only a successful driver call updates the session.
func (s *session) setVariant(angle driver.ScanAngle, res driver.ScanResolution) error {
	if s.family == driver.Fast {
		return &lmserr.Error{Kind: lmserr.UnsupportedOperation, Op: "variant", Path: s.path, Msg: "fast devices have a fixed variant"}
	}

	s.configuring = true
	defer func() { s.configuring = false }()

	monitoring.Logf("Setting variant on %s to %d/%.2f...", s.path, int(angle), res.Degrees())
	if err := s.drv.SetVariant(angle, res); err != nil {
		return err
	}
	s.fov = angle.Degrees()
	s.res = res.Degrees()
	monitoring.Logf("Variant set on %s", s.path)
	return nil
}

// acquire takes one scan and returns it as a record. The mode is re-read so
// a device switched between range and reflectivity is reported correctly.
func (s *session) acquire() (scan.Record, error) {
	var primary, secondary []uint
	var err error
	if s.family == driver.Fast {
		primary, secondary, err = s.drv.ScanRangeAndReflectivity()
	} else {
		primary, err = s.drv.Scan()
	}
	if err != nil {
		return scan.Record{}, err
	}

	mode, err := s.drv.MeasuringMode()
	if err != nil {
		return scan.Record{}, err
	}
	s.mode = mode

	return scan.Marshal(primary, secondary, s.family, s.mode, s.res, s.fov), nil
}

// info returns the device status block followed by its software version.
func (s *session) info() (string, string, error) {
	status, err := s.drv.Status()
	if err != nil {
		return "", "", err
	}
	version, err := s.drv.SoftwareVersion()
	if err != nil {
		return "", "", err
	}
	return status, version, nil
}

func (s *session) descriptor() Descriptor {
	return Descriptor{
		Path:   s.path,
		Family: s.family,
		Units:  s.units,
		Mode:   s.mode,
	}
}

func (s *session) snapshot() Snapshot {
	return Snapshot{
		ID:         s.id,
		Descriptor: s.descriptor(),
		State:      s.state(),
		FOV:        s.fov,
		Resolution: s.res,
	}
}
