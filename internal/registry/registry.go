// Package registry owns the set of attached rangefinder sessions.
//
// A session is inserted before its device is initialized and stays in the
// registry until it is removed, either on request, by a forced cleanup after
// a driver failure, or by Shutdown. At most Capacity sessions exist at once.
package registry

import (
	"fmt"
	"sort"

	"github.com/banshee-data/lmsctl/internal/driver"
	"github.com/banshee-data/lmsctl/internal/lmserr"
	"github.com/banshee-data/lmsctl/internal/monitoring"
	"github.com/banshee-data/lmsctl/internal/scan"
)

// Capacity is the hard cap on concurrently attached devices.
const Capacity = 4

// WarnFunc receives user-facing warnings.
type WarnFunc func(format string, args ...any)

// Descriptor is returned by a successful init.
type Descriptor struct {
	Path   string                `json:"path"`
	Family driver.Family         `json:"family"`
	Units  driver.MeasuringUnits `json:"units"`
	Mode   driver.MeasuringMode  `json:"mode"`
}

// Snapshot is a point-in-time view of one session.
type Snapshot struct {
	Descriptor
	ID         string  `json:"id"`
	State      State   `json:"state"`
	FOV        float64 `json:"fov"`
	Resolution float64 `json:"res"`
}

// Registry maps device paths to sessions. It is not safe for concurrent use;
// callers serialize access.
type Registry struct {
	factory  driver.Factory
	warnf    WarnFunc
	sessions map[string]*session
}

// New creates an empty registry. warnf may be nil, in which case warnings go
// to monitoring.Logf.
func New(factory driver.Factory, warnf WarnFunc) *Registry {
	if warnf == nil {
		warnf = func(format string, args ...any) { monitoring.Logf("warning: "+format, args...) }
	}
	return &Registry{
		factory:  factory,
		warnf:    warnf,
		sessions: make(map[string]*session),
	}
}

// Len returns the number of sessions.
func (r *Registry) Len() int { return len(r.sessions) }

// Contains reports whether a session exists for path.
func (r *Registry) Contains(path string) bool {
	_, ok := r.sessions[path]
	return ok
}

// Paths returns the registered device paths in sorted order.
func (r *Registry) Paths() []string {
	paths := make([]string, 0, len(r.sessions))
	for p := range r.sessions {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// ResolveDefault returns the only registered path.
func (r *Registry) ResolveDefault() (string, error) {
	switch len(r.sessions) {
	case 0:
		return "", lmserr.New(lmserr.NoDeviceInitialized, "", "initialize a device first")
	case 1:
		for p := range r.sessions {
			return p, nil
		}
	}
	return "", lmserr.New(lmserr.AmbiguousDevice, "", fmt.Sprintf("%d devices initialized, name one explicitly", len(r.sessions)))
}

// Create constructs and initializes a session for path. An existing session
// for the same path is torn down first. On failure the new entry is removed
// again so the registry is left without a session for path.
func (r *Registry) Create(path string, baud driver.Baud) (Descriptor, error) {
	if len(r.sessions) >= Capacity {
		return Descriptor{}, &lmserr.Error{Kind: lmserr.RegistryFull, Op: "init", Path: path, Msg: fmt.Sprintf("at most %d devices can be attached", Capacity)}
	}

	if s, ok := r.sessions[path]; ok {
		if s.initialized() {
			r.warnf("%v; clearing previous instance and re-initializing",
				&lmserr.Error{Kind: lmserr.AlreadyInitialized, Path: path})
		}
		r.cleanup(s)
	}

	drv, err := r.factory(path)
	if err != nil {
		return Descriptor{}, &lmserr.Error{Kind: lmserr.InitializationFailed, Op: "init", Path: path, Msg: "could not allocate driver", Err: err}
	}
	s := newSession(path, drv)
	r.sessions[path] = s

	monitoring.Logf("Initializing device @ %s (session %s)...", path, s.id)
	if err := s.initialize(baud); err != nil {
		r.cleanup(s)
		if lmserr.IsDriverFault(err) {
			return Descriptor{}, &lmserr.Error{Kind: lmserr.DriverIOError, Op: "init", Path: path, Msg: "an I/O error occurred, is the device path correct?", Err: err}
		}
		return Descriptor{}, &lmserr.Error{Kind: lmserr.InitializationFailed, Op: "init", Path: path, Err: err}
	}
	monitoring.Logf("Device initialized! (%s)", baud)
	return s.descriptor(), nil
}

// Remove tears down the session for path.
func (r *Registry) Remove(path string) error {
	s, ok := r.sessions[path]
	if !ok {
		return &lmserr.Error{Kind: lmserr.DeviceNotFound, Op: "clear", Path: path}
	}
	r.cleanup(s)
	return nil
}

// cleanup uninitializes an initialized device, releases its handle and
// erases the entry. Failures are reported as warnings and never stop the
// entry from being erased.
func (r *Registry) cleanup(s *session) {
	if s.initialized() {
		monitoring.Logf("Uninitializing device @ %s...", s.path)
		if err := s.drv.Uninitialize(); err != nil {
			r.warnf("uninitialize %s failed: %v (continuing to erase device anyway)", s.path, err)
		}
	}
	if err := s.drv.Close(); err != nil {
		monitoring.Logf("release %s: %v", s.path, err)
	}
	delete(r.sessions, s.path)
}

// Shutdown removes every session. It is safe to call more than once.
func (r *Registry) Shutdown() {
	for _, s := range r.sessions {
		r.cleanup(s)
	}
}

func (r *Registry) lookup(op, path string) (*session, error) {
	s, ok := r.sessions[path]
	if !ok {
		return nil, &lmserr.Error{Kind: lmserr.DeviceNotFound, Op: op, Path: path}
	}
	return s, nil
}

func (r *Registry) ready(op, path string) (*session, error) {
	s, err := r.lookup(op, path)
	if err != nil {
		return nil, err
	}
	if !s.initialized() {
		return nil, &lmserr.Error{Kind: lmserr.NotInitialized, Op: op, Path: path}
	}
	return s, nil
}

// Initialized reports whether the session for path is initialized.
func (r *Registry) Initialized(path string) (bool, error) {
	s, err := r.lookup("", path)
	if err != nil {
		return false, err
	}
	return s.initialized(), nil
}

// Snapshot returns the current view of the session for path.
func (r *Registry) Snapshot(path string) (Snapshot, error) {
	s, err := r.lookup("", path)
	if err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(), nil
}

// Snapshots returns every session ordered by path.
func (r *Registry) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(r.sessions))
	for _, p := range r.Paths() {
		out = append(out, r.sessions[p].snapshot())
	}
	return out
}

// SetVariant changes the variant of an initialized classic device. The
// session is left untouched on failure; deciding whether to tear it down is
// up to the caller.
func (r *Registry) SetVariant(path string, angle driver.ScanAngle, res driver.ScanResolution) error {
	s, err := r.ready("variant", path)
	if err != nil {
		return err
	}
	return s.setVariant(angle, res)
}

// Acquire takes one scan from an initialized device.
func (r *Registry) Acquire(path string) (scan.Record, error) {
	s, err := r.ready("grab", path)
	if err != nil {
		return scan.Record{}, err
	}
	return s.acquire()
}

// Info returns the status and software version text of an initialized
// device.
func (r *Registry) Info(path string) (status, version string, err error) {
	s, err := r.ready("info", path)
	if err != nil {
		return "", "", err
	}
	return s.info()
}
