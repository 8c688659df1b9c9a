// Package linkdriver talks to a rangefinder sitting behind a line oriented
// serial link. Every request is one ASCII line and is answered by exactly one
// JSON line:
//
//	> INIT 38400
//	< {"ok":true,"fast":false,"units":"mm","mode":"range","fov":180,"res":0.5}
//	> SCAN
//	< {"ok":true,"range":[1032,1030,...]}
//	> VARIANT 100 0.25
//	< {"ok":false,"code":"rejected","error":"variant not supported"}
//
// A reply with code "rejected" is a configuration error, "timeout" a device
// side timeout. Any other failure, including no reply before the read
// deadline, leaves the link in an unknown state.
package linkdriver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/lmsctl/internal/driver"
	"github.com/banshee-data/lmsctl/internal/lmserr"
	"github.com/banshee-data/lmsctl/internal/serialport"
	"github.com/banshee-data/lmsctl/internal/timeutil"
)

const pollInterval = 10 * time.Millisecond

// maxLine bounds a single reply; a 721 sample fast scan fits comfortably.
const maxLine = 64 * 1024

var (
	errLinkClosed = errors.New("link not open")
	errNoReply    = errors.New("no reply before deadline")
)

// Options configure a link driver.
type Options struct {
	// Ports opens the serial port. serialport.System is used when nil.
	Ports serialport.Factory
	// Port carries framing settings; BaudRate is overridden on Initialize.
	Port serialport.PortOptions
	// ReplyTimeout bounds the wait for one reply line.
	ReplyTimeout time.Duration
	// Clock drives reply deadlines. timeutil.RealClock is used when nil.
	Clock timeutil.Clock
}

type reply struct {
	OK    bool   `json:"ok"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`

	Fast  bool                  `json:"fast,omitempty"`
	Units driver.MeasuringUnits `json:"units,omitempty"`
	Mode  driver.MeasuringMode  `json:"mode,omitempty"`
	FOV   float64               `json:"fov,omitempty"`
	Res   float64               `json:"res,omitempty"`

	Range   []uint `json:"range,omitempty"`
	Reflect []uint `json:"reflect,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Device is a driver.Driver over a serial link.
type Device struct {
	mu   sync.Mutex
	path string
	opts Options

	port    serialport.Porter
	pending []byte

	initialized bool
	fast        bool
	units       driver.MeasuringUnits
	mode        driver.MeasuringMode
	fov, res    float64
}

// New allocates a handle for path. The port is not opened until Initialize.
func New(path string, opts Options) *Device {
	if opts.Ports == nil {
		opts.Ports = serialport.System
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = serialport.DefaultReadTimeout
	}
	return &Device{path: path, opts: opts}
}

// Factory returns a driver.Factory building link drivers with opts.
func Factory(opts Options) driver.Factory {
	return func(path string) (driver.Driver, error) {
		return New(path, opts), nil
	}
}

func (d *Device) DevicePath() string { return d.path }

func (d *Device) Initialize(baud driver.Baud) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closePortLocked()

	po := d.opts.Port
	po.BaudRate = int(baud)
	if po.ReadTimeout == 0 {
		po.ReadTimeout = d.opts.ReplyTimeout
	}
	if _, err := po.Normalize(); err != nil {
		return lmserr.Wrap(lmserr.DriverConfigError, "initialize", err)
	}
	port, err := d.opts.Ports.Open(d.path, po)
	if err != nil {
		return lmserr.Wrap(lmserr.DriverIOError, "initialize", err)
	}
	d.port = port
	if err := port.ResetInputBuffer(); err != nil {
		d.closePortLocked()
		return lmserr.Wrap(lmserr.DriverIOError, "initialize", err)
	}

	r, err := d.requestLocked("initialize", fmt.Sprintf("INIT %d", int(baud)))
	if err != nil {
		d.closePortLocked()
		return err
	}
	d.initialized = true
	d.fast = r.Fast
	d.units = r.Units
	d.mode = r.Mode
	d.fov, d.res = r.FOV, r.Res
	return nil
}

func (d *Device) Uninitialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.port == nil {
		d.initialized = false
		return nil
	}
	_, err := d.requestLocked("uninitialize", "UNINIT")
	d.initialized = false
	d.closePortLocked()
	return err
}

func (d *Device) IsInitialized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initialized
}

func (d *Device) IsFast() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fast
}

func (d *Device) MeasuringUnits() (driver.MeasuringUnits, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return driver.UnitsOther, lmserr.Wrap(lmserr.DriverIOError, "measuring units", errLinkClosed)
	}
	return d.units, nil
}

// MeasuringMode asks the device, since the mode can be switched on the unit
// itself.
func (d *Device) MeasuringMode() (driver.MeasuringMode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, err := d.requestLocked("measuring mode", "MODE")
	if err != nil {
		return driver.ModeUnknown, err
	}
	d.mode = r.Mode
	return d.mode, nil
}

func (d *Device) Variant() (float64, float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return 0, 0, lmserr.Wrap(lmserr.DriverIOError, "variant", errLinkClosed)
	}
	return d.fov, d.res, nil
}

func (d *Device) SetVariant(angle driver.ScanAngle, res driver.ScanResolution) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.requestLocked("set variant", fmt.Sprintf("VARIANT %d %.2f", int(angle), res.Degrees())); err != nil {
		return err
	}
	d.fov, d.res = angle.Degrees(), res.Degrees()
	return nil
}

func (d *Device) Scan() ([]uint, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, err := d.requestLocked("scan", "SCAN")
	if err != nil {
		return nil, err
	}
	if r.Range == nil {
		return r.Reflect, nil
	}
	return r.Range, nil
}

func (d *Device) ScanRangeAndReflectivity() ([]uint, []uint, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, err := d.requestLocked("scan", "SCAN")
	if err != nil {
		return nil, nil, err
	}
	if len(r.Range) != len(r.Reflect) {
		return nil, nil, lmserr.Wrap(lmserr.DriverIOError, "scan", fmt.Errorf("range/reflectivity length mismatch %d/%d", len(r.Range), len(r.Reflect)))
	}
	return r.Range, r.Reflect, nil
}

func (d *Device) Status() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, err := d.requestLocked("status", "STATUS")
	if err != nil {
		return "", err
	}
	return r.Text, nil
}

func (d *Device) SoftwareVersion() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, err := d.requestLocked("software version", "VERSION")
	if err != nil {
		return "", err
	}
	return r.Text, nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.initialized = false
	return d.closePortLocked()
}

func (d *Device) closePortLocked() error {
	if d.port == nil {
		return nil
	}
	err := d.port.Close()
	d.port = nil
	d.pending = nil
	return err
}

// requestLocked writes one request line and decodes the reply.
func (d *Device) requestLocked(op, line string) (reply, error) {
	if d.port == nil {
		return reply{}, lmserr.Wrap(lmserr.DriverIOError, op, errLinkClosed)
	}
	if _, err := d.port.Write([]byte(line + "\n")); err != nil {
		return reply{}, lmserr.Wrap(lmserr.DriverIOError, op, err)
	}

	raw, err := d.readLineLocked()
	if err != nil {
		if errors.Is(err, errNoReply) {
			return reply{}, lmserr.Wrap(lmserr.DriverTimeoutError, op, err)
		}
		return reply{}, lmserr.Wrap(lmserr.DriverIOError, op, err)
	}

	var r reply
	if err := json.Unmarshal(raw, &r); err != nil {
		return reply{}, lmserr.Wrap(lmserr.DriverIOError, op, fmt.Errorf("malformed reply %q: %w", raw, err))
	}
	if !r.OK {
		cause := errors.New(strings.TrimSpace(r.Error))
		if r.Error == "" {
			cause = errors.New("request failed")
		}
		switch r.Code {
		case "rejected":
			return reply{}, lmserr.Wrap(lmserr.DriverConfigError, op, cause)
		case "timeout":
			return reply{}, lmserr.Wrap(lmserr.DriverTimeoutError, op, cause)
		}
		return reply{}, lmserr.Wrap(lmserr.DriverIOError, op, cause)
	}
	return r, nil
}

// readLineLocked returns the next non-empty line from the port.
func (d *Device) readLineLocked() ([]byte, error) {
	start := d.opts.Clock.Now()
	chunk := make([]byte, 512)
	for {
		if i := bytes.IndexByte(d.pending, '\n'); i >= 0 {
			line := bytes.TrimSpace(d.pending[:i])
			d.pending = append([]byte(nil), d.pending[i+1:]...)
			if len(line) == 0 {
				continue
			}
			return line, nil
		}
		if len(d.pending) > maxLine {
			d.pending = nil
			return nil, fmt.Errorf("reply exceeds %d bytes", maxLine)
		}
		if d.opts.Clock.Since(start) >= d.opts.ReplyTimeout {
			return nil, errNoReply
		}

		n, err := d.port.Read(chunk)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			d.opts.Clock.Sleep(pollInterval)
			continue
		}
		d.pending = append(d.pending, chunk[:n]...)
	}
}
