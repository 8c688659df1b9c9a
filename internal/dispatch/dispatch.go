// Package dispatch maps textual commands onto registry and session
// operations. It validates arity, argument types and enumerated values
// before any state is touched, resolves the default device path, and
// decides from the error kind whether a failed device must be torn down.
package dispatch

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/banshee-data/lmsctl/internal/driver"
	"github.com/banshee-data/lmsctl/internal/lmserr"
	"github.com/banshee-data/lmsctl/internal/monitoring"
	"github.com/banshee-data/lmsctl/internal/registry"
	"github.com/banshee-data/lmsctl/internal/scan"
)

// Host is the environment commands are issued from.
type Host interface {
	// Printf writes user-facing output.
	Printf(format string, args ...any)
	// Warnf writes a user-facing warning.
	Warnf(format string, args ...any)
	// AtExit registers fn to run once when the host shuts down.
	AtExit(fn func())
}

// ScanSink receives every successful grab.
type ScanSink interface {
	RecordScan(sessionID, path string, rec scan.Record) error
}

// Options tune dispatcher behaviour.
type Options struct {
	// TolerateTimeouts keeps a session alive when a grab times out.
	TolerateTimeouts bool
	// Sink, when set, archives every successful grab.
	Sink ScanSink
}

// Dispatcher runs one command at a time against a registry.
type Dispatcher struct {
	mu   sync.Mutex
	reg  *registry.Registry
	host Host
	opts Options

	exitRegistered bool
	closed         bool

	// capture, when set, receives command output instead of the host.
	capture *strings.Builder
}

// ErrClosed is returned by Dispatch once Shutdown has run.
var ErrClosed = errors.New("dispatcher is shut down")

// New creates a dispatcher over reg.
func New(reg *registry.Registry, host Host, opts Options) *Dispatcher {
	return &Dispatcher{reg: reg, host: host, opts: opts}
}

type command struct {
	minArgs, maxArgs int
	usage            string
	run              func(d *Dispatcher, args []any) (any, error)
}

var commands = map[string]command{
	"init":    {2, 2, "init <path> <baud>", (*Dispatcher).initDevice},
	"clear":   {0, 1, "clear [path]", (*Dispatcher).clearDevice},
	"variant": {2, 3, "variant <angle> <resolution> [path]", (*Dispatcher).setVariant},
	"grab":    {0, 1, "grab [path]", (*Dispatcher).grab},
	"info":    {0, 1, "info [path]", (*Dispatcher).info},
}

// Commands returns the usage line of every command, sorted by name.
func Commands() []string {
	return []string{
		commands["clear"].usage,
		commands["grab"].usage,
		commands["info"].usage,
		commands["init"].usage,
		commands["variant"].usage,
	}
}

// Dispatch runs one command. Command names are case-insensitive. Arguments
// are strings or Go numerics.
func (d *Dispatcher) Dispatch(name string, args ...any) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dispatchLocked(name, args)
}

// DispatchCaptured is Dispatch with the text a command prints returned as
// output rather than written to the host. Warnings still go to the host.
func (d *Dispatcher) DispatchCaptured(name string, args ...any) (result any, output string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var buf strings.Builder
	d.capture = &buf
	defer func() { d.capture = nil }()
	result, err = d.dispatchLocked(name, args)
	return result, buf.String(), err
}

func (d *Dispatcher) dispatchLocked(name string, args []any) (any, error) {
	if d.closed {
		return nil, ErrClosed
	}
	op := strings.ToLower(strings.TrimSpace(name))
	cmd, ok := commands[op]
	if !ok {
		return nil, &lmserr.Error{Kind: lmserr.UnknownCommand, Op: op, Msg: fmt.Sprintf("%q is not a command", name)}
	}
	if len(args) < cmd.minArgs || len(args) > cmd.maxArgs {
		return nil, lmserr.New(lmserr.UsageError, op, "usage: "+cmd.usage)
	}
	return cmd.run(d, args)
}

// Shutdown tears down every session and refuses further commands. It is
// what the dispatcher registers with the host.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.reg.Shutdown()
}

func (d *Dispatcher) printf(format string, args ...any) {
	if d.capture == nil {
		d.host.Printf(format, args...)
		return
	}
	msg := fmt.Sprintf(format, args...)
	d.capture.WriteString(msg)
	if !strings.HasSuffix(msg, "\n") {
		d.capture.WriteByte('\n')
	}
}

func (d *Dispatcher) initDevice(args []any) (any, error) {
	path, err := stringArg("init", args, 0)
	if err != nil {
		return nil, err
	}
	rate, err := numberArg("init", args, 1)
	if err != nil {
		return nil, err
	}
	baud := driver.BaudUnknown
	if rate == math.Trunc(rate) && math.Abs(rate) <= math.MaxInt32 {
		baud = driver.BaudFromInt(int(rate))
	}
	if baud == driver.BaudUnknown {
		return nil, lmserr.New(lmserr.InvalidBaudRate, "init", fmt.Sprintf("%v is not one of 9600, 19200, 38400, 500000", rate))
	}

	desc, err := d.reg.Create(path, baud)
	if err != nil {
		return nil, err
	}
	if !d.exitRegistered {
		d.host.AtExit(d.Shutdown)
		d.exitRegistered = true
	}
	return desc, nil
}

func (d *Dispatcher) clearDevice(args []any) (any, error) {
	path, err := d.readyPath("clear", args, 0)
	if err != nil {
		return nil, err
	}
	return nil, d.reg.Remove(path)
}

func (d *Dispatcher) setVariant(args []any) (any, error) {
	deg, err := numberArg("variant", args, 0)
	if err != nil {
		return nil, err
	}
	step, err := numberArg("variant", args, 1)
	if err != nil {
		return nil, err
	}
	angle := driver.ScanAngleUnknown
	if deg == math.Trunc(deg) && math.Abs(deg) <= math.MaxInt32 {
		angle = driver.ScanAngleFromInt(int(deg))
	}
	if angle == driver.ScanAngleUnknown {
		return nil, lmserr.New(lmserr.InvalidScanAngle, "variant", fmt.Sprintf("%v is not one of 100, 180", deg))
	}
	res := driver.ScanResolutionFromFloat(step)
	if res == driver.ScanResolutionUnknown {
		return nil, lmserr.New(lmserr.InvalidScanResolution, "variant", fmt.Sprintf("%v is not one of 0.25, 0.50, 1.00", step))
	}

	path, err := d.readyPath("variant", args, 2)
	if err != nil {
		return nil, err
	}
	if err := d.reg.SetVariant(path, angle, res); err != nil {
		switch lmserr.KindOf(err) {
		case lmserr.DriverConfigError, lmserr.UnsupportedOperation:
			// Rejected settings leave the device as it was.
		default:
			d.forceCleanup(path, err)
		}
		return nil, err
	}
	return nil, nil
}

func (d *Dispatcher) grab(args []any) (any, error) {
	path, err := d.readyPath("grab", args, 0)
	if err != nil {
		return nil, err
	}
	rec, err := d.reg.Acquire(path)
	if err != nil {
		if d.opts.TolerateTimeouts && lmserr.KindOf(err) == lmserr.DriverTimeoutError {
			return nil, err
		}
		d.forceCleanup(path, err)
		return nil, err
	}

	if d.opts.Sink != nil {
		snap, _ := d.reg.Snapshot(path)
		if err := d.opts.Sink.RecordScan(snap.ID, path, rec); err != nil {
			d.host.Warnf("archive scan from %s: %v", path, err)
		}
	}
	return rec, nil
}

func (d *Dispatcher) info(args []any) (any, error) {
	path, err := d.readyPath("info", args, 0)
	if err != nil {
		return nil, err
	}
	status, version, err := d.reg.Info(path)
	if err != nil {
		return nil, err
	}
	d.printf("%s", status)
	d.printf("%s", version)
	return nil, nil
}

// readyPath resolves the optional path at args[i] and requires its session
// to be initialized.
func (d *Dispatcher) readyPath(op string, args []any, i int) (string, error) {
	var path string
	if i < len(args) {
		p, err := stringArg(op, args, i)
		if err != nil {
			return "", err
		}
		if !d.reg.Contains(p) {
			return "", &lmserr.Error{Kind: lmserr.DeviceNotFound, Op: op, Path: p}
		}
		path = p
	} else {
		p, err := d.reg.ResolveDefault()
		if err != nil {
			var e *lmserr.Error
			if errors.As(err, &e) {
				tagged := *e
				tagged.Op = op
				return "", &tagged
			}
			return "", err
		}
		path = p
	}

	ok, err := d.reg.Initialized(path)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &lmserr.Error{Kind: lmserr.NotInitialized, Op: op, Path: path}
	}
	return path, nil
}

// forceCleanup removes a session whose device is in an unknown state after
// cause. Teardown problems are warned about by the registry and never
// replace cause.
func (d *Dispatcher) forceCleanup(path string, cause error) {
	monitoring.Logf("%v; removing device @ %s", cause, path)
	if err := d.reg.Remove(path); err != nil {
		d.host.Warnf("remove %s after failure: %v", path, err)
	}
}

func stringArg(op string, args []any, i int) (string, error) {
	s, ok := args[i].(string)
	if !ok {
		return "", lmserr.New(lmserr.UsageError, op, fmt.Sprintf("argument %d must be a string, got %T", i+1, args[i]))
	}
	return s, nil
}

func numberArg(op string, args []any, i int) (float64, error) {
	switch v := args[i].(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	}
	return 0, lmserr.New(lmserr.UsageError, op, fmt.Sprintf("argument %d must be a number, got %T", i+1, args[i]))
}
