package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/lmsctl/internal/dispatch"
	"github.com/banshee-data/lmsctl/internal/driver"
	"github.com/banshee-data/lmsctl/internal/driver/simdriver"
	"github.com/banshee-data/lmsctl/internal/monitoring"
	"github.com/banshee-data/lmsctl/internal/registry"
	"github.com/banshee-data/lmsctl/internal/serialport"
)

type rig struct {
	sh     *shell
	bench  *simdriver.Bench
	reg    *registry.Registry
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func newRig(t *testing.T) *rig {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = original })

	r := &rig{bench: simdriver.NewBench(), out: &bytes.Buffer{}, errOut: &bytes.Buffer{}}
	r.sh = newShell(r.out, r.errOut)
	r.reg = registry.New(r.bench.Factory(), r.sh.Warnf)
	r.sh.disp = dispatch.New(r.reg, r.sh, dispatch.Options{})
	return r
}

func (r *rig) script(t *testing.T, lines ...string) {
	t.Helper()
	if err := r.sh.run(strings.NewReader(strings.Join(lines, "\n") + "\n")); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestShell_ScriptedSession(t *testing.T) {
	r := newRig(t)
	r.script(t,
		"# bring up one device",
		"init /dev/ttyUSB0 38400",
		"grab",
		"stats",
		"variant 100 1",
		"GRAB /dev/ttyUSB0",
		"quit",
		"grab",
	)

	out := r.out.String()
	for _, want := range []string{
		"/dev/ttyUSB0: family=classic units=mm mode=range",
		"grabbed 361 samples (fov 180, res 0.50)",
		"range: n=361",
		"grabbed 101 samples (fov 100, res 1.00)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "grabbed") != 2 {
		t.Errorf("lines after quit should not run:\n%s", out)
	}
	if r.errOut.Len() != 0 {
		t.Errorf("unexpected errors: %s", r.errOut.String())
	}
	if r.bench.Device("/dev/ttyUSB0").Baud() != driver.Baud38400 {
		t.Errorf("baud = %v, want 38400", r.bench.Device("/dev/ttyUSB0").Baud())
	}
}

func TestShell_ExitHooksRunOnce(t *testing.T) {
	r := newRig(t)
	r.script(t, "init /dev/ttyUSB0 9600", "init /dev/ttyUSB1 9600")

	r.sh.runExitHooks()
	r.sh.runExitHooks()

	if r.reg.Len() != 0 {
		t.Errorf("registry holds %d sessions after exit, want 0", r.reg.Len())
	}
	for _, d := range r.bench.Created() {
		if d.CloseCalls != 1 {
			t.Errorf("%s closed %d times, want 1", d.DevicePath(), d.CloseCalls)
		}
		if d.UninitializeCalls != 1 {
			t.Errorf("%s uninitialized %d times, want 1", d.DevicePath(), d.UninitializeCalls)
		}
	}
}

func TestShell_InitUsesDefaultBaud(t *testing.T) {
	r := newRig(t)
	r.sh.defaultBaud = driver.Baud19200
	r.script(t, "init /dev/ttyS0")

	if got := r.bench.Device("/dev/ttyS0").Baud(); got != driver.Baud19200 {
		t.Errorf("baud = %v, want 19200", got)
	}
}

func TestShell_Errors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{name: "unknown command", line: "frobnicate", want: "unknown command"},
		{name: "bad baud", line: "init /dev/ttyUSB0 1200", want: "invalid baud rate"},
		{name: "no device", line: "grab", want: "no device initialized"},
		{name: "unbalanced quote", line: `init "/dev/ttyUSB0`, want: "usage error"},
		{name: "stats before grab", line: "stats", want: "no scan grabbed yet"},
		{name: "plot before grab", line: "plot out.png", want: "no scan grabbed yet"},
		{name: "plot usage", line: "plot", want: "usage: plot"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t)
			r.script(t, tt.line)
			if !strings.Contains(r.errOut.String(), tt.want) {
				t.Errorf("stderr = %q, want it to mention %q", r.errOut.String(), tt.want)
			}
		})
	}
}

func TestShell_ReinitWarning(t *testing.T) {
	r := newRig(t)
	r.script(t, "init /dev/ttyUSB0 9600", "init /dev/ttyUSB0 9600")

	if got := strings.Count(r.errOut.String(), "warning: "); got != 1 {
		t.Errorf("got %d warnings, want 1:\n%s", got, r.errOut.String())
	}
	if !strings.Contains(r.errOut.String(), "/dev/ttyUSB0") {
		t.Errorf("warning should name the path: %s", r.errOut.String())
	}
	if r.reg.Len() != 1 {
		t.Errorf("registry len = %d, want 1", r.reg.Len())
	}
}

func TestShell_Info(t *testing.T) {
	r := newRig(t)
	r.script(t, "init /dev/ttyUSB0 9600", "info")

	out := r.out.String()
	status := strings.Index(out, "Sick LMS Status")
	version := strings.Index(out, "Sick Software Version")
	if status < 0 || version < 0 || status > version {
		t.Errorf("info should print status then version:\n%s", out)
	}
}

func TestShell_Plot(t *testing.T) {
	r := newRig(t)
	dir := t.TempDir()
	png := filepath.Join(dir, "scan.png")
	html := filepath.Join(dir, "scan.html")
	r.script(t, "init /dev/ttyUSB0 9600", "grab", "plot "+png, "plot '"+html+"'")

	for _, p := range []string{png, html} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("plot file %s: %v", p, err)
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", p)
		}
	}
	if r.errOut.Len() != 0 {
		t.Errorf("unexpected errors: %s", r.errOut.String())
	}
}

func TestShell_JSONOutput(t *testing.T) {
	r := newRig(t)
	r.sh.jsonOut = true
	r.script(t, "init /dev/ttyUSB0 9600")

	want := `{"path":"/dev/ttyUSB0","family":"classic","units":"mm","mode":"range"}`
	if got := strings.TrimSpace(r.out.String()); got != want {
		t.Errorf("json = %s, want %s", got, want)
	}
}

func TestShell_Ports(t *testing.T) {
	r := newRig(t)
	r.sh.listPorts = func() ([]serialport.PortInfo, error) {
		return []serialport.PortInfo{
			{Name: "/dev/ttyS0"},
			{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001"},
		}, nil
	}
	r.script(t, "ports")
	if !strings.Contains(r.out.String(), "/dev/ttyS0\n/dev/ttyUSB0 (USB 0403:6001)") {
		t.Errorf("ports output = %q", r.out.String())
	}

	r.sh.listPorts = func() ([]serialport.PortInfo, error) { return nil, errors.New("no access") }
	r.script(t, "ports")
	if !strings.Contains(r.errOut.String(), "no access") {
		t.Errorf("stderr = %q", r.errOut.String())
	}
}

func TestShell_Help(t *testing.T) {
	r := newRig(t)
	r.script(t, "help")
	for _, want := range append(dispatch.Commands(), "ports", "quit") {
		if !strings.Contains(r.out.String(), want) {
			t.Errorf("help missing %q", want)
		}
	}
}
