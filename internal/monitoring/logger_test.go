package monitoring

import (
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = format
	})
	Logf("initializing %s", "/dev/ttyUSB0")
	if got != "initializing %s" {
		t.Errorf("custom logger received %q", got)
	}

	// nil installs a no-op logger rather than leaving Logf unset
	SetLogger(nil)
	if Logf == nil {
		t.Fatal("Logf should not be nil after SetLogger(nil)")
	}
	got = ""
	Logf("muted")
	if got != "" {
		t.Errorf("no-op logger forwarded %q", got)
	}
}

func TestCapture(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	lines, restore := Capture()
	Logf("device %s initialized (%d)", "/dev/ttyS0", 38400)
	Logf("second")
	restore()
	Logf("after restore")

	if len(*lines) != 2 {
		t.Fatalf("captured %d lines, want 2: %q", len(*lines), *lines)
	}
	if (*lines)[0] != "device /dev/ttyS0 initialized (38400)" {
		t.Errorf("line 0 = %q", (*lines)[0])
	}
}
