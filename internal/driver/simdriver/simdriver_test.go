package simdriver

import (
	"errors"
	"testing"

	"github.com/banshee-data/lmsctl/internal/driver"
	"github.com/banshee-data/lmsctl/internal/lmserr"
)

var _ driver.Driver = (*Device)(nil)

func TestDevice_Lifecycle(t *testing.T) {
	d := NewDevice("/dev/sim0")
	if d.IsInitialized() {
		t.Fatal("new device should not be initialized")
	}
	if err := d.Initialize(driver.Baud38400); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !d.IsInitialized() || d.Baud() != driver.Baud38400 {
		t.Fatalf("initialized=%v baud=%v", d.IsInitialized(), d.Baud())
	}
	if err := d.Uninitialize(); err != nil {
		t.Fatalf("Uninitialize: %v", err)
	}
	if d.IsInitialized() {
		t.Error("device still initialized after Uninitialize")
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.Initialize(driver.Baud9600); lmserr.KindOf(err) != lmserr.DriverIOError {
		t.Errorf("Initialize after Close: %v, want driver I/O error", err)
	}
}

func TestDevice_InjectedErrorIsOneShot(t *testing.T) {
	d := NewDevice("/dev/sim0")
	d.InitializeError = ErrSimulated
	if err := d.Initialize(driver.Baud9600); !errors.Is(err, ErrSimulated) {
		t.Fatalf("first Initialize = %v, want ErrSimulated", err)
	}
	if err := d.Initialize(driver.Baud9600); err != nil {
		t.Fatalf("second Initialize = %v, want nil", err)
	}
	if d.InitializeCalls != 2 {
		t.Errorf("InitializeCalls = %d, want 2", d.InitializeCalls)
	}
}

func TestDevice_ScanSampleCount(t *testing.T) {
	tests := []struct {
		fov, res float64
		want     int
	}{
		{180, 0.5, 361},
		{180, 1.0, 181},
		{100, 0.25, 401},
		{180, 0.25, 721},
	}
	for _, tt := range tests {
		d := NewDevice("/dev/sim0")
		d.FOV, d.Resolution = tt.fov, tt.res
		_ = d.Initialize(driver.Baud9600)
		values, err := d.Scan()
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		if len(values) != tt.want {
			t.Errorf("%v/%v: %d samples, want %d", tt.fov, tt.res, len(values), tt.want)
		}
		if values[0] != d.RangeBase {
			t.Errorf("first sample = %d, want %d", values[0], d.RangeBase)
		}
	}
}

func TestDevice_ScanRequiresInitialize(t *testing.T) {
	d := NewDevice("/dev/sim0")
	if _, err := d.Scan(); lmserr.KindOf(err) != lmserr.DriverIOError {
		t.Errorf("Scan on idle device = %v", err)
	}
}

func TestDevice_FastRejectsVariant(t *testing.T) {
	d := NewFastDevice("/dev/sim1")
	_ = d.Initialize(driver.Baud500K)
	err := d.SetVariant(driver.ScanAngle100, driver.ScanResolution25)
	if lmserr.KindOf(err) != lmserr.DriverConfigError {
		t.Fatalf("SetVariant on fast device = %v", err)
	}
	ranges, reflect, err := d.ScanRangeAndReflectivity()
	if err != nil {
		t.Fatal(err)
	}
	if len(ranges) != len(reflect) || len(ranges) != 361 {
		t.Errorf("fast scan lengths %d/%d", len(ranges), len(reflect))
	}
}

func TestBench_Factory(t *testing.T) {
	b := NewBench()
	b.Template = NewFastDevice
	factory := b.Factory()

	d1, err := factory("/dev/a")
	if err != nil {
		t.Fatal(err)
	}
	d2, _ := factory("/dev/a")
	if !d1.IsFast() {
		t.Error("template not applied")
	}
	if b.Device("/dev/a") != d2 {
		t.Error("Device should return the latest handle for a path")
	}
	if n := len(b.Created()); n != 2 {
		t.Errorf("Created() has %d devices, want 2", n)
	}

	b.OpenError = ErrSimulated
	if _, err := factory("/dev/b"); !errors.Is(err, ErrSimulated) {
		t.Errorf("factory error = %v", err)
	}
}
