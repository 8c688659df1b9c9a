package registry

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lmsctl/internal/driver"
	"github.com/banshee-data/lmsctl/internal/driver/simdriver"
	"github.com/banshee-data/lmsctl/internal/lmserr"
	"github.com/banshee-data/lmsctl/internal/testutil"
)

func newTestRegistry(t *testing.T) (*Registry, *simdriver.Bench, *testutil.Warnings) {
	t.Helper()
	bench := simdriver.NewBench()
	warnings := &testutil.Warnings{}
	return New(bench.Factory(), warnings.Warnf), bench, warnings
}

func TestCreate_ReturnsDescriptor(t *testing.T) {
	reg, bench, _ := newTestRegistry(t)

	desc, err := reg.Create("/dev/ttyUSB0", driver.Baud38400)
	require.NoError(t, err)
	assert.Equal(t, Descriptor{
		Path:   "/dev/ttyUSB0",
		Family: driver.Classic,
		Units:  driver.UnitsMillimeters,
		Mode:   driver.ModeRange,
	}, desc)
	assert.Equal(t, driver.Baud38400, bench.Device("/dev/ttyUSB0").Baud())
	assert.True(t, reg.Contains("/dev/ttyUSB0"))
	assert.Equal(t, 1, reg.Len())
}

func TestCreate_FastFamily(t *testing.T) {
	reg, bench, _ := newTestRegistry(t)
	bench.Template = simdriver.NewFastDevice

	desc, err := reg.Create("/dev/ttyUSB0", driver.Baud500K)
	require.NoError(t, err)
	assert.Equal(t, driver.Fast, desc.Family)
	assert.Equal(t, driver.ModeRangeAndReflectivity, desc.Mode)
}

func TestCreate_CapacityIsFour(t *testing.T) {
	reg, bench, _ := newTestRegistry(t)
	for i := 0; i < Capacity; i++ {
		_, err := reg.Create(fmt.Sprintf("/dev/ttyS%d", i), driver.Baud9600)
		require.NoError(t, err)
	}

	_, err := reg.Create("/dev/ttyS4", driver.Baud9600)
	testutil.AssertKind(t, err, lmserr.RegistryFull)
	assert.Equal(t, Capacity, reg.Len())
	assert.False(t, reg.Contains("/dev/ttyS4"))
	assert.Len(t, bench.Created(), Capacity, "a full registry must not allocate a driver")

	// Re-initializing a present path is also refused while full.
	_, err = reg.Create("/dev/ttyS0", driver.Baud9600)
	testutil.AssertKind(t, err, lmserr.RegistryFull)
	assert.False(t, bench.Device("/dev/ttyS0").Closed)
}

func TestCreate_ReinitializeWarnsAndReplaces(t *testing.T) {
	reg, bench, warnings := newTestRegistry(t)

	_, err := reg.Create("/dev/ttyUSB0", driver.Baud9600)
	require.NoError(t, err)
	first := bench.Device("/dev/ttyUSB0")

	_, err = reg.Create("/dev/ttyUSB0", driver.Baud38400)
	require.NoError(t, err)

	require.Equal(t, 1, warnings.Len())
	assert.Contains(t, warnings.Lines()[0], "/dev/ttyUSB0")
	assert.Contains(t, warnings.Lines()[0], "re-initializing")
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, 1, first.UninitializeCalls)
	assert.True(t, first.Closed)
	assert.NotSame(t, first, bench.Device("/dev/ttyUSB0"))
}

func TestCreate_ReplacesUninitializedWithoutWarning(t *testing.T) {
	reg, bench, warnings := newTestRegistry(t)
	_, err := reg.Create("/dev/ttyUSB0", driver.Baud9600)
	require.NoError(t, err)
	bench.Device("/dev/ttyUSB0").PowerCycle()

	_, err = reg.Create("/dev/ttyUSB0", driver.Baud9600)
	require.NoError(t, err)
	assert.Zero(t, warnings.Len())
}

func TestCreate_InitializeFailure(t *testing.T) {
	tests := []struct {
		name  string
		cause error
		want  lmserr.Kind
	}{
		{name: "io", cause: lmserr.Wrap(lmserr.DriverIOError, "initialize", simdriver.ErrSimulated), want: lmserr.DriverIOError},
		{name: "timeout", cause: lmserr.Wrap(lmserr.DriverTimeoutError, "initialize", simdriver.ErrSimulated), want: lmserr.DriverIOError},
		{name: "config", cause: lmserr.Wrap(lmserr.DriverConfigError, "initialize", simdriver.ErrSimulated), want: lmserr.InitializationFailed},
		{name: "untagged", cause: simdriver.ErrSimulated, want: lmserr.InitializationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, bench, _ := newTestRegistry(t)
			bench.Template = func(path string) *simdriver.Device {
				d := simdriver.NewDevice(path)
				d.InitializeError = tt.cause
				return d
			}

			_, err := reg.Create("/dev/ttyUSB0", driver.Baud9600)
			testutil.AssertKind(t, err, tt.want)
			assert.ErrorIs(t, err, simdriver.ErrSimulated)
			assert.False(t, reg.Contains("/dev/ttyUSB0"))
			assert.True(t, bench.Device("/dev/ttyUSB0").Closed)
		})
	}
}

func TestCreate_FactoryFailure(t *testing.T) {
	reg, bench, _ := newTestRegistry(t)
	bench.OpenError = errors.New("out of handles")

	_, err := reg.Create("/dev/ttyUSB0", driver.Baud9600)
	testutil.AssertKind(t, err, lmserr.InitializationFailed)
	assert.Zero(t, reg.Len())
}

func TestRemove(t *testing.T) {
	reg, bench, warnings := newTestRegistry(t)
	_, err := reg.Create("/dev/ttyUSB0", driver.Baud9600)
	require.NoError(t, err)

	require.NoError(t, reg.Remove("/dev/ttyUSB0"))
	d := bench.Device("/dev/ttyUSB0")
	assert.Equal(t, 1, d.UninitializeCalls)
	assert.Equal(t, 1, d.CloseCalls)
	assert.False(t, reg.Contains("/dev/ttyUSB0"))
	assert.Zero(t, warnings.Len())

	testutil.AssertKind(t, reg.Remove("/dev/ttyUSB0"), lmserr.DeviceNotFound)
}

func TestRemove_UninitializeFailureStillErases(t *testing.T) {
	reg, bench, warnings := newTestRegistry(t)
	_, err := reg.Create("/dev/ttyUSB0", driver.Baud9600)
	require.NoError(t, err)
	bench.Device("/dev/ttyUSB0").UninitializeError = simdriver.ErrSimulated

	require.NoError(t, reg.Remove("/dev/ttyUSB0"))
	assert.False(t, reg.Contains("/dev/ttyUSB0"))
	assert.True(t, bench.Device("/dev/ttyUSB0").Closed)
	require.Equal(t, 1, warnings.Len())
	assert.Contains(t, warnings.Lines()[0], "continuing to erase device anyway")
}

func TestRemove_UninitializedSkipsUninitialize(t *testing.T) {
	reg, bench, _ := newTestRegistry(t)
	_, err := reg.Create("/dev/ttyUSB0", driver.Baud9600)
	require.NoError(t, err)
	d := bench.Device("/dev/ttyUSB0")
	d.PowerCycle()

	require.NoError(t, reg.Remove("/dev/ttyUSB0"))
	assert.Zero(t, d.UninitializeCalls)
	assert.True(t, d.Closed)
}

func TestResolveDefault(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	_, err := reg.ResolveDefault()
	testutil.AssertKind(t, err, lmserr.NoDeviceInitialized)

	_, err = reg.Create("/dev/ttyS0", driver.Baud9600)
	require.NoError(t, err)
	path, err := reg.ResolveDefault()
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyS0", path)

	_, err = reg.Create("/dev/ttyS1", driver.Baud9600)
	require.NoError(t, err)
	_, err = reg.ResolveDefault()
	testutil.AssertKind(t, err, lmserr.AmbiguousDevice)
}

func TestShutdown_ToleratesFailures(t *testing.T) {
	reg, bench, warnings := newTestRegistry(t)
	for _, p := range []string{"/dev/ttyS0", "/dev/ttyS1", "/dev/ttyS2"} {
		_, err := reg.Create(p, driver.Baud9600)
		require.NoError(t, err)
	}
	bench.Device("/dev/ttyS1").UninitializeError = simdriver.ErrSimulated

	reg.Shutdown()

	assert.Zero(t, reg.Len())
	assert.Equal(t, 1, warnings.Len())
	for _, d := range bench.Created() {
		assert.True(t, d.Closed, "%s not released", d.DevicePath())
		assert.Equal(t, 1, d.CloseCalls)
	}

	// A second shutdown has nothing left to do.
	reg.Shutdown()
	assert.Equal(t, 1, warnings.Len())
}

func TestSetVariant(t *testing.T) {
	reg, bench, _ := newTestRegistry(t)
	_, err := reg.Create("/dev/ttyS0", driver.Baud9600)
	require.NoError(t, err)

	require.NoError(t, reg.SetVariant("/dev/ttyS0", driver.ScanAngle100, driver.ScanResolution25))
	snap, err := reg.Snapshot("/dev/ttyS0")
	require.NoError(t, err)
	assert.Equal(t, 100.0, snap.FOV)
	assert.Equal(t, 0.25, snap.Resolution)
	assert.Equal(t, Ready, snap.State)

	bench.Device("/dev/ttyS0").RejectVariants = true
	err = reg.SetVariant("/dev/ttyS0", driver.ScanAngle180, driver.ScanResolution100)
	testutil.AssertKind(t, err, lmserr.DriverConfigError)
	snap, _ = reg.Snapshot("/dev/ttyS0")
	assert.Equal(t, 100.0, snap.FOV, "failed variant must not change geometry")
	assert.Equal(t, 0.25, snap.Resolution)
}

func TestSetVariant_FastUnsupported(t *testing.T) {
	reg, bench, _ := newTestRegistry(t)
	bench.Template = simdriver.NewFastDevice
	_, err := reg.Create("/dev/ttyS0", driver.Baud500K)
	require.NoError(t, err)

	err = reg.SetVariant("/dev/ttyS0", driver.ScanAngle100, driver.ScanResolution25)
	testutil.AssertKind(t, err, lmserr.UnsupportedOperation)
	assert.Zero(t, bench.Device("/dev/ttyS0").SetVariantCalls)
}

func TestAcquire(t *testing.T) {
	reg, bench, _ := newTestRegistry(t)
	_, err := reg.Create("/dev/ttyS0", driver.Baud9600)
	require.NoError(t, err)

	rec, err := reg.Acquire("/dev/ttyS0")
	require.NoError(t, err)
	assert.Equal(t, 361, rec.Len())
	assert.Nil(t, rec.Reflectivity)
	assert.Equal(t, uint(1000), rec.Range[0])

	// Mode changes on the device are picked up by the next grab.
	bench.Device("/dev/ttyS0").Mode = driver.ModeReflectivity
	rec, err = reg.Acquire("/dev/ttyS0")
	require.NoError(t, err)
	assert.Nil(t, rec.Range)
	assert.Equal(t, uint(10), rec.Reflectivity[0])
}

func TestAcquire_NotInitialized(t *testing.T) {
	reg, bench, _ := newTestRegistry(t)
	_, err := reg.Create("/dev/ttyS0", driver.Baud9600)
	require.NoError(t, err)
	bench.Device("/dev/ttyS0").PowerCycle()

	_, err = reg.Acquire("/dev/ttyS0")
	testutil.AssertKind(t, err, lmserr.NotInitialized)
	snap, _ := reg.Snapshot("/dev/ttyS0")
	assert.Equal(t, Constructed, snap.State)
}

func TestInfo(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	_, err := reg.Create("/dev/ttyS0", driver.Baud9600)
	require.NoError(t, err)

	status, version, err := reg.Info("/dev/ttyS0")
	require.NoError(t, err)
	assert.True(t, strings.Contains(status, "Sick LMS Status"))
	assert.True(t, strings.Contains(version, "Software Version"))
}

func TestSnapshots_SortedWithIDs(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	for _, p := range []string{"/dev/ttyS2", "/dev/ttyS0"} {
		_, err := reg.Create(p, driver.Baud9600)
		require.NoError(t, err)
	}
	snaps := reg.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "/dev/ttyS0", snaps[0].Path)
	assert.NotEmpty(t, snaps[0].ID)
	assert.NotEqual(t, snaps[0].ID, snaps[1].ID)
	assert.Equal(t, []string{"/dev/ttyS0", "/dev/ttyS2"}, reg.Paths())
}
