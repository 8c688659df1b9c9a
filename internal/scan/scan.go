// Package scan turns raw sample buffers and device geometry into bearing
// annotated scan records.
package scan

import (
	"github.com/banshee-data/lmsctl/internal/driver"
)

// Record is one grab. Range and Reflectivity are nil when the device did not
// report that quantity.
type Record struct {
	Resolution   float64   `json:"res"`
	FieldOfView  float64   `json:"fov"`
	Range        []uint    `json:"range,omitempty"`
	Reflectivity []uint    `json:"reflect,omitempty"`
	Bearings     []float64 `json:"bearing"`
}

// Len returns the number of samples in the record.
func (r Record) Len() int { return len(r.Bearings) }

// Bearing returns the angle in degrees of sample i. Samples are spread
// symmetrically across the field of view starting at its negative extreme,
// so on a 100 degree device sample 0 sits at 40 degrees.
func Bearing(i int, fov, resolution float64) float64 {
	return (180-fov)/2 + float64(i)*resolution
}

// Marshal builds a Record from a driver scan. secondary is required for fast
// devices and ignored otherwise. The sample slices are copied.
func Marshal(primary, secondary []uint, family driver.Family, mode driver.MeasuringMode, resolution, fov float64) Record {
	n := len(primary)
	rec := Record{
		Resolution:  resolution,
		FieldOfView: fov,
		Bearings:    make([]float64, n),
	}
	for i := range rec.Bearings {
		rec.Bearings[i] = Bearing(i, fov, resolution)
	}

	switch {
	case family == driver.Fast:
		rec.Range = clone(primary)
		rec.Reflectivity = clone(secondary)
	case mode == driver.ModeReflectivity:
		rec.Reflectivity = clone(primary)
	default:
		rec.Range = clone(primary)
	}
	return rec
}

func clone(v []uint) []uint {
	out := make([]uint, len(v))
	copy(out, v)
	return out
}
