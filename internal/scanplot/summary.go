package scanplot

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/lmsctl/internal/scan"
)

// Summary describes the distribution of one scan channel.
type Summary struct {
	Channel string  `json:"channel"`
	Samples int     `json:"samples"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"stddev"`
	Median  float64 `json:"median"`
	// MinBearing is the bearing of the closest return.
	MinBearing float64 `json:"min_bearing"`
}

// Summarize computes statistics over the record's primary channel.
func Summarize(rec scan.Record) (Summary, error) {
	values, label := channel(rec)
	if len(values) == 0 {
		return Summary{Channel: label}, ErrEmpty
	}

	xs := make([]float64, len(values))
	for i, v := range values {
		xs[i] = float64(v)
	}

	s := Summary{Channel: label, Samples: len(xs)}
	s.Min = floats.Min(xs)
	s.Max = floats.Max(xs)
	if i := floats.MinIdx(xs); i < len(rec.Bearings) {
		s.MinBearing = rec.Bearings[i]
	}
	s.Mean, s.StdDev = stat.MeanStdDev(xs, nil)
	if len(xs) == 1 {
		s.StdDev = 0
	}

	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	s.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	return s, nil
}

func (s Summary) String() string {
	return fmt.Sprintf("%s: n=%d min=%.0f max=%.0f mean=%.1f sd=%.1f median=%.0f closest@%.2f°",
		s.Channel, s.Samples, s.Min, s.Max, s.Mean, s.StdDev, s.Median, s.MinBearing)
}
