package features

import (
	"errors"
	"math"
	"time"
)

var ErrInsufficientData = errors.New("features: insufficient data")

// Point is one raw reading in a time-ordered sequence.
type Point struct {
	Value     float64
	Timestamp time.Time
}

// Vector is the per-reading feature vector used by the trainable strategies.
type Vector struct {
	Value           float64
	HourOfDay       float64
	DayOfWeek       float64
	RollingMean     float64
	RollingStd      float64
	HoursSinceStart float64
}

// WindowSize returns the rolling window k = min(5, max(1, n/4)).
func WindowSize(n int) int {
	k := n / 4
	if k < 1 {
		k = 1
	}
	if k > 5 {
		k = 5
	}
	return k
}

// Extract builds feature vectors for a time-ascending sequence of points.
// Rolling statistics use a right-aligned window of size k over the preceding
// readings; the first k-1 entries degrade to the value itself with zero std
// instead of failing.
func Extract(points []Point, baseline float64) ([]Vector, error) {
	if len(points) < 1 {
		return nil, ErrInsufficientData
	}

	k := WindowSize(len(points))
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}

	start := points[0].Timestamp
	out := make([]Vector, len(points))
	for i, p := range points {
		mean := p.Value
		std := 0.0
		if i+1 >= k {
			window := values[i+1-k : i+1]
			mean = Mean(window)
			std = Std(window)
		}
		out[i] = Vector{
			Value:           p.Value,
			HourOfDay:       float64(p.Timestamp.Hour()),
			DayOfWeek:       float64(Weekday(p.Timestamp)),
			RollingMean:     mean,
			RollingStd:      std,
			HoursSinceStart: p.Timestamp.Sub(start).Hours(),
		}
	}
	return out, nil
}

// Weekday numbers days Monday=0 .. Sunday=6.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Std is the sample standard deviation; zero for fewer than two values.
func Std(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values) - 1)
	return math.Sqrt(variance)
}
