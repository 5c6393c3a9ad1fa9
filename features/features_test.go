package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowSize(t *testing.T) {
	assert.Equal(t, 1, WindowSize(1))
	assert.Equal(t, 1, WindowSize(4))
	assert.Equal(t, 2, WindowSize(8))
	assert.Equal(t, 5, WindowSize(20))
	assert.Equal(t, 5, WindowSize(1000))
}

func TestExtractEmpty(t *testing.T) {
	_, err := Extract(nil, 10)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestExtractRollingWindow(t *testing.T) {
	start := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC) // a Monday
	points := make([]Point, 8)
	values := []float64{10, 12, 14, 16, 18, 20, 22, 24}
	for i := range points {
		points[i] = Point{Value: values[i], Timestamp: start.Add(time.Duration(i) * time.Hour)}
	}

	vectors, err := Extract(points, 10)
	require.NoError(t, err)
	require.Len(t, vectors, 8)

	// k = 8/4 = 2. The first entry has no full window and degrades to the
	// value itself with zero std.
	assert.Equal(t, 10.0, vectors[0].RollingMean)
	assert.Equal(t, 0.0, vectors[0].RollingStd)

	// From index 1 on, window is the two latest values.
	assert.InDelta(t, 11.0, vectors[1].RollingMean, 1e-9)
	assert.InDelta(t, math.Sqrt(2), vectors[1].RollingStd, 1e-9)
	assert.InDelta(t, 23.0, vectors[7].RollingMean, 1e-9)

	assert.Equal(t, 8.0, vectors[0].HourOfDay)
	assert.Equal(t, 0.0, vectors[0].DayOfWeek)
	assert.Equal(t, 0.0, vectors[0].HoursSinceStart)
	assert.Equal(t, 7.0, vectors[7].HoursSinceStart)
}

func TestWeekdayMondayZero(t *testing.T) {
	monday := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	sunday := time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, Weekday(monday))
	assert.Equal(t, 6, Weekday(sunday))
}

func TestMeanAndStd(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 2.0, Mean([]float64{1, 2, 3}))

	assert.Equal(t, 0.0, Std([]float64{5}))
	// Sample std of {2, 4, 4, 4, 5, 5, 7, 9} is sqrt(32/7).
	assert.InDelta(t, math.Sqrt(32.0/7.0), Std([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-9)
}
