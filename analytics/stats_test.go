package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensor-calibration-platform/mlmodel"
	"sensor-calibration-platform/models"
)

type fakeStats struct {
	sensors      []models.Sensor
	readings     map[uint][]models.Reading // newest first
	anomalies    []models.Anomaly
	calibrations []models.Calibration
}

func (f *fakeStats) Sensors() ([]models.Sensor, error) { return f.sensors, nil }

func (f *fakeStats) CountSensors() (int64, error) { return int64(len(f.sensors)), nil }

func (f *fakeStats) CountAllReadings() (int64, error) {
	var n int64
	for _, rs := range f.readings {
		n += int64(len(rs))
	}
	return n, nil
}

func (f *fakeStats) CountAllAnomalies() (int64, error) { return int64(len(f.anomalies)), nil }

func (f *fakeStats) CountAllCalibrations() (int64, error) {
	return int64(len(f.calibrations)), nil
}

func (f *fakeStats) CountAnomaliesSince(since time.Time) (int64, error) {
	var n int64
	for _, a := range f.anomalies {
		if !a.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStats) CountAnomaliesBySeveritySince(severity models.Severity, since time.Time) (int64, error) {
	var n int64
	for _, a := range f.anomalies {
		if a.Severity == severity && !a.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStats) SensorsWithReadingsSince(since time.Time) ([]models.Sensor, error) {
	var out []models.Sensor
	for _, s := range f.sensors {
		for _, r := range f.readings[s.ID] {
			if !r.Timestamp.Before(since) {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStats) ReadingsSince(sensorID uint, since time.Time) ([]models.Reading, error) {
	var out []models.Reading
	for _, r := range f.readings[sensorID] {
		if !r.Timestamp.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStats) CountCalibrationsSince(since time.Time) (int64, error) {
	var n int64
	for _, c := range f.calibrations {
		if !c.AppliedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStats) CountCalibrationsByMethodSince(method string, since time.Time) (int64, error) {
	var n int64
	for _, c := range f.calibrations {
		if c.Method == method && !c.AppliedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func statsNow() time.Time {
	return time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
}

func newTestAggregator(t *testing.T, data *fakeStats) (*Aggregator, *mlmodel.Store) {
	t.Helper()
	store, err := mlmodel.NewStore(t.TempDir())
	require.NoError(t, err)
	a := NewAggregator(data, store)
	a.now = statsNow
	return a, store
}

func TestStatisticsEmptyPlatformDefaults(t *testing.T) {
	a, _ := newTestAggregator(t, &fakeStats{})
	stats, err := a.Statistics()
	require.NoError(t, err)

	assert.Equal(t, 0, stats.TotalModels)
	assert.Equal(t, 0, stats.ActiveModels)
	assert.Equal(t, int64(0), stats.TotalSensors)
	assert.Equal(t, 95.0, stats.AnomalyDetectionRate)
	assert.Equal(t, 92.0, stats.DriftPredictionAccuracy)
	assert.Equal(t, 88.0, stats.CalibrationImprovement)
	assert.Empty(t, stats.RecentPredictions)
}

func TestDetectionRateFromSeverityMix(t *testing.T) {
	recent := statsNow().AddDate(0, 0, -1)
	data := &fakeStats{
		anomalies: []models.Anomaly{
			{Severity: models.SeverityCritical, Timestamp: recent},
			{Severity: models.SeverityCritical, Timestamp: recent},
			{Severity: models.SeverityHigh, Timestamp: recent},
			{Severity: models.SeverityLow, Timestamp: recent},
			// Outside the 7-day window, must not count.
			{Severity: models.SeverityCritical, Timestamp: statsNow().AddDate(0, 0, -9)},
		},
	}
	a, _ := newTestAggregator(t, data)

	// 85 + 2*2 critical + 1*1 high = 90.
	assert.Equal(t, 90.0, a.detectionRate(statsNow()))
}

func TestDetectionRateCapped(t *testing.T) {
	recent := statsNow().AddDate(0, 0, -1)
	var anomalies []models.Anomaly
	for i := 0; i < 20; i++ {
		anomalies = append(anomalies, models.Anomaly{Severity: models.SeverityCritical, Timestamp: recent})
	}
	a, _ := newTestAggregator(t, &fakeStats{anomalies: anomalies})
	assert.Equal(t, 100.0, a.detectionRate(statsNow()))
}

func TestDriftAccuracyTracksObservedDrift(t *testing.T) {
	recent := statsNow().AddDate(0, 0, -1)
	readings := make([]models.Reading, 8)
	for i := range readings {
		// Constant 4% over baseline.
		readings[i] = models.Reading{SensorID: 1, RawValue: 104, Timestamp: recent}
	}
	data := &fakeStats{
		sensors:  []models.Sensor{{ID: 1, Name: "t-1", Value: 100}},
		readings: map[uint][]models.Reading{1: readings},
	}
	a, _ := newTestAggregator(t, data)

	assert.InDelta(t, 96.0, a.driftAccuracy(statsNow()), 1e-9)
}

func TestDriftAccuracyClamped(t *testing.T) {
	recent := statsNow().AddDate(0, 0, -1)
	readings := make([]models.Reading, 8)
	for i := range readings {
		// 40% off baseline would push accuracy to 60; clamp holds 85.
		readings[i] = models.Reading{SensorID: 1, RawValue: 140, Timestamp: recent}
	}
	data := &fakeStats{
		sensors:  []models.Sensor{{ID: 1, Value: 100}},
		readings: map[uint][]models.Reading{1: readings},
	}
	a, _ := newTestAggregator(t, data)
	assert.Equal(t, 85.0, a.driftAccuracy(statsNow()))
}

func TestCalibrationImprovement(t *testing.T) {
	recent := statsNow().AddDate(0, 0, -5)
	data := &fakeStats{
		calibrations: []models.Calibration{
			{Method: "adaptive", AppliedAt: recent},
			{Method: "adaptive", AppliedAt: recent},
			{Method: "basic", AppliedAt: recent},
			{Method: "basic", AppliedAt: statsNow().AddDate(0, 0, -40)},
		},
	}
	a, _ := newTestAggregator(t, data)

	// 80 + 3*2 adaptive + 0.5*3 in window = 87.5.
	assert.InDelta(t, 87.5, a.calibrationImprovement(statsNow()), 1e-9)
}

func TestStatisticsCountsAndInventory(t *testing.T) {
	data := &fakeStats{
		sensors: []models.Sensor{{ID: 1, Name: "t-1", Value: 100}},
		readings: map[uint][]models.Reading{
			1: {{SensorID: 1, RawValue: 100, Timestamp: statsNow()}},
		},
		anomalies:    []models.Anomaly{{SensorID: 1, Timestamp: statsNow()}},
		calibrations: []models.Calibration{{SensorID: 1, AppliedAt: statsNow()}},
	}
	a, store := newTestAggregator(t, data)
	require.NoError(t, store.Put(mlmodel.KindAnomaly, 1, &mlmodel.LinearRegression{}))
	require.NoError(t, store.Put(mlmodel.KindDrift, 99, &mlmodel.LinearRegression{}))

	stats, err := a.Statistics()
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalModels)
	assert.Equal(t, 2, stats.ActiveModels)
	assert.Equal(t, int64(1), stats.TotalSensors)
	assert.Equal(t, int64(1), stats.TotalReadings)
	assert.Equal(t, int64(1), stats.TotalAnomalies)
	assert.Equal(t, int64(1), stats.TotalCalibrations)
	require.Len(t, stats.RecentPredictions, 2)

	names := map[string]bool{}
	for _, p := range stats.RecentPredictions {
		names[p.SensorName] = true
	}
	assert.True(t, names["t-1"])
	// An artifact with no matching sensor is surfaced as all_sensors.
	assert.True(t, names["all_sensors"])
}
