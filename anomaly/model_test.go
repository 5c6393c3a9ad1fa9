package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensor-calibration-platform/mlmodel"
	"sensor-calibration-platform/models"
)

func testSensor() models.Sensor {
	return models.Sensor{ID: 1, Name: "temp-1", Type: models.SensorTemperature, Value: 100}
}

func readingsAt(base time.Time, values ...float64) []models.Reading {
	out := make([]models.Reading, len(values))
	for i, v := range values {
		out[i] = models.Reading{
			ID:        uint(i + 1),
			SensorID:  1,
			RawValue:  v,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}
	}
	return out
}

func TestDetectBatchTooFewReadings(t *testing.T) {
	c := &ModelClassifier{}
	findings, err := c.DetectBatch(testSensor(), readingsAt(time.Now(), 100, 101, 99, 100))
	require.NoError(t, err)
	assert.Nil(t, findings)
}

func TestDetectBatchFlagsOutlier(t *testing.T) {
	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	values := make([]float64, 0, 40)
	for i := 0; i < 39; i++ {
		values = append(values, 100+float64(i%3))
	}
	values = append(values, 300)

	c := &ModelClassifier{}
	findings, err := c.DetectBatch(testSensor(), readingsAt(base, values...))
	require.NoError(t, err)
	require.NotEmpty(t, findings)

	var flagged *Finding
	for i := range findings {
		if findings[i].Value == 300 {
			flagged = &findings[i]
		}
	}
	require.NotNil(t, flagged, "the extreme reading must be among the findings")
	assert.Equal(t, models.AnomalySpike, flagged.Type)
	assert.Equal(t, models.SeverityHigh, flagged.Severity)
	assert.InDelta(t, 200.0, flagged.Deviation, 1e-9)
	assert.Equal(t, 100.0, flagged.Expected)
}

func TestClassifyByMagnitude(t *testing.T) {
	cases := []struct {
		value, expected, deviation float64
		want                       models.AnomalyType
	}{
		{160, 100, 60, models.AnomalySpike},
		{20, 100, -80, models.AnomalySpike}, // |dev| > 50 wins over the dropout band
		{130, 100, 30, models.AnomalyNoise},
		{115, 100, 15, models.AnomalyCalibrationError},
		{105, 100, 5, models.AnomalyDrift},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classifyByMagnitude(tc.value, tc.expected, tc.deviation),
			"value=%v deviation=%v", tc.value, tc.deviation)
	}
}

func TestBatchSeverity(t *testing.T) {
	assert.Equal(t, models.SeverityMedium, batchSeverity(15))
	assert.Equal(t, models.SeverityHigh, batchSeverity(15.1))
	assert.Equal(t, models.SeverityHigh, batchSeverity(-40))
}

func TestScoreValueFallsBackWithoutArtifact(t *testing.T) {
	store, err := mlmodel.NewStore(t.TempDir())
	require.NoError(t, err)
	c := &ModelClassifier{Models: store}

	res := c.ScoreValue(testSensor(), 150, time.Now())
	assert.Equal(t, ModelBasicThreshold, res.ModelUsed)
	assert.True(t, res.IsAnomaly)
	assert.InDelta(t, 50.0, res.Score, 1e-9)
	assert.InDelta(t, 5.0, res.Confidence, 1e-9)

	res = c.ScoreValue(testSensor(), 110, time.Now())
	assert.Equal(t, ModelBasicThreshold, res.ModelUsed)
	assert.False(t, res.IsAnomaly)
}

func TestScoreValueUsesPersistedForest(t *testing.T) {
	store, err := mlmodel.NewStore(t.TempDir())
	require.NoError(t, err)

	X := make([][]float64, 0, 40)
	for i := 0; i < 40; i++ {
		X = append(X, []float64{100 + float64(i%3), float64(i % 24), float64(i % 7)})
	}
	forest, err := mlmodel.FitIsolationForest(X, Contamination, mlmodel.DefaultTrees, mlmodel.DefaultSeed)
	require.NoError(t, err)
	require.NoError(t, store.Put(mlmodel.KindAnomaly, 1, forest))

	c := &ModelClassifier{Models: store}
	at := time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)

	res := c.ScoreValue(testSensor(), 500, at)
	assert.Equal(t, ModelTrainedForest, res.ModelUsed)
	assert.True(t, res.IsAnomaly)

	res = c.ScoreValue(testSensor(), 101, at)
	assert.Equal(t, ModelTrainedForest, res.ModelUsed)
}
