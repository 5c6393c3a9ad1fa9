package calib

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensor-calibration-platform/mlmodel"
	"sensor-calibration-platform/models"
)

type fakeCalibrations struct {
	history []models.Calibration
}

func (f *fakeCalibrations) CalibrationsAsc(sensorID uint) ([]models.Calibration, error) {
	return f.history, nil
}

func calSensor(baseline float64) models.Sensor {
	return models.Sensor{ID: 1, Name: "flow-1", Type: models.SensorFlow, Value: baseline}
}

func TestBasicCorrectorTenPercentTowardBaseline(t *testing.T) {
	c := BasicCorrector{}
	out, err := c.Correct(calSensor(100), 90)
	require.NoError(t, err)

	assert.Equal(t, ModelBasicLinear, out.ModelUsed)
	assert.InDelta(t, 1.0, out.CorrectionFactor, 1e-9)
	assert.InDelta(t, 91.0, out.CorrectedValue, 1e-9)
}

func TestBasicCorrectorZeroBaselinePassthrough(t *testing.T) {
	c := BasicCorrector{}
	out, err := c.Correct(calSensor(0), 42)
	require.NoError(t, err)
	assert.Equal(t, 42.0, out.CorrectedValue)
	assert.Equal(t, 0.0, out.CorrectionFactor)
}

func TestAdaptiveCorrectorThinHistoryPassthrough(t *testing.T) {
	c := &AdaptiveCorrector{Calibrations: &fakeCalibrations{
		history: []models.Calibration{{SensorID: 1, CorrectedValue: 99}},
	}}
	out, err := c.Correct(calSensor(100), 90)
	require.NoError(t, err)
	assert.Equal(t, ModelAdaptiveHistory, out.ModelUsed)
	assert.Equal(t, 90.0, out.CorrectedValue)
}

func TestAdaptiveCorrectorIdentityFit(t *testing.T) {
	// The history fit maps corrected values onto themselves, so the
	// resulting model is the identity line.
	history := make([]models.Calibration, 4)
	for i := range history {
		history[i] = models.Calibration{
			SensorID:       1,
			CorrectedValue: 95 + float64(i)*2,
			AppliedAt:      time.Now().AddDate(0, 0, -i),
		}
	}
	c := &AdaptiveCorrector{Calibrations: &fakeCalibrations{history: history}}
	out, err := c.Correct(calSensor(100), 90)
	require.NoError(t, err)

	assert.Equal(t, ModelAdaptiveHistory, out.ModelUsed)
	assert.InDelta(t, 90.0, out.CorrectedValue, 1e-6)
}

func TestAdaptiveCorrectorDegenerateHistoryPassthrough(t *testing.T) {
	// All corrected values identical: the fit is singular and the raw value
	// passes through.
	history := make([]models.Calibration, 3)
	for i := range history {
		history[i] = models.Calibration{SensorID: 1, CorrectedValue: 100}
	}
	c := &AdaptiveCorrector{Calibrations: &fakeCalibrations{history: history}}
	out, err := c.Correct(calSensor(100), 93)
	require.NoError(t, err)
	assert.Equal(t, 93.0, out.CorrectedValue)
}

func TestModelCorrectorFallsBackWithoutArtifact(t *testing.T) {
	store, err := mlmodel.NewStore(t.TempDir())
	require.NoError(t, err)

	c := &ModelCorrector{Models: store}
	out, err := c.Correct(calSensor(100), 90)
	require.NoError(t, err)
	assert.Equal(t, ModelBasicLinear, out.ModelUsed)
	assert.InDelta(t, 91.0, out.CorrectedValue, 1e-9)
}

func TestModelCorrectorUsesArtifact(t *testing.T) {
	store, err := mlmodel.NewStore(t.TempDir())
	require.NoError(t, err)

	// Persisted mapping: corrected = raw*1.05 + 1.
	model := mlmodel.LinearRegression{Weights: []float64{1.05}, Intercept: 1}
	require.NoError(t, store.Put(mlmodel.KindCalibration, 1, &model))

	c := &ModelCorrector{Models: store}
	out, err := c.Correct(calSensor(100), 90)
	require.NoError(t, err)

	assert.Equal(t, ModelTrainedRegression, out.ModelUsed)
	assert.InDelta(t, 95.5, out.CorrectedValue, 1e-9)
	assert.InDelta(t, 5.5, out.CorrectionFactor, 1e-9)
}
