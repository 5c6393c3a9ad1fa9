package calib

import (
	"sensor-calibration-platform/mlmodel"
	"sensor-calibration-platform/models"
)

const (
	ModelBasicLinear       = "basic_linear"
	ModelAdaptiveHistory   = "adaptive_history"
	ModelTrainedRegression = "trained_linear_regression"

	minAdaptiveHistory = 2
)

// Correction is the result of applying a correction strategy to a raw value.
type Correction struct {
	CorrectedValue   float64 `json:"corrected_value"`
	CorrectionFactor float64 `json:"correction_factor"`
	ModelUsed        string  `json:"model_used"`
}

// CalibrationSource provides calibration history, oldest first.
type CalibrationSource interface {
	CalibrationsAsc(sensorID uint) ([]models.Calibration, error)
}

// Corrector maps a raw reading to a corrected value.
type Corrector interface {
	Correct(sensor models.Sensor, raw float64) (Correction, error)
}

// BasicCorrector applies a fixed proportional correction: 10% of the error
// between the raw value and the baseline.
type BasicCorrector struct{}

func (BasicCorrector) Correct(sensor models.Sensor, raw float64) (Correction, error) {
	baseline := sensor.Value
	if baseline == 0 {
		baseline = raw
	}
	factor := (baseline - raw) * 0.1
	return Correction{
		CorrectedValue:   raw + factor,
		CorrectionFactor: factor,
		ModelUsed:        ModelBasicLinear,
	}, nil
}

// AdaptiveCorrector fits a regression over the corrected-value history on
// each call. With fewer than 2 records the raw value passes through
// unchanged.
//
// NOTE: the history fit maps corrected values onto themselves, so the
// prediction degenerates to near-identity. Kept for compatibility with the
// established behavior; the trained-pair raw-to-corrected mapping lives in
// ModelCorrector. See DESIGN.md.
type AdaptiveCorrector struct {
	Calibrations CalibrationSource
}

func (c *AdaptiveCorrector) Correct(sensor models.Sensor, raw float64) (Correction, error) {
	history, err := c.Calibrations.CalibrationsAsc(sensor.ID)
	if err != nil {
		return Correction{}, err
	}
	if len(history) < minAdaptiveHistory {
		return Correction{
			CorrectedValue: raw,
			ModelUsed:      ModelAdaptiveHistory,
		}, nil
	}

	X := make([][]float64, len(history))
	y := make([]float64, len(history))
	for i, cal := range history {
		X[i] = []float64{cal.CorrectedValue}
		y[i] = cal.CorrectedValue
	}
	var model mlmodel.LinearRegression
	if err := model.Fit(X, y); err != nil {
		// Degenerate history (all identical values); pass through.
		return Correction{
			CorrectedValue: raw,
			ModelUsed:      ModelAdaptiveHistory,
		}, nil
	}
	corrected := model.Predict([]float64{raw})
	return Correction{
		CorrectedValue:   corrected,
		CorrectionFactor: corrected - raw,
		ModelUsed:        ModelAdaptiveHistory,
	}, nil
}

// ModelCorrector predicts the corrected value from the sensor's persisted
// raw-to-corrected regression, falling back to the basic strategy when no
// artifact is loadable.
type ModelCorrector struct {
	Models *mlmodel.Store
}

func (c *ModelCorrector) Correct(sensor models.Sensor, raw float64) (Correction, error) {
	var model mlmodel.LinearRegression
	if c.Models == nil || c.Models.Get(mlmodel.KindCalibration, sensor.ID, &model) != nil {
		return BasicCorrector{}.Correct(sensor, raw)
	}
	corrected := model.Predict([]float64{raw})
	return Correction{
		CorrectedValue:   corrected,
		CorrectionFactor: corrected - raw,
		ModelUsed:        ModelTrainedRegression,
	}, nil
}
