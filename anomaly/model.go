package anomaly

import (
	"math"
	"time"

	"sensor-calibration-platform/features"
	"sensor-calibration-platform/mlmodel"
	"sensor-calibration-platform/models"
)

const (
	// ModelTrainedForest tags results produced by a persisted forest.
	ModelTrainedForest = "trained_isolation_forest"
	// ModelBasicThreshold tags results from the single-threshold fallback.
	ModelBasicThreshold = "basic_threshold"

	// Contamination is the expected outlier fraction at fit time.
	Contamination = 0.1

	minBatchReadings = 5
)

// ScoreResult is a single-value trained-model decision, tagged with the
// path that actually executed so callers can observe fallbacks.
type ScoreResult struct {
	IsAnomaly  bool    `json:"is_anomaly"`
	Confidence float64 `json:"confidence"`
	Score      float64 `json:"anomaly_score"`
	ModelUsed  string  `json:"model_used"`
}

// ModelClassifier is the trained-model strategy. DetectBatch fits a fresh
// forest over the sensor's full history; ScoreValue uses the persisted
// artifact and degrades to a basic threshold check when none is loadable.
type ModelClassifier struct {
	Models *mlmodel.Store
}

// DetectBatch sweeps all readings of a sensor (time-ascending) through an
// isolation forest and classifies the flagged points. Fewer than 5 readings
// yield no findings and no error.
func (c *ModelClassifier) DetectBatch(sensor models.Sensor, readings []models.Reading) ([]Finding, error) {
	if len(readings) < minBatchReadings {
		return nil, nil
	}

	points := make([]features.Point, len(readings))
	for i, r := range readings {
		points[i] = features.Point{Value: r.RawValue, Timestamp: r.Timestamp}
	}
	vectors, err := features.Extract(points, sensor.Value)
	if err != nil {
		return nil, err
	}
	X := make([][]float64, len(vectors))
	for i, v := range vectors {
		X[i] = []float64{v.Value, v.HourOfDay, v.DayOfWeek}
	}

	forest, err := mlmodel.FitIsolationForest(X, Contamination, mlmodel.DefaultTrees, mlmodel.DefaultSeed)
	if err != nil {
		return nil, err
	}

	expected := sensor.Value
	var findings []Finding
	for i, r := range readings {
		if forest.Predict(X[i]) != -1 {
			continue
		}
		deviation := DeviationPercent(r.RawValue, expected)
		findings = append(findings, Finding{
			Type:      classifyByMagnitude(r.RawValue, expected, deviation),
			Value:     r.RawValue,
			Expected:  expected,
			Deviation: deviation,
			Severity:  batchSeverity(deviation),
		})
	}
	return findings, nil
}

// classifyByMagnitude buckets a flagged outlier by deviation from baseline.
// Evaluation is first-match; the ranges overlap on purpose.
func classifyByMagnitude(value, expected, deviation float64) models.AnomalyType {
	d := math.Abs(deviation)
	switch {
	case d > 50:
		return models.AnomalySpike
	case value < expected*0.3:
		return models.AnomalyDropout
	case d > 20 && d < 50:
		return models.AnomalyNoise
	case d > 10 && d < 20:
		return models.AnomalyCalibrationError
	default:
		return models.AnomalyDrift
	}
}

func batchSeverity(deviation float64) models.Severity {
	if math.Abs(deviation) > 15 {
		return models.SeverityHigh
	}
	return models.SeverityMedium
}

// ScoreValue classifies a single reading with the sensor's persisted forest.
// A missing or corrupt artifact transparently degrades to the basic
// threshold check, reported via ModelUsed.
func (c *ModelClassifier) ScoreValue(sensor models.Sensor, value float64, at time.Time) ScoreResult {
	var forest mlmodel.IsolationForest
	if c.Models == nil || c.Models.Get(mlmodel.KindAnomaly, sensor.ID, &forest) != nil {
		return basicThresholdCheck(sensor, value)
	}

	x := []float64{value, float64(at.Hour()), float64(features.Weekday(at))}
	decision := forest.Decision(x)
	return ScoreResult{
		IsAnomaly:  forest.Predict(x) == -1,
		Confidence: math.Abs(decision),
		Score:      decision,
		ModelUsed:  ModelTrainedForest,
	}
}

func basicThresholdCheck(sensor models.Sensor, value float64) ScoreResult {
	baseline := sensor.Value
	tol := Tolerance(baseline)
	deviation := DeviationPercent(value, baseline)
	return ScoreResult{
		IsAnomaly:  value < baseline-tol || value > baseline+tol,
		Confidence: math.Abs(deviation) / 10,
		Score:      deviation,
		ModelUsed:  ModelBasicThreshold,
	}
}
