package anomaly

import (
	"math"

	"sensor-calibration-platform/models"
)

// Finding is one anomaly decision against a sensor's baseline.
type Finding struct {
	Type      models.AnomalyType `json:"type"`
	Value     float64            `json:"value"`
	Expected  float64            `json:"expected"`
	Deviation float64            `json:"deviation"`
	Severity  models.Severity    `json:"severity"`
}

// DeviationPercent is the signed deviation of value from baseline, in
// percent; zero when the baseline is zero.
func DeviationPercent(value, baseline float64) float64 {
	if baseline == 0 {
		return 0
	}
	return (value - baseline) / baseline * 100
}

// Tolerance is the out-of-range band half-width for the fallback checks:
// 20% of |baseline|, or 10 when the baseline is zero.
func Tolerance(baseline float64) float64 {
	if baseline == 0 {
		return 10
	}
	return math.Abs(baseline) * 0.2
}

// RuleClassifier runs the fixed-priority multi-check classification. The
// rule order is a deliberate tie-break policy: the first matching rule wins
// even where numeric ranges overlap.
type RuleClassifier struct{}

// Classify evaluates the newest reading against the sensor baseline and up
// to 10 recent raw values ordered newest-first, with recent[0] being the
// reading under classification. Returns nil when no rule matches.
func (RuleClassifier) Classify(baseline float64, recent []float64) *Finding {
	if len(recent) == 0 {
		return nil
	}
	current := recent[0]
	var anomalyType models.AnomalyType

	// 1. Drift: consistent trend across recent readings.
	if len(recent) >= 5 {
		trend := 0.0
		for i := 0; i < len(recent)-1; i++ {
			trend += recent[i] - recent[i+1]
		}
		trend /= float64(len(recent) - 1)
		if math.Abs(trend) > baseline*0.05 {
			anomalyType = models.AnomalyDrift
		}
	}

	// 2. Spike: sudden large change from the previous reading.
	if anomalyType == "" && len(recent) > 1 {
		if math.Abs(current-recent[1]) > baseline*0.3 {
			anomalyType = models.AnomalySpike
		}
	}

	// 3. Dropout: value collapses well below baseline.
	if anomalyType == "" && current < baseline*0.3 {
		anomalyType = models.AnomalyDropout
	}

	// 4. Noise: high variance around baseline over the 3 newest readings.
	if anomalyType == "" && len(recent) >= 3 {
		variance := 0.0
		for _, v := range recent[:3] {
			diff := v - baseline
			variance += diff * diff
		}
		variance /= 3
		if variance > (baseline*0.1)*(baseline*0.1) {
			anomalyType = models.AnomalyNoise
		}
	}

	// 5. Calibration error: systematic 15-50% offset from baseline.
	if anomalyType == "" {
		offset := math.Abs(current - baseline)
		if offset > baseline*0.15 && offset < baseline*0.5 {
			anomalyType = models.AnomalyCalibrationError
		}
	}

	// 6. Fallback: anything outside the tolerance band counts as drift.
	if anomalyType == "" {
		tol := Tolerance(baseline)
		if current < baseline-tol || current > baseline+tol {
			anomalyType = models.AnomalyDrift
		}
	}

	if anomalyType == "" {
		return nil
	}

	deviation := DeviationPercent(current, baseline)
	return &Finding{
		Type:      anomalyType,
		Value:     current,
		Expected:  baseline,
		Deviation: deviation,
		Severity:  models.SeverityFor(deviation),
	}
}
