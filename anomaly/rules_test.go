package anomaly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensor-calibration-platform/models"
)

func TestClassifyEmptyWindow(t *testing.T) {
	var c RuleClassifier
	assert.Nil(t, c.Classify(10, nil))
}

func TestClassifyDriftRuleWinsOverSpike(t *testing.T) {
	// A jump from 10 to 100 in a long window: the mean successive change
	// (90/5 = 18) already exceeds 5% of baseline, so the drift rule claims
	// the finding before the spike rule is consulted.
	var c RuleClassifier
	f := c.Classify(10, []float64{100, 10, 10, 10, 10, 10})
	require.NotNil(t, f)
	assert.Equal(t, models.AnomalyDrift, f.Type)
	assert.Equal(t, models.SeverityCritical, f.Severity)
	assert.InDelta(t, 900.0, f.Deviation, 1e-9)
}

func TestClassifySpike(t *testing.T) {
	// Short window: drift rule needs 5 readings, so the jump lands on the
	// spike rule.
	var c RuleClassifier
	f := c.Classify(10, []float64{100, 10})
	require.NotNil(t, f)
	assert.Equal(t, models.AnomalySpike, f.Type)
	assert.Equal(t, models.SeverityCritical, f.Severity)
}

func TestClassifySteadyDeclineIsNotRuleOneDrift(t *testing.T) {
	// Declining by 2 per step against baseline 100: mean successive change
	// is 2, under the 5-unit drift threshold. Current value 100 sits inside
	// every other rule's band too, so no finding at all.
	var c RuleClassifier
	f := c.Classify(100, []float64{100, 98, 96, 94, 92})
	assert.Nil(t, f)
}

func TestClassifyDropout(t *testing.T) {
	var c RuleClassifier
	// Previous reading close enough that the spike rule stays quiet.
	f := c.Classify(100, []float64{20, 45})
	require.NotNil(t, f)
	assert.Equal(t, models.AnomalyDropout, f.Type)
	assert.Equal(t, models.SeverityCritical, f.Severity)
}

func TestClassifyNoise(t *testing.T) {
	// Values oscillating around baseline with high variance but no jump
	// larger than 30% between consecutive readings and no trend.
	var c RuleClassifier
	f := c.Classify(100, []float64{112, 88, 112})
	require.NotNil(t, f)
	assert.Equal(t, models.AnomalyNoise, f.Type)
	assert.Equal(t, models.SeverityMedium, f.Severity)
}

func TestClassifyCalibrationError(t *testing.T) {
	// A single reading 20% off baseline: systematic offset band 15%-50%.
	var c RuleClassifier
	f := c.Classify(100, []float64{120})
	require.NotNil(t, f)
	assert.Equal(t, models.AnomalyCalibrationError, f.Type)
	assert.Equal(t, models.SeverityMedium, f.Severity)
}

func TestClassifyFallbackDriftOnZeroBaseline(t *testing.T) {
	// Baseline 0 disables every proportional rule; only the fixed +-10
	// tolerance band remains.
	var c RuleClassifier
	assert.Nil(t, c.Classify(0, []float64{5}))

	f := c.Classify(0, []float64{15})
	require.NotNil(t, f)
	assert.Equal(t, models.AnomalyDrift, f.Type)
	assert.Equal(t, 0.0, f.Deviation)
	assert.Equal(t, models.SeverityLow, f.Severity)
}

func TestClassifyInTolerance(t *testing.T) {
	var c RuleClassifier
	assert.Nil(t, c.Classify(100, []float64{105, 103, 104}))
}

func TestSeverityBreakpoints(t *testing.T) {
	assert.Equal(t, models.SeverityLow, models.SeverityFor(10))
	assert.Equal(t, models.SeverityMedium, models.SeverityFor(10.5))
	assert.Equal(t, models.SeverityMedium, models.SeverityFor(20))
	assert.Equal(t, models.SeverityHigh, models.SeverityFor(-21))
	assert.Equal(t, models.SeverityHigh, models.SeverityFor(50))
	assert.Equal(t, models.SeverityCritical, models.SeverityFor(51))
}

func TestTolerance(t *testing.T) {
	assert.Equal(t, 20.0, Tolerance(100))
	assert.Equal(t, 20.0, Tolerance(-100))
	assert.Equal(t, 10.0, Tolerance(0))
}

func TestDeviationPercent(t *testing.T) {
	assert.Equal(t, 10.0, DeviationPercent(110, 100))
	assert.Equal(t, -50.0, DeviationPercent(50, 100))
	assert.Equal(t, 0.0, DeviationPercent(42, 0))
}
