package drift

import (
	"sensor-calibration-platform/features"
	"sensor-calibration-platform/mlmodel"
	"sensor-calibration-platform/models"
)

const (
	ModelTrainedRegression = "trained_linear_regression"
	ModelSimpleTrend       = "simple_linear_trend"
	ModelNoData            = "no_data"

	// DefaultFuturePoints is the forecast horizon when callers don't ask
	// for a specific one.
	DefaultFuturePoints = 5

	minTrendReadings  = 3
	recentWindow      = 10
	trainedConfidence = 0.8
)

// Forecast is an ordered sequence of predicted drift-percent values, one per
// future step, tagged with the strategy that produced it.
type Forecast struct {
	Predictions []float64 `json:"predictions"`
	ModelUsed   string    `json:"model_used"`
	Confidence  float64   `json:"confidence,omitempty"`
}

// ReadingSource provides the reading windows the predictors operate on.
type ReadingSource interface {
	// ReadingsAsc returns all readings for a sensor, oldest first.
	ReadingsAsc(sensorID uint) ([]models.Reading, error)
	// RecentReadings returns up to limit readings, newest first.
	RecentReadings(sensorID uint, limit int) ([]models.Reading, error)
}

// Predictor forecasts future drift for a sensor.
type Predictor interface {
	Predict(sensor models.Sensor, futurePoints int) (Forecast, error)
}

// TrendPredictor extrapolates a least-squares linear trend over the full
// reading history. It is the heuristic strategy and the fallback for the
// trained one.
type TrendPredictor struct {
	Readings ReadingSource
}

func (p *TrendPredictor) Predict(sensor models.Sensor, futurePoints int) (Forecast, error) {
	if futurePoints <= 0 {
		futurePoints = DefaultFuturePoints
	}
	readings, err := p.Readings.ReadingsAsc(sensor.ID)
	if err != nil {
		return Forecast{}, err
	}

	if len(readings) < minTrendReadings {
		// Explicit degenerate case, not an error.
		return Forecast{
			Predictions: make([]float64, futurePoints),
			ModelUsed:   ModelNoData,
		}, nil
	}

	values := make([]float64, len(readings))
	for i, r := range readings {
		values[i] = r.RawValue
	}
	slope, _ := mlmodel.FitLine(values)
	lastValue := values[len(values)-1]

	baseline := sensor.Value
	if baseline == 0 {
		baseline = lastValue
	}

	predictions := make([]float64, futurePoints)
	for i := 0; i < futurePoints; i++ {
		predicted := lastValue + slope*float64(i+1)
		if baseline != 0 {
			predictions[i] = (predicted - baseline) / baseline * 100
		}
	}
	return Forecast{
		Predictions: predictions,
		ModelUsed:   ModelSimpleTrend,
	}, nil
}

// ModelPredictor runs the persisted regression in an autoregressive walk:
// each predicted drift step feeds back into the value feature before the
// next step. Missing artifacts and thin histories fall back to the trend
// strategy.
type ModelPredictor struct {
	Models   *mlmodel.Store
	Readings ReadingSource
	Fallback *TrendPredictor
}

func (p *ModelPredictor) Predict(sensor models.Sensor, futurePoints int) (Forecast, error) {
	if futurePoints <= 0 {
		futurePoints = DefaultFuturePoints
	}

	var model mlmodel.LinearRegression
	if p.Models == nil || p.Models.Get(mlmodel.KindDrift, sensor.ID, &model) != nil {
		return p.Fallback.Predict(sensor, futurePoints)
	}

	recent, err := p.Readings.RecentReadings(sensor.ID, recentWindow)
	if err != nil {
		return Forecast{}, err
	}
	if len(recent) < minTrendReadings {
		return p.Fallback.Predict(sensor, futurePoints)
	}

	// recent is newest-first: values[0] is the current reading.
	values := make([]float64, len(recent))
	for i, r := range recent {
		values[i] = r.RawValue
	}
	baseline := sensor.Value
	if baseline == 0 {
		baseline = features.Mean(values[:min(3, len(values))])
	}

	w := min(5, len(values))
	rollingMean := features.Mean(values[:w])
	rollingStd := features.Std(values[:w])
	hoursSpanned := recent[0].Timestamp.Sub(recent[len(recent)-1].Timestamp).Hours()

	x := []float64{values[0], rollingMean, rollingStd, hoursSpanned}
	predictions := make([]float64, 0, futurePoints)
	for i := 0; i < futurePoints; i++ {
		pred := model.Predict(x)
		predictions = append(predictions, pred)

		x[0] += pred * baseline / 100
		x[3]++
	}
	return Forecast{
		Predictions: predictions,
		ModelUsed:   ModelTrainedRegression,
		Confidence:  trainedConfidence,
	}, nil
}
