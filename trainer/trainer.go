package trainer

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"sensor-calibration-platform/anomaly"
	"sensor-calibration-platform/features"
	"sensor-calibration-platform/mlmodel"
	"sensor-calibration-platform/models"
)

const (
	minAnomalyReadings   = 10
	minDriftReadings     = 20
	minCalibrations      = 5
	minCalibrationPairs  = 3
	readingsBeforeWindow = 3
	minDriftTrainingRows = 10

	StatusSuccess = "success"
	StatusError   = "error"
)

// TrainResult is the structured per-model training outcome. Training
// failures are encoded here and never propagated as errors, so one sensor's
// failure cannot abort a bulk run.
type TrainResult struct {
	Status            string       `json:"status"`
	Message           string       `json:"message"`
	Kind              mlmodel.Kind `json:"kind"`
	Samples           int          `json:"training_samples,omitempty"`
	DetectedAnomalies int          `json:"detected_anomalies,omitempty"`
	MSE               float64      `json:"mse,omitempty"`
	SensorID          uint         `json:"sensor_id,omitempty"`
	SensorName        string       `json:"sensor_name,omitempty"`
}

// DataSource is the record-store surface the trainer consumes.
type DataSource interface {
	Sensors() ([]models.Sensor, error)
	SensorByID(id uint) (models.Sensor, error)
	ReadingsAsc(sensorID uint) ([]models.Reading, error)
	AllReadingsAsc() ([]models.Reading, error)
	CalibrationsAsc(sensorID uint) ([]models.Calibration, error)
	// ReadingsBefore returns up to limit readings strictly before t, newest first.
	ReadingsBefore(sensorID uint, t time.Time, limit int) ([]models.Reading, error)
	CountReadings(sensorID uint) (int64, error)
	CountCalibrations(sensorID uint) (int64, error)
}

// Trainer owns the model lifecycle: it fits, persists, and ages out the
// trained artifacts per (kind, sensor). Prediction paths only ever read.
type Trainer struct {
	data   DataSource
	models *mlmodel.Store
	log    *zap.Logger
}

func New(data DataSource, store *mlmodel.Store, log *zap.Logger) *Trainer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Trainer{data: data, models: store, log: log}
}

func errResult(kind mlmodel.Kind, sensorID uint, format string, args ...any) TrainResult {
	return TrainResult{
		Status:   StatusError,
		Message:  fmt.Sprintf(format, args...),
		Kind:     kind,
		SensorID: sensorID,
	}
}

// TrainAnomalyModel fits an isolation forest over {value, hour, weekday}
// features. With sensorID 0 it trains across all sensors' readings under a
// shared all-sensors key.
func (t *Trainer) TrainAnomalyModel(sensorID uint) TrainResult {
	var (
		readings []models.Reading
		sensor   models.Sensor
		err      error
	)
	if sensorID != 0 {
		sensor, err = t.data.SensorByID(sensorID)
		if err != nil {
			return errResult(mlmodel.KindAnomaly, sensorID, "sensor lookup failed: %v", err)
		}
		readings, err = t.data.ReadingsAsc(sensorID)
	} else {
		readings, err = t.data.AllReadingsAsc()
	}
	if err != nil {
		return errResult(mlmodel.KindAnomaly, sensorID, "loading readings failed: %v", err)
	}
	if len(readings) < minAnomalyReadings {
		return errResult(mlmodel.KindAnomaly, sensorID,
			"not enough data for training (need at least %d readings)", minAnomalyReadings)
	}

	points := make([]features.Point, len(readings))
	for i, r := range readings {
		points[i] = features.Point{Value: r.RawValue, Timestamp: r.Timestamp}
	}
	vectors, err := features.Extract(points, sensor.Value)
	if err != nil {
		return errResult(mlmodel.KindAnomaly, sensorID, "feature extraction failed: %v", err)
	}
	X := make([][]float64, len(vectors))
	for i, v := range vectors {
		X[i] = []float64{v.Value, v.HourOfDay, v.DayOfWeek}
	}

	forest, err := mlmodel.FitIsolationForest(X, anomaly.Contamination, mlmodel.DefaultTrees, mlmodel.DefaultSeed)
	if err != nil {
		return errResult(mlmodel.KindAnomaly, sensorID, "training failed: %v", err)
	}
	if err := t.models.Put(mlmodel.KindAnomaly, sensorID, forest); err != nil {
		return errResult(mlmodel.KindAnomaly, sensorID, "persisting model failed: %v", err)
	}

	detected := 0
	for _, x := range X {
		if forest.Predict(x) == -1 {
			detected++
		}
	}

	t.log.Info("anomaly model trained",
		zap.Uint("sensor_id", sensorID),
		zap.Int("samples", len(readings)),
		zap.Int("detected", detected))
	return TrainResult{
		Status:            StatusSuccess,
		Message:           "Anomaly detection model trained successfully",
		Kind:              mlmodel.KindAnomaly,
		Samples:           len(readings),
		DetectedAnomalies: detected,
		SensorID:          sensorID,
		SensorName:        sensor.Name,
	}
}

// TrainDriftModel fits a regression predicting the next step's drift percent
// from the current reading's features.
func (t *Trainer) TrainDriftModel(sensorID uint) TrainResult {
	sensor, err := t.data.SensorByID(sensorID)
	if err != nil {
		return errResult(mlmodel.KindDrift, sensorID, "sensor lookup failed: %v", err)
	}
	readings, err := t.data.ReadingsAsc(sensorID)
	if err != nil {
		return errResult(mlmodel.KindDrift, sensorID, "loading readings failed: %v", err)
	}
	if len(readings) < minDriftReadings {
		return errResult(mlmodel.KindDrift, sensorID,
			"not enough data for drift prediction (need at least %d readings)", minDriftReadings)
	}

	values := make([]float64, len(readings))
	points := make([]features.Point, len(readings))
	for i, r := range readings {
		values[i] = r.RawValue
		points[i] = features.Point{Value: r.RawValue, Timestamp: r.Timestamp}
	}

	baseline := sensor.Value
	if baseline == 0 {
		baseline = features.Mean(values[:5])
	}
	driftValues := make([]float64, len(values))
	for i, v := range values {
		if baseline != 0 {
			driftValues[i] = (v - baseline) / baseline * 100
		} else {
			driftValues[i] = v
		}
	}

	vectors, err := features.Extract(points, baseline)
	if err != nil {
		return errResult(mlmodel.KindDrift, sensorID, "feature extraction failed: %v", err)
	}

	// Each row predicts the next step's drift from the current features.
	X := make([][]float64, 0, len(vectors)-1)
	y := make([]float64, 0, len(vectors)-1)
	for i := 0; i < len(vectors)-1; i++ {
		v := vectors[i]
		X = append(X, []float64{v.Value, v.RollingMean, v.RollingStd, v.HoursSinceStart})
		y = append(y, driftValues[i+1])
	}
	if len(X) < minDriftTrainingRows {
		return errResult(mlmodel.KindDrift, sensorID, "not enough data for training")
	}

	var model mlmodel.LinearRegression
	if err := model.Fit(X, y); err != nil {
		return errResult(mlmodel.KindDrift, sensorID, "training failed: %v", err)
	}
	if err := t.models.Put(mlmodel.KindDrift, sensorID, &model); err != nil {
		return errResult(mlmodel.KindDrift, sensorID, "persisting model failed: %v", err)
	}

	mse := model.MSE(X, y)
	t.log.Info("drift model trained",
		zap.Uint("sensor_id", sensorID),
		zap.Int("samples", len(X)),
		zap.Float64("mse", mse))
	return TrainResult{
		Status:     StatusSuccess,
		Message:    "Drift prediction model trained successfully",
		Kind:       mlmodel.KindDrift,
		Samples:    len(X),
		MSE:        mse,
		SensorID:   sensorID,
		SensorName: sensor.Name,
	}
}

// TrainCalibrationModel fits the raw-to-corrected regression from
// calibration records paired with the readings that preceded them.
func (t *Trainer) TrainCalibrationModel(sensorID uint) TrainResult {
	sensor, err := t.data.SensorByID(sensorID)
	if err != nil {
		return errResult(mlmodel.KindCalibration, sensorID, "sensor lookup failed: %v", err)
	}
	calibrations, err := t.data.CalibrationsAsc(sensorID)
	if err != nil {
		return errResult(mlmodel.KindCalibration, sensorID, "loading calibrations failed: %v", err)
	}
	if len(calibrations) < minCalibrations {
		return errResult(mlmodel.KindCalibration, sensorID,
			"not enough calibration data (need at least %d calibrations)", minCalibrations)
	}

	var X [][]float64
	var y []float64
	for _, cal := range calibrations {
		before, err := t.data.ReadingsBefore(sensorID, cal.AppliedAt, readingsBeforeWindow)
		if err != nil || len(before) == 0 {
			continue
		}
		raws := make([]float64, len(before))
		for i, r := range before {
			raws[i] = r.RawValue
		}
		X = append(X, []float64{features.Mean(raws)})
		y = append(y, cal.CorrectedValue)
	}
	if len(X) < minCalibrationPairs {
		return errResult(mlmodel.KindCalibration, sensorID, "not enough calibration data with readings")
	}

	var model mlmodel.LinearRegression
	if err := model.Fit(X, y); err != nil {
		return errResult(mlmodel.KindCalibration, sensorID, "training failed: %v", err)
	}
	if err := t.models.Put(mlmodel.KindCalibration, sensorID, &model); err != nil {
		return errResult(mlmodel.KindCalibration, sensorID, "persisting model failed: %v", err)
	}

	mse := model.MSE(X, y)
	t.log.Info("calibration model trained",
		zap.Uint("sensor_id", sensorID),
		zap.Int("samples", len(X)),
		zap.Float64("mse", mse))
	return TrainResult{
		Status:     StatusSuccess,
		Message:    "Calibration model trained successfully",
		Kind:       mlmodel.KindCalibration,
		Samples:    len(X),
		MSE:        mse,
		SensorID:   sensorID,
		SensorName: sensor.Name,
	}
}

// Train dispatches on kind.
func (t *Trainer) Train(kind mlmodel.Kind, sensorID uint) TrainResult {
	switch kind {
	case mlmodel.KindAnomaly:
		return t.TrainAnomalyModel(sensorID)
	case mlmodel.KindDrift:
		return t.TrainDriftModel(sensorID)
	case mlmodel.KindCalibration:
		return t.TrainCalibrationModel(sensorID)
	default:
		return errResult(kind, sensorID, "unknown model kind %q", kind)
	}
}

// TrainAll trains every kind for one sensor, or for all sensors when
// sensorID is 0. Per-model failures are reported in the results.
func (t *Trainer) TrainAll(sensorID uint) []TrainResult {
	var sensors []models.Sensor
	if sensorID != 0 {
		s, err := t.data.SensorByID(sensorID)
		if err != nil {
			return []TrainResult{errResult("", sensorID, "sensor lookup failed: %v", err)}
		}
		sensors = []models.Sensor{s}
	} else {
		all, err := t.data.Sensors()
		if err != nil {
			return []TrainResult{errResult("", 0, "listing sensors failed: %v", err)}
		}
		sensors = all
	}

	var results []TrainResult
	for _, s := range sensors {
		for _, kind := range mlmodel.Kinds {
			results = append(results, t.trainSafely(kind, s.ID))
		}
	}
	return results
}

// ModelInventory lists all persisted artifacts.
func (t *Trainer) ModelInventory() ([]mlmodel.ArtifactInfo, error) {
	return t.models.List()
}
