package analytics

import (
	"math"
	"time"

	"sensor-calibration-platform/features"
	"sensor-calibration-platform/mlmodel"
	"sensor-calibration-platform/models"
	"sensor-calibration-platform/trainer"
)

// StatsSource is the record-store surface the aggregator reads.
type StatsSource interface {
	Sensors() ([]models.Sensor, error)
	CountSensors() (int64, error)
	CountAllReadings() (int64, error)
	CountAllAnomalies() (int64, error)
	CountAllCalibrations() (int64, error)
	CountAnomaliesSince(since time.Time) (int64, error)
	CountAnomaliesBySeveritySince(severity models.Severity, since time.Time) (int64, error)
	SensorsWithReadingsSince(since time.Time) ([]models.Sensor, error)
	ReadingsSince(sensorID uint, since time.Time) ([]models.Reading, error)
	CountCalibrationsSince(since time.Time) (int64, error)
	CountCalibrationsByMethodSince(method string, since time.Time) (int64, error)
}

// PredictionEvent is one row of the dashboard's recent-model feed.
type PredictionEvent struct {
	SensorName     string    `json:"sensor_name"`
	PredictionType string    `json:"prediction_type"`
	Timestamp      time.Time `json:"timestamp"`
	Active         bool      `json:"active"`
}

// Statistics is the dashboard rollup of model inventory and derived quality
// metrics across all sensors.
type Statistics struct {
	TotalModels             int                    `json:"total_models"`
	ActiveModels            int                    `json:"active_models"`
	TotalSensors            int64                  `json:"total_sensors"`
	TotalReadings           int64                  `json:"total_readings"`
	TotalAnomalies          int64                  `json:"total_anomalies"`
	TotalCalibrations       int64                  `json:"total_calibrations"`
	AnomalyDetectionRate    float64                `json:"anomaly_detection_rate"`
	DriftPredictionAccuracy float64                `json:"drift_prediction_accuracy"`
	CalibrationImprovement  float64                `json:"calibration_improvement"`
	RecentPredictions       []PredictionEvent      `json:"recent_predictions"`
	ModelInfo               []mlmodel.ArtifactInfo `json:"model_info"`
}

// Aggregator derives the dashboard statistics from the record store and the
// model artifact inventory.
type Aggregator struct {
	data   StatsSource
	models *mlmodel.Store
	now    func() time.Time
}

func NewAggregator(data StatsSource, models *mlmodel.Store) *Aggregator {
	return &Aggregator{data: data, models: models, now: time.Now}
}

// Statistics computes the full rollup. Individual metric failures degrade to
// their documented defaults rather than failing the whole call.
func (a *Aggregator) Statistics() (Statistics, error) {
	inventory, err := a.models.List()
	if err != nil {
		inventory = nil
	}

	now := a.now()
	active := 0
	for _, m := range inventory {
		if now.Sub(m.CreatedAt) <= trainer.StalenessAge {
			active++
		}
	}

	stats := Statistics{
		TotalModels:             len(inventory),
		ActiveModels:            active,
		AnomalyDetectionRate:    a.detectionRate(now),
		DriftPredictionAccuracy: a.driftAccuracy(now),
		CalibrationImprovement:  a.calibrationImprovement(now),
		RecentPredictions:       a.recentPredictions(inventory, now),
		ModelInfo:               inventory,
	}

	if stats.TotalSensors, err = a.data.CountSensors(); err != nil {
		return stats, err
	}
	if stats.TotalReadings, err = a.data.CountAllReadings(); err != nil {
		return stats, err
	}
	if stats.TotalAnomalies, err = a.data.CountAllAnomalies(); err != nil {
		return stats, err
	}
	if stats.TotalCalibrations, err = a.data.CountAllCalibrations(); err != nil {
		return stats, err
	}
	return stats, nil
}

// detectionRate scores the past week's anomaly mix: detecting critical and
// high severity issues counts for the rate, defaulting high when the week is
// quiet.
func (a *Aggregator) detectionRate(now time.Time) float64 {
	weekAgo := now.AddDate(0, 0, -7)
	total, err := a.data.CountAnomaliesSince(weekAgo)
	if err != nil {
		return 90.0
	}
	if total == 0 {
		return 95.0
	}
	critical, err := a.data.CountAnomaliesBySeveritySince(models.SeverityCritical, weekAgo)
	if err != nil {
		return 90.0
	}
	high, err := a.data.CountAnomaliesBySeveritySince(models.SeverityHigh, weekAgo)
	if err != nil {
		return 90.0
	}
	rate := 85.0 + float64(critical)*2 + float64(high)
	return math.Min(rate, 100.0)
}

// driftAccuracy is inversely tied to the average absolute drift observed
// across sensors with recent readings, clamped to [85, 98].
func (a *Aggregator) driftAccuracy(now time.Time) float64 {
	weekAgo := now.AddDate(0, 0, -7)
	sensors, err := a.data.SensorsWithReadingsSince(weekAgo)
	if err != nil || len(sensors) == 0 {
		return 92.0
	}

	totalDrift := 0.0
	sensorCount := 0
	for _, sensor := range sensors {
		readings, err := a.data.ReadingsSince(sensor.ID, weekAgo)
		if err != nil || len(readings) <= 5 {
			continue
		}
		values := make([]float64, len(readings))
		for i, r := range readings {
			values[i] = r.RawValue
		}
		baseline := sensor.Value
		if baseline == 0 {
			baseline = features.Mean(values)
		}
		if baseline == 0 {
			continue
		}
		sum := 0.0
		for _, v := range values {
			sum += math.Abs((v - baseline) / baseline * 100)
		}
		totalDrift += sum / float64(len(values))
		sensorCount++
	}
	if sensorCount == 0 {
		return 92.0
	}

	accuracy := math.Max(85.0, 100.0-totalDrift/float64(sensorCount))
	return math.Min(accuracy, 98.0)
}

// calibrationImprovement rewards adaptive-method use and overall calibration
// activity over the past month.
func (a *Aggregator) calibrationImprovement(now time.Time) float64 {
	monthAgo := now.AddDate(0, 0, -30)
	total, err := a.data.CountCalibrationsSince(monthAgo)
	if err != nil {
		return 88.0
	}
	if total == 0 {
		return 88.0
	}
	adaptive, err := a.data.CountCalibrationsByMethodSince("adaptive", monthAgo)
	if err != nil {
		return 88.0
	}
	improvement := 80.0 + float64(adaptive)*3 + float64(total)*0.5
	return math.Min(improvement, 95.0)
}

// recentPredictions surfaces up to 10 artifact entries over up to 5 sensors
// for the dashboard feed.
func (a *Aggregator) recentPredictions(inventory []mlmodel.ArtifactInfo, now time.Time) []PredictionEvent {
	sensors, err := a.data.Sensors()
	if err != nil {
		return []PredictionEvent{}
	}
	names := make(map[uint]string, len(sensors))
	for _, s := range sensors {
		names[s.ID] = s.Name
	}

	events := make([]PredictionEvent, 0, 10)
	seen := make(map[uint]bool)
	for _, m := range inventory {
		if len(events) >= 10 {
			break
		}
		if !seen[m.SensorID] && len(seen) >= 5 {
			continue
		}
		seen[m.SensorID] = true

		name := names[m.SensorID]
		if name == "" {
			name = "all_sensors"
		}
		events = append(events, PredictionEvent{
			SensorName:     name,
			PredictionType: string(m.Kind),
			Timestamp:      m.CreatedAt,
			Active:         now.Sub(m.CreatedAt) <= trainer.StalenessAge,
		})
	}
	return events
}
