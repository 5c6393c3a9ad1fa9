package scheduler

import (
	"fmt"
	"math"
	"time"

	"sensor-calibration-platform/features"
	"sensor-calibration-platform/mlmodel"
	"sensor-calibration-platform/models"
)

const (
	// Forecast points are assumed to be spaced 2 days apart.
	forecastSpacingDays = 2

	driftScheduleThreshold = 5.0
	driftUrgentThreshold   = 10.0

	defaultIntervalDays = 30.0
	calibrationHistory  = 5

	StatusOK               = "ok"
	StatusInsufficientData = "insufficient_data"
)

// Entry is one scheduled calibration.
type Entry struct {
	Date        time.Time `json:"date"`
	Reason      string    `json:"reason"`
	Priority    string    `json:"priority"`
	DriftValue  float64   `json:"drift_value"`
	DaysFromNow float64   `json:"days_from_now"`
	Confidence  float64   `json:"confidence"`
}

// ScheduleResult is the full schedule for one sensor.
type ScheduleResult struct {
	SensorID          uint       `json:"sensor_id"`
	SensorName        string     `json:"sensor_name"`
	Entries           []Entry    `json:"calibration_schedule"`
	AvgIntervalDays   float64    `json:"avg_interval_days"`
	LastCalibration   *time.Time `json:"last_calibration,omitempty"`
	TotalCalibrations int        `json:"total_calibrations"`
}

// Recommendation is one human-readable calibration action.
type Recommendation struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Action      string `json:"action"`
}

// RecommendationResult reports either recommendations or an explicit
// insufficient-data status.
type RecommendationResult struct {
	Status          string           `json:"status"`
	Message         string           `json:"message,omitempty"`
	SensorID        uint             `json:"sensor_id"`
	SensorName      string           `json:"sensor_name,omitempty"`
	CurrentDrift    float64          `json:"current_drift"`
	TrendDirection  string           `json:"trend_direction,omitempty"`
	Recommendations []Recommendation `json:"recommendations"`
	LastUpdated     time.Time        `json:"last_updated"`
}

// HistorySource provides the sensor history the scheduler consumes.
type HistorySource interface {
	// RecentCalibrations returns up to limit calibrations, newest first.
	RecentCalibrations(sensorID uint, limit int) ([]models.Calibration, error)
	// ReadingsSince returns readings at or after since, newest first.
	ReadingsSince(sensorID uint, since time.Time) ([]models.Reading, error)
}

// Scheduler turns drift forecasts and calibration history into a prioritized
// calibration schedule and textual recommendations.
type Scheduler struct {
	History HistorySource
	Now     func() time.Time
}

func New(history HistorySource) *Scheduler {
	return &Scheduler{History: history, Now: time.Now}
}

// typeFactor weights confidence by how predictable each sensor type is.
func typeFactor(t models.SensorType) float64 {
	switch t {
	case models.SensorTemperature:
		return 0.9
	case models.SensorPressure:
		return 0.85
	case models.SensorHumidity:
		return 0.8
	case models.SensorVibration:
		return 0.75
	case models.SensorFlow:
		return 0.8
	default:
		return 0.8
	}
}

// Confidence scales with drift magnitude (saturating at 20%) and the sensor
// type factor, capped at 0.95.
func Confidence(driftValue float64, sensorType models.SensorType) float64 {
	driftFactor := math.Min(math.Abs(driftValue)/20, 1.0)
	c := 0.7 + driftFactor*0.2*typeFactor(sensorType)
	return math.Min(c, 0.95)
}

// Schedule builds the calibration schedule for a drift-percent forecast.
// Every forecast step with |drift| above 5% yields an entry; urgent steps
// (>10%) are pulled in by one day. When nothing crosses the threshold a
// single regular-maintenance entry is emitted instead.
func (s *Scheduler) Schedule(sensor models.Sensor, forecast []float64) (ScheduleResult, error) {
	recent, err := s.History.RecentCalibrations(sensor.ID, calibrationHistory)
	if err != nil {
		return ScheduleResult{}, err
	}

	avgInterval := defaultIntervalDays
	if len(recent) > 1 {
		totalDays := 0.0
		for i := 1; i < len(recent); i++ {
			totalDays += recent[i-1].AppliedAt.Sub(recent[i].AppliedAt).Hours() / 24
		}
		avgInterval = totalDays / float64(len(recent)-1)
	}

	now := s.Now()
	var entries []Entry
	for i, drift := range forecast {
		if math.Abs(drift) <= driftScheduleThreshold {
			continue
		}
		daysFromNow := float64((i + 1) * forecastSpacingDays)

		priority := "Medium"
		date := now.AddDate(0, 0, int(daysFromNow))
		if math.Abs(drift) > driftUrgentThreshold {
			priority = "High"
			date = now.AddDate(0, 0, int(math.Max(1, daysFromNow-1)))
		}

		entries = append(entries, Entry{
			Date:        date,
			Reason:      fmt.Sprintf("Predicted drift: %.1f%%", drift),
			Priority:    priority,
			DriftValue:  drift,
			DaysFromNow: daysFromNow,
			Confidence:  Confidence(drift, sensor.Type),
		})
	}

	if len(entries) == 0 {
		entries = append(entries, Entry{
			Date:        now.Add(time.Duration(avgInterval * 24 * float64(time.Hour))),
			Reason:      "Regular maintenance calibration",
			Priority:    "Low",
			DaysFromNow: avgInterval,
			Confidence:  0.8,
		})
	}

	result := ScheduleResult{
		SensorID:          sensor.ID,
		SensorName:        sensor.Name,
		Entries:           entries,
		AvgIntervalDays:   avgInterval,
		TotalCalibrations: len(recent),
	}
	if len(recent) > 0 {
		t := recent[0].AppliedAt
		result.LastCalibration = &t
	}
	return result, nil
}

// Recommendations inspects the last 7 days of readings and emits zero or
// more textual recommendations. Fewer than 5 recent readings yield a
// distinct insufficient-data status rather than an empty list.
func (s *Scheduler) Recommendations(sensor models.Sensor) (RecommendationResult, error) {
	now := s.Now()
	readings, err := s.History.ReadingsSince(sensor.ID, now.AddDate(0, 0, -7))
	if err != nil {
		return RecommendationResult{}, err
	}

	if len(readings) < 5 {
		return RecommendationResult{
			Status:          StatusInsufficientData,
			Message:         "Not enough recent data for recommendations",
			SensorID:        sensor.ID,
			Recommendations: []Recommendation{},
			LastUpdated:     now,
		}, nil
	}

	// readings are newest-first: values[0] is the latest reading.
	values := make([]float64, len(readings))
	for i, r := range readings {
		values[i] = r.RawValue
	}
	baseline := sensor.Value
	if baseline == 0 {
		baseline = features.Mean(values[:3])
	}
	currentDrift := 0.0
	if baseline != 0 {
		currentDrift = (values[0] - baseline) / baseline * 100
	}

	slope, _ := mlmodel.FitLine(values[:5])
	trend := "stable"
	if slope > 0 {
		trend = "increasing"
	} else if slope < 0 {
		trend = "decreasing"
	}

	var recs []Recommendation
	if math.Abs(currentDrift) > driftUrgentThreshold {
		recs = append(recs, Recommendation{
			Type:        "urgent",
			Title:       "Immediate Calibration Required",
			Description: fmt.Sprintf("Current drift is %.1f%%, exceeding critical threshold", currentDrift),
			Priority:    "High",
			Action:      "Schedule calibration within 24 hours",
		})
	} else if math.Abs(currentDrift) > driftScheduleThreshold {
		recs = append(recs, Recommendation{
			Type:        "recommended",
			Title:       "Calibration Recommended",
			Description: fmt.Sprintf("Current drift is %.1f%%, approaching threshold", currentDrift),
			Priority:    "Medium",
			Action:      "Schedule calibration within 1 week",
		})
	}
	if trend == "increasing" && math.Abs(currentDrift) > 2 {
		recs = append(recs, Recommendation{
			Type:        "trend",
			Title:       "Drift Trend Warning",
			Description: "Drift is increasing, monitor closely",
			Priority:    "Medium",
			Action:      "Increase monitoring frequency",
		})
	}
	if recs == nil {
		recs = []Recommendation{}
	}

	return RecommendationResult{
		Status:          StatusOK,
		SensorID:        sensor.ID,
		SensorName:      sensor.Name,
		CurrentDrift:    currentDrift,
		TrendDirection:  trend,
		Recommendations: recs,
		LastUpdated:     now,
	}, nil
}
