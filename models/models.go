package models

import (
	"errors"
	"math"
	"time"

	"gorm.io/datatypes"
)

type SensorType string

const (
	SensorTemperature SensorType = "Temperature"
	SensorPressure    SensorType = "Pressure"
	SensorHumidity    SensorType = "Humidity"
	SensorVibration   SensorType = "Vibration"
	SensorFlow        SensorType = "Flow"
)

var SensorTypes = []SensorType{
	SensorTemperature,
	SensorPressure,
	SensorHumidity,
	SensorVibration,
	SensorFlow,
}

type SensorStatus string

const (
	StatusOnline   SensorStatus = "online"
	StatusWarning  SensorStatus = "warning"
	StatusCritical SensorStatus = "critical"
	StatusOffline  SensorStatus = "offline"
)

// Sensor holds the declared type, the operator-set baseline (Value) that
// anchors all deviation math, and the fields mutated on every accepted
// reading (Status, Drift, LastUpdated).
type Sensor struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	Name        string       `gorm:"size:100;not null" json:"name"`
	Type        SensorType   `gorm:"size:20;not null;index" json:"type"`
	Value       float64      `gorm:"not null;default:0" json:"value"`
	Unit        string       `gorm:"size:20" json:"unit"`
	Status      SensorStatus `gorm:"size:20;not null;default:online" json:"status"`
	Drift       float64      `gorm:"not null;default:0" json:"drift"`
	LastUpdated time.Time    `gorm:"autoUpdateTime" json:"last_updated"`
}

func (Sensor) TableName() string { return "sensors" }

// Reading is append-only; rows are never updated once created.
type Reading struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SensorID  uint      `gorm:"not null;index" json:"sensor_id"`
	Sensor    Sensor    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	RawValue  float64   `gorm:"not null" json:"raw_value"`
	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`
}

func (Reading) TableName() string { return "readings" }

// Calibration records an applied correction. ReadingID keeps an explicit
// link to the raw input the corrected value was derived from, when known.
type Calibration struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	SensorID       uint           `gorm:"not null;index" json:"sensor_id"`
	Sensor         Sensor         `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	ReadingID      *uint          `gorm:"index" json:"reading_id,omitempty"`
	Method         string         `gorm:"size:50;not null" json:"method"`
	Params         datatypes.JSON `gorm:"type:jsonb" json:"params"`
	CorrectedValue float64        `gorm:"not null" json:"corrected_value"`
	AppliedAt      time.Time      `gorm:"not null;index;autoCreateTime" json:"applied_at"`
}

func (Calibration) TableName() string { return "calibrations" }

type AnomalyType string

const (
	AnomalyDrift            AnomalyType = "Drift"
	AnomalySpike            AnomalyType = "Spike"
	AnomalyDropout          AnomalyType = "Dropout"
	AnomalyNoise            AnomalyType = "Noise"
	AnomalyCalibrationError AnomalyType = "Calibration Error"
)

type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// SeverityFor maps a deviation percentage to a severity tag. The breakpoints
// are absolute: >50 Critical, >20 High, >10 Medium, else Low.
func SeverityFor(deviationPercent float64) Severity {
	d := math.Abs(deviationPercent)
	switch {
	case d > 50:
		return SeverityCritical
	case d > 20:
		return SeverityHigh
	case d > 10:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Anomaly rows are created exclusively by detection logic. Resolved is the
// only field an operator may later flip.
type Anomaly struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	SensorID  uint        `gorm:"not null;index" json:"sensor_id"`
	Sensor    Sensor      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Type      AnomalyType `gorm:"size:50;not null" json:"type"`
	Value     float64     `gorm:"not null" json:"value"`
	Expected  float64     `gorm:"not null" json:"expected"`
	Deviation float64     `gorm:"not null" json:"deviation"`
	Severity  Severity    `gorm:"size:20;not null" json:"severity"`
	Resolved  bool        `gorm:"not null;default:false" json:"resolved"`
	Timestamp time.Time   `gorm:"not null;index;autoCreateTime" json:"timestamp"`
}

func (Anomaly) TableName() string { return "anomalies" }

// AnalysisResult is the per-reading ingest outcome cached for dashboard reads.
type AnalysisResult struct {
	SensorID    uint         `json:"sensor_id"`
	RawValue    float64      `json:"raw_value"`
	Deviation   float64      `json:"deviation"`
	IsAnomaly   bool         `json:"is_anomaly"`
	AnomalyType AnomalyType  `json:"anomaly_type,omitempty"`
	Severity    Severity     `json:"severity,omitempty"`
	Status      SensorStatus `json:"status"`
	ProcessedAt time.Time    `json:"processed_at"`
}

// SensorInput is the create/update payload for sensors.
type SensorInput struct {
	Name  string     `json:"name"`
	Type  SensorType `json:"type"`
	Value float64    `json:"value"`
	Unit  string     `json:"unit"`
}

func (in *SensorInput) Validate() error {
	if in.Name == "" {
		return errors.New("name is required")
	}
	for _, t := range SensorTypes {
		if in.Type == t {
			return nil
		}
	}
	return errors.New("type must be one of Temperature, Pressure, Humidity, Vibration, Flow")
}

// ReadingInput is the ingest payload for readings.
type ReadingInput struct {
	SensorID  uint    `json:"sensor_id"`
	RawValue  float64 `json:"raw_value"`
	Timestamp string  `json:"timestamp,omitempty"`
}

func (in *ReadingInput) Validate() error {
	if in.SensorID == 0 {
		return errors.New("sensor_id is required")
	}
	if in.Timestamp != "" {
		if _, err := time.Parse(time.RFC3339, in.Timestamp); err != nil {
			return errors.New("invalid timestamp format, expected RFC3339")
		}
	}
	return nil
}

// ParsedTimestamp returns the supplied timestamp, or now when absent.
func (in *ReadingInput) ParsedTimestamp() time.Time {
	if in.Timestamp == "" {
		return time.Now().UTC()
	}
	t, err := time.Parse(time.RFC3339, in.Timestamp)
	if err != nil {
		return time.Now().UTC()
	}
	return t
}
