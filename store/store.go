package store

import (
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sensor-calibration-platform/models"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the relational record store for sensors, readings, calibrations
// and anomalies.
type Store struct {
	db *gorm.DB
}

// Open connects to postgres and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&models.Sensor{},
		&models.Reading{},
		&models.Calibration{},
		&models.Anomaly{},
	); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// New wraps an existing gorm handle; used by tests.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// ---- sensors ----

func (s *Store) CreateSensor(sensor *models.Sensor) error {
	return s.db.Create(sensor).Error
}

func (s *Store) Sensors() ([]models.Sensor, error) {
	var out []models.Sensor
	err := s.db.Order("id").Find(&out).Error
	return out, err
}

func (s *Store) SensorByID(id uint) (models.Sensor, error) {
	var sensor models.Sensor
	err := s.db.First(&sensor, id).Error
	return sensor, translate(err)
}

func (s *Store) UpdateSensor(sensor *models.Sensor) error {
	return s.db.Save(sensor).Error
}

// UpdateSensorState mutates only the fields touched on every accepted
// reading.
func (s *Store) UpdateSensorState(id uint, status models.SensorStatus, drift float64) error {
	return s.db.Model(&models.Sensor{}).Where("id = ?", id).
		Updates(map[string]any{"status": status, "drift": drift}).Error
}

// DeleteSensor removes a sensor and, via FK constraints, its readings,
// calibrations and anomalies.
func (s *Store) DeleteSensor(id uint) error {
	res := s.db.Delete(&models.Sensor{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CountSensors() (int64, error) {
	var n int64
	err := s.db.Model(&models.Sensor{}).Count(&n).Error
	return n, err
}

// SensorsWithReadingsSince returns sensors that have at least one reading at
// or after since.
func (s *Store) SensorsWithReadingsSince(since time.Time) ([]models.Sensor, error) {
	var out []models.Sensor
	err := s.db.
		Where("id IN (?)", s.db.Model(&models.Reading{}).
			Select("DISTINCT sensor_id").Where("timestamp >= ?", since)).
		Find(&out).Error
	return out, err
}

// ---- readings ----

func (s *Store) CreateReading(reading *models.Reading) error {
	return s.db.Create(reading).Error
}

func (s *Store) ReadingsAsc(sensorID uint) ([]models.Reading, error) {
	var out []models.Reading
	err := s.db.Where("sensor_id = ?", sensorID).Order("timestamp").Find(&out).Error
	return out, err
}

func (s *Store) AllReadingsAsc() ([]models.Reading, error) {
	var out []models.Reading
	err := s.db.Order("timestamp").Find(&out).Error
	return out, err
}

func (s *Store) RecentReadings(sensorID uint, limit int) ([]models.Reading, error) {
	var out []models.Reading
	err := s.db.Where("sensor_id = ?", sensorID).
		Order("timestamp DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (s *Store) ReadingsSince(sensorID uint, since time.Time) ([]models.Reading, error) {
	var out []models.Reading
	err := s.db.Where("sensor_id = ? AND timestamp >= ?", sensorID, since).
		Order("timestamp DESC").Find(&out).Error
	return out, err
}

func (s *Store) ReadingsBefore(sensorID uint, t time.Time, limit int) ([]models.Reading, error) {
	var out []models.Reading
	err := s.db.Where("sensor_id = ? AND timestamp < ?", sensorID, t).
		Order("timestamp DESC").Limit(limit).Find(&out).Error
	return out, err
}

// ReadingsInRange filters by optional sensor and time range, oldest first.
func (s *Store) ReadingsInRange(sensorID uint, from, to *time.Time) ([]models.Reading, error) {
	q := s.db.Model(&models.Reading{})
	if sensorID != 0 {
		q = q.Where("sensor_id = ?", sensorID)
	}
	if from != nil && to != nil {
		q = q.Where("timestamp BETWEEN ? AND ?", *from, *to)
	}
	var out []models.Reading
	err := q.Order("timestamp").Find(&out).Error
	return out, err
}

func (s *Store) CountReadings(sensorID uint) (int64, error) {
	var n int64
	err := s.db.Model(&models.Reading{}).Where("sensor_id = ?", sensorID).Count(&n).Error
	return n, err
}

func (s *Store) CountAllReadings() (int64, error) {
	var n int64
	err := s.db.Model(&models.Reading{}).Count(&n).Error
	return n, err
}

// ---- calibrations ----

func (s *Store) CreateCalibration(cal *models.Calibration) error {
	return s.db.Create(cal).Error
}

func (s *Store) CalibrationsAsc(sensorID uint) ([]models.Calibration, error) {
	var out []models.Calibration
	err := s.db.Where("sensor_id = ?", sensorID).Order("applied_at").Find(&out).Error
	return out, err
}

func (s *Store) RecentCalibrations(sensorID uint, limit int) ([]models.Calibration, error) {
	var out []models.Calibration
	err := s.db.Where("sensor_id = ?", sensorID).
		Order("applied_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// Calibrations lists history, optionally filtered by sensor, newest first.
func (s *Store) Calibrations(sensorID uint) ([]models.Calibration, error) {
	q := s.db.Model(&models.Calibration{})
	if sensorID != 0 {
		q = q.Where("sensor_id = ?", sensorID)
	}
	var out []models.Calibration
	err := q.Order("applied_at DESC").Find(&out).Error
	return out, err
}

func (s *Store) CountCalibrations(sensorID uint) (int64, error) {
	var n int64
	err := s.db.Model(&models.Calibration{}).Where("sensor_id = ?", sensorID).Count(&n).Error
	return n, err
}

func (s *Store) CountAllCalibrations() (int64, error) {
	var n int64
	err := s.db.Model(&models.Calibration{}).Count(&n).Error
	return n, err
}

func (s *Store) CountCalibrationsSince(since time.Time) (int64, error) {
	var n int64
	err := s.db.Model(&models.Calibration{}).Where("applied_at >= ?", since).Count(&n).Error
	return n, err
}

func (s *Store) CountCalibrationsByMethodSince(method string, since time.Time) (int64, error) {
	var n int64
	err := s.db.Model(&models.Calibration{}).
		Where("method = ? AND applied_at >= ?", method, since).Count(&n).Error
	return n, err
}

// ---- anomalies ----

func (s *Store) CreateAnomaly(a *models.Anomaly) error {
	return s.db.Create(a).Error
}

// Anomalies lists anomalies, optionally filtered by sensor, newest first.
func (s *Store) Anomalies(sensorID uint) ([]models.Anomaly, error) {
	q := s.db.Model(&models.Anomaly{})
	if sensorID != 0 {
		q = q.Where("sensor_id = ?", sensorID)
	}
	var out []models.Anomaly
	err := q.Order("timestamp DESC").Find(&out).Error
	return out, err
}

// ResolveAnomaly flips the resolved flag; the only operator-writable field.
func (s *Store) ResolveAnomaly(id uint) error {
	res := s.db.Model(&models.Anomaly{}).Where("id = ?", id).Update("resolved", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CountAllAnomalies() (int64, error) {
	var n int64
	err := s.db.Model(&models.Anomaly{}).Count(&n).Error
	return n, err
}

func (s *Store) CountAnomaliesBySeveritySince(severity models.Severity, since time.Time) (int64, error) {
	var n int64
	err := s.db.Model(&models.Anomaly{}).
		Where("severity = ? AND timestamp >= ?", severity, since).Count(&n).Error
	return n, err
}

func (s *Store) CountAnomaliesSince(since time.Time) (int64, error) {
	var n int64
	err := s.db.Model(&models.Anomaly{}).Where("timestamp >= ?", since).Count(&n).Error
	return n, err
}
