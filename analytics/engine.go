package analytics

import (
	"context"
	"math"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"sensor-calibration-platform/anomaly"
	"sensor-calibration-platform/models"
)

const recentWindow = 10

// DataStore is the record-store surface the ingest engine needs.
type DataStore interface {
	SensorByID(id uint) (models.Sensor, error)
	RecentReadings(sensorID uint, limit int) ([]models.Reading, error)
	CreateAnomaly(a *models.Anomaly) error
	UpdateSensorState(id uint, status models.SensorStatus, drift float64) error
}

// ResultCache receives the per-reading analysis outcome.
type ResultCache interface {
	SaveAnalysis(ctx context.Context, result models.AnalysisResult) error
}

// AnomalyCallback fires for every anomaly the engine records.
type AnomalyCallback func(sensorID uint, finding anomaly.Finding)

// Engine drains accepted readings through a worker pool: each reading is
// classified against the sensor's recent window, any finding is persisted,
// and the sensor's status and drift fields are updated.
type Engine struct {
	store      DataStore
	cache      ResultCache
	classifier anomaly.RuleClassifier
	onAnomaly  AnomalyCallback
	log        *zap.Logger

	readingCh chan models.Reading
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewEngine(store DataStore, cache ResultCache, workers, queueSize int, onAnomaly AnomalyCallback, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}
	if workers < 4 {
		workers = 4
	}
	if workers > 16 {
		workers = 16
	}
	if queueSize <= 0 {
		queueSize = 10000
	}

	e := &Engine{
		store:     store,
		cache:     cache,
		onAnomaly: onAnomaly,
		log:       log,
		readingCh: make(chan models.Reading, queueSize),
		stopCh:    make(chan struct{}),
	}
	log.Info("starting analytics workers", zap.Int("workers", workers))
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.run()
	}
	return e
}

// Ingest queues an already-persisted reading for analysis. When the queue is
// full the reading is dropped from analysis (never from storage).
func (e *Engine) Ingest(reading models.Reading) {
	select {
	case e.readingCh <- reading:
	default:
		e.log.Warn("analysis queue full, dropping reading",
			zap.Uint("sensor_id", reading.SensorID))
	}
}

// QueueDepth reports how many readings are awaiting analysis.
func (e *Engine) QueueDepth() int {
	return len(e.readingCh)
}

// Stop shuts the workers down and returns once in-flight work finishes.
// Readings still queued at that point are not analyzed.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
		e.wg.Wait()
	})
}

func (e *Engine) run() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case reading := <-e.readingCh:
			e.process(reading)
		}
	}
}

// typedThreshold is the per-type drift-percent band that keeps a sensor in
// the online state.
func typedThreshold(t models.SensorType) float64 {
	switch t {
	case models.SensorTemperature:
		return 3
	case models.SensorPressure, models.SensorHumidity:
		return 2
	case models.SensorVibration, models.SensorFlow:
		return 5
	default:
		return 3
	}
}

func statusFor(sensor models.Sensor, deviation float64, finding *anomaly.Finding) models.SensorStatus {
	status := models.StatusOnline
	if d := math.Abs(deviation); d > typedThreshold(sensor.Type) {
		if d > 5 {
			status = models.StatusCritical
		} else {
			status = models.StatusWarning
		}
	}
	if finding != nil {
		switch finding.Severity {
		case models.SeverityCritical:
			status = models.StatusCritical
		case models.SeverityHigh:
			if status == models.StatusOnline {
				status = models.StatusWarning
			}
		}
	}
	return status
}

func (e *Engine) process(reading models.Reading) {
	sensor, err := e.store.SensorByID(reading.SensorID)
	if err != nil {
		e.log.Error("sensor lookup failed", zap.Uint("sensor_id", reading.SensorID), zap.Error(err))
		return
	}

	recentReadings, err := e.store.RecentReadings(sensor.ID, recentWindow)
	if err != nil {
		e.log.Error("loading recent readings failed", zap.Uint("sensor_id", sensor.ID), zap.Error(err))
		return
	}
	recent := make([]float64, 0, len(recentReadings)+1)
	if len(recentReadings) == 0 || recentReadings[0].ID != reading.ID {
		recent = append(recent, reading.RawValue)
	}
	for _, r := range recentReadings {
		recent = append(recent, r.RawValue)
	}
	if len(recent) > recentWindow {
		recent = recent[:recentWindow]
	}

	finding := e.classifier.Classify(sensor.Value, recent)
	deviation := anomaly.DeviationPercent(reading.RawValue, sensor.Value)

	result := models.AnalysisResult{
		SensorID:    sensor.ID,
		RawValue:    reading.RawValue,
		Deviation:   deviation,
		Status:      statusFor(sensor, deviation, finding),
		ProcessedAt: reading.Timestamp,
	}

	if finding != nil {
		result.IsAnomaly = true
		result.AnomalyType = finding.Type
		result.Severity = finding.Severity

		record := models.Anomaly{
			SensorID:  sensor.ID,
			Type:      finding.Type,
			Value:     finding.Value,
			Expected:  finding.Expected,
			Deviation: finding.Deviation,
			Severity:  finding.Severity,
		}
		if err := e.store.CreateAnomaly(&record); err != nil {
			e.log.Error("persisting anomaly failed", zap.Uint("sensor_id", sensor.ID), zap.Error(err))
		}
		e.log.Info("anomaly detected",
			zap.Uint("sensor_id", sensor.ID),
			zap.String("type", string(finding.Type)),
			zap.String("severity", string(finding.Severity)),
			zap.Float64("deviation", finding.Deviation))
		if e.onAnomaly != nil {
			e.onAnomaly(sensor.ID, *finding)
		}
	}

	if err := e.store.UpdateSensorState(sensor.ID, result.Status, deviation); err != nil {
		e.log.Error("updating sensor state failed", zap.Uint("sensor_id", sensor.ID), zap.Error(err))
	}

	if e.cache != nil {
		if err := e.cache.SaveAnalysis(context.Background(), result); err != nil {
			e.log.Warn("caching analysis failed", zap.Uint("sensor_id", sensor.ID), zap.Error(err))
		}
	}
}
