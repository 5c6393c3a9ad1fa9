package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"sensor-calibration-platform/analytics"
	"sensor-calibration-platform/anomaly"
	"sensor-calibration-platform/drift"
	"sensor-calibration-platform/mlmodel"
	"sensor-calibration-platform/models"
	"sensor-calibration-platform/store"
	"sensor-calibration-platform/trainer"
)

const statisticsCacheKey = "ml:statistics"

func queryPoints(r *http.Request) int {
	points, err := strconv.Atoi(r.URL.Query().Get("points"))
	if err != nil || points <= 0 {
		return drift.DefaultFuturePoints
	}
	return points
}

func (h *Handler) sensorFromQuery(w http.ResponseWriter, r *http.Request) (models.Sensor, bool) {
	sensorID := querySensorID(r)
	if sensorID == 0 {
		writeError(w, http.StatusBadRequest, "sensor_id parameter is required")
		return models.Sensor{}, false
	}
	sensor, err := h.store.SensorByID(sensorID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "sensor not found")
		return models.Sensor{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load sensor")
		return models.Sensor{}, false
	}
	return sensor, true
}

// TrainModel trains one model kind for a sensor, or every kind for every
// sensor when kind is "all" or empty.
func (h *Handler) TrainModel(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ModelType string `json:"model_type"`
		SensorID  uint   `json:"sensor_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON format")
		return
	}

	if in.ModelType == "" || in.ModelType == "all" {
		results := h.trainer.TrainAll(in.SensorID)
		for _, res := range results {
			modelsTrainedTotal.WithLabelValues(string(res.Kind), res.Status).Inc()
		}
		writeJSON(w, http.StatusOK, results)
		return
	}

	kind := mlmodel.Kind(in.ModelType)
	switch kind {
	case mlmodel.KindAnomaly, mlmodel.KindDrift, mlmodel.KindCalibration:
	default:
		writeError(w, http.StatusBadRequest, "model_type must be anomaly, drift, calibration or all")
		return
	}

	result := h.trainer.Train(kind, in.SensorID)
	modelsTrainedTotal.WithLabelValues(string(result.Kind), result.Status).Inc()
	writeJSON(w, http.StatusOK, result)
}

// ScoreReading classifies a single value with the trained model, reporting
// which path (trained or basic threshold) actually ran.
func (h *Handler) ScoreReading(w http.ResponseWriter, r *http.Request) {
	var in struct {
		SensorID uint    `json:"sensor_id"`
		Value    float64 `json:"value"`
		At       *string `json:"timestamp,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON format")
		return
	}
	sensor, err := h.store.SensorByID(in.SensorID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "sensor not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load sensor")
		return
	}

	at := time.Now()
	if in.At != nil {
		if t, err := time.Parse(time.RFC3339, *in.At); err == nil {
			at = t
		}
	}
	writeJSON(w, http.StatusOK, h.classifier.ScoreValue(sensor, in.Value, at))
}

// DetectAnomaliesBatch sweeps a sensor's full history through the trained
// strategy and persists every finding.
func (h *Handler) DetectAnomaliesBatch(w http.ResponseWriter, r *http.Request) {
	sensor, ok := h.sensorFromQuery(w, r)
	if !ok {
		return
	}
	readings, err := h.store.ReadingsAsc(sensor.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}
	findings, err := h.classifier.DetectBatch(sensor, readings)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "detection failed")
		return
	}

	for _, f := range findings {
		record := models.Anomaly{
			SensorID:  sensor.ID,
			Type:      f.Type,
			Value:     f.Value,
			Expected:  f.Expected,
			Deviation: f.Deviation,
			Severity:  f.Severity,
		}
		if err := h.store.CreateAnomaly(&record); err != nil {
			h.log.Error("persisting batch anomaly failed", zap.Error(err))
			continue
		}
		anomaliesDetectedTotal.WithLabelValues(string(f.Type), string(f.Severity)).Inc()
	}
	if findings == nil {
		findings = []anomaly.Finding{}
	}
	writeJSON(w, http.StatusOK, findings)
}

// PredictDrift forecasts future drift for a sensor; the trained model is
// preferred, with the linear trend as fallback.
func (h *Handler) PredictDrift(w http.ResponseWriter, r *http.Request) {
	sensor, ok := h.sensorFromQuery(w, r)
	if !ok {
		return
	}
	forecast, err := h.predictor.Predict(sensor, queryPoints(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "prediction failed")
		return
	}
	writeJSON(w, http.StatusOK, forecast)
}

// CorrectReading maps a raw value through the calibration corrector.
func (h *Handler) CorrectReading(w http.ResponseWriter, r *http.Request) {
	var in struct {
		SensorID uint    `json:"sensor_id"`
		RawValue float64 `json:"raw_value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON format")
		return
	}
	sensor, err := h.store.SensorByID(in.SensorID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "sensor not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load sensor")
		return
	}

	correction, err := h.corrector.Correct(sensor, in.RawValue)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "correction failed")
		return
	}
	writeJSON(w, http.StatusOK, correction)
}

// AutoTrain runs one auto-train sweep over all sensors.
func (h *Handler) AutoTrain(w http.ResponseWriter, r *http.Request) {
	outcomes := h.trainer.AutoTrainSweep(r.Context())
	for _, o := range outcomes {
		modelsTrainedTotal.WithLabelValues(string(o.Kind), o.Result.Status).Inc()
	}
	if outcomes == nil {
		outcomes = []trainer.SweepOutcome{}
	}
	writeJSON(w, http.StatusOK, outcomes)
}

// ModelInventory lists persisted model artifacts.
func (h *Handler) ModelInventory(w http.ResponseWriter, _ *http.Request) {
	inventory, err := h.trainer.ModelInventory()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list models")
		return
	}
	if inventory == nil {
		inventory = []mlmodel.ArtifactInfo{}
	}
	writeJSON(w, http.StatusOK, inventory)
}

// MLStatistics serves the dashboard rollup, cached briefly in Redis.
func (h *Handler) MLStatistics(w http.ResponseWriter, r *http.Request) {
	if h.cache != nil {
		var cached analytics.Statistics
		if ok, err := h.cache.GetJSON(r.Context(), statisticsCacheKey, &cached); err == nil && ok {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	stats, err := h.aggregator.Statistics()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}
	if h.cache != nil {
		if err := h.cache.SetJSON(r.Context(), statisticsCacheKey, stats); err != nil {
			h.log.Warn("caching statistics failed", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

// CalibrationSchedule forecasts drift and turns it into a calibration
// schedule.
func (h *Handler) CalibrationSchedule(w http.ResponseWriter, r *http.Request) {
	sensor, ok := h.sensorFromQuery(w, r)
	if !ok {
		return
	}
	forecast, err := h.predictor.Predict(sensor, queryPoints(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "prediction failed")
		return
	}
	schedule, err := h.scheduler.Schedule(sensor, forecast.Predictions)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "scheduling failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"forecast": forecast,
		"schedule": schedule,
	})
}

// Recommendations produces calibration recommendations from recent history.
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	sensor, ok := h.sensorFromQuery(w, r)
	if !ok {
		return
	}
	result, err := h.scheduler.Recommendations(sensor)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "recommendation failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
