package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"sensor-calibration-platform/analytics"
	"sensor-calibration-platform/anomaly"
	"sensor-calibration-platform/cache"
	"sensor-calibration-platform/calib"
	"sensor-calibration-platform/drift"
	"sensor-calibration-platform/models"
	"sensor-calibration-platform/scheduler"
	"sensor-calibration-platform/store"
	"sensor-calibration-platform/trainer"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	requestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	readingsIngestedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "readings_ingested_total",
			Help: "Total number of readings accepted",
		},
	)

	anomaliesDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomalies_detected_total",
			Help: "Total number of anomalies detected",
		},
		[]string{"type", "severity"},
	)

	modelsTrainedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "models_trained_total",
			Help: "Total number of model training runs",
		},
		[]string{"kind", "status"},
	)
)

// Handler wires the HTTP surface to the core services. It carries no
// algorithmic logic of its own.
type Handler struct {
	store      *store.Store
	cache      *cache.Client
	engine     *analytics.Engine
	aggregator *analytics.Aggregator
	trainer    *trainer.Trainer
	scheduler  *scheduler.Scheduler
	predictor  drift.Predictor
	corrector  calib.Corrector
	classifier *anomaly.ModelClassifier
	log        *zap.Logger
}

func New(
	st *store.Store,
	ca *cache.Client,
	engine *analytics.Engine,
	aggregator *analytics.Aggregator,
	tr *trainer.Trainer,
	sched *scheduler.Scheduler,
	predictor drift.Predictor,
	corrector calib.Corrector,
	classifier *anomaly.ModelClassifier,
	log *zap.Logger,
) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		store:      st,
		cache:      ca,
		engine:     engine,
		aggregator: aggregator,
		trainer:    tr,
		scheduler:  sched,
		predictor:  predictor,
		corrector:  corrector,
		classifier: classifier,
		log:        log,
	}
}

// RecordAnomaly is the engine callback feeding the anomaly counter.
func RecordAnomaly(_ uint, finding anomaly.Finding) {
	anomaliesDetectedTotal.WithLabelValues(string(finding.Type), string(finding.Severity)).Inc()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		requestDurationSeconds.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func pathID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	return uint(id), err
}

func querySensorID(r *http.Request) uint {
	id, _ := strconv.ParseUint(r.URL.Query().Get("sensor_id"), 10, 32)
	return uint(id)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ---- sensors ----

func (h *Handler) CreateSensor(w http.ResponseWriter, r *http.Request) {
	var in models.SensorInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON format")
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sensor := models.Sensor{
		Name:   in.Name,
		Type:   in.Type,
		Value:  in.Value,
		Unit:   in.Unit,
		Status: models.StatusOnline,
	}
	if err := h.store.CreateSensor(&sensor); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create sensor")
		return
	}
	writeJSON(w, http.StatusCreated, sensor)
}

func (h *Handler) ListSensors(w http.ResponseWriter, _ *http.Request) {
	sensors, err := h.store.Sensors()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sensors")
		return
	}
	writeJSON(w, http.StatusOK, sensors)
}

func (h *Handler) GetSensor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sensor id")
		return
	}
	sensor, err := h.store.SensorByID(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "sensor not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load sensor")
		return
	}
	writeJSON(w, http.StatusOK, sensor)
}

func (h *Handler) UpdateSensor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sensor id")
		return
	}
	sensor, err := h.store.SensorByID(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "sensor not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load sensor")
		return
	}

	var in models.SensorInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON format")
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sensor.Name = in.Name
	sensor.Type = in.Type
	sensor.Value = in.Value
	sensor.Unit = in.Unit
	if err := h.store.UpdateSensor(&sensor); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update sensor")
		return
	}
	writeJSON(w, http.StatusOK, sensor)
}

func (h *Handler) DeleteSensor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sensor id")
		return
	}
	if err := h.store.DeleteSensor(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "sensor not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete sensor")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- readings ----

func (h *Handler) CreateReading(w http.ResponseWriter, r *http.Request) {
	var in models.ReadingInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON format")
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.store.SensorByID(in.SensorID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "sensor not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load sensor")
		return
	}

	reading := models.Reading{
		SensorID:  in.SensorID,
		RawValue:  in.RawValue,
		Timestamp: in.ParsedTimestamp(),
	}
	if err := h.store.CreateReading(&reading); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store reading")
		return
	}
	readingsIngestedTotal.Inc()
	h.engine.Ingest(reading)
	writeJSON(w, http.StatusCreated, reading)
}

func (h *Handler) ReadingHistory(w http.ResponseWriter, r *http.Request) {
	sensorID := querySensorID(r)
	var from, to *time.Time
	if f := r.URL.Query().Get("from"); f != "" {
		if t, err := time.Parse(time.RFC3339, f); err == nil {
			from = &t
		}
	}
	if tq := r.URL.Query().Get("to"); tq != "" {
		if t, err := time.Parse(time.RFC3339, tq); err == nil {
			to = &t
		}
	}
	readings, err := h.store.ReadingsInRange(sensorID, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

// LatestAnalysis serves the cached analysis outcome for a sensor's most
// recent reading.
func (h *Handler) LatestAnalysis(w http.ResponseWriter, r *http.Request) {
	sensorID := querySensorID(r)
	if sensorID == 0 {
		writeError(w, http.StatusBadRequest, "sensor_id parameter is required")
		return
	}
	if h.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis cache unavailable")
		return
	}
	result, err := h.cache.GetAnalysis(r.Context(), sensorID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load analysis")
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, "no recent analysis for sensor")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ---- calibrations ----

type calibrationInput struct {
	SensorID       uint            `json:"sensor_id"`
	ReadingID      *uint           `json:"reading_id,omitempty"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	CorrectedValue float64         `json:"corrected_value"`
}

func (h *Handler) ApplyCalibration(w http.ResponseWriter, r *http.Request) {
	var in calibrationInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON format")
		return
	}
	if in.SensorID == 0 || in.Method == "" {
		writeError(w, http.StatusBadRequest, "sensor_id and method are required")
		return
	}
	if _, err := h.store.SensorByID(in.SensorID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "sensor not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load sensor")
		return
	}

	cal := models.Calibration{
		SensorID:       in.SensorID,
		ReadingID:      in.ReadingID,
		Method:         in.Method,
		Params:         datatypes.JSON(in.Params),
		CorrectedValue: in.CorrectedValue,
	}
	if err := h.store.CreateCalibration(&cal); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store calibration")
		return
	}
	writeJSON(w, http.StatusCreated, cal)
}

func (h *Handler) CalibrationHistory(w http.ResponseWriter, r *http.Request) {
	calibrations, err := h.store.Calibrations(querySensorID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load calibrations")
		return
	}
	writeJSON(w, http.StatusOK, calibrations)
}

// ---- anomalies ----

func (h *Handler) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	anomalies, err := h.store.Anomalies(querySensorID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load anomalies")
		return
	}
	writeJSON(w, http.StatusOK, anomalies)
}

func (h *Handler) ResolveAnomaly(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid anomaly id")
		return
	}
	if err := h.store.ResolveAnomaly(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "anomaly not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to resolve anomaly")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}
