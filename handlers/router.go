package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router builds the full HTTP surface.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.instrument("/health", h.HealthCheck)).Methods(http.MethodGet)

	r.HandleFunc("/sensors", h.instrument("/sensors", h.CreateSensor)).Methods(http.MethodPost)
	r.HandleFunc("/sensors", h.instrument("/sensors", h.ListSensors)).Methods(http.MethodGet)
	r.HandleFunc("/sensors/{id:[0-9]+}", h.instrument("/sensors/{id}", h.GetSensor)).Methods(http.MethodGet)
	r.HandleFunc("/sensors/{id:[0-9]+}", h.instrument("/sensors/{id}", h.UpdateSensor)).Methods(http.MethodPut)
	r.HandleFunc("/sensors/{id:[0-9]+}", h.instrument("/sensors/{id}", h.DeleteSensor)).Methods(http.MethodDelete)

	r.HandleFunc("/readings", h.instrument("/readings", h.CreateReading)).Methods(http.MethodPost)
	r.HandleFunc("/readings/history", h.instrument("/readings/history", h.ReadingHistory)).Methods(http.MethodGet)
	r.HandleFunc("/readings/analysis", h.instrument("/readings/analysis", h.LatestAnalysis)).Methods(http.MethodGet)

	r.HandleFunc("/calibrations/apply", h.instrument("/calibrations/apply", h.ApplyCalibration)).Methods(http.MethodPost)
	r.HandleFunc("/calibrations/history", h.instrument("/calibrations/history", h.CalibrationHistory)).Methods(http.MethodGet)

	r.HandleFunc("/anomalies", h.instrument("/anomalies", h.ListAnomalies)).Methods(http.MethodGet)
	r.HandleFunc("/anomalies/{id:[0-9]+}/resolve", h.instrument("/anomalies/{id}/resolve", h.ResolveAnomaly)).Methods(http.MethodPost)
	r.HandleFunc("/anomalies/detect", h.instrument("/anomalies/detect", h.DetectAnomaliesBatch)).Methods(http.MethodPost)

	r.HandleFunc("/ml/train", h.instrument("/ml/train", h.TrainModel)).Methods(http.MethodPost)
	r.HandleFunc("/ml/anomaly/detect", h.instrument("/ml/anomaly/detect", h.ScoreReading)).Methods(http.MethodPost)
	r.HandleFunc("/ml/drift/predict", h.instrument("/ml/drift/predict", h.PredictDrift)).Methods(http.MethodGet)
	r.HandleFunc("/ml/calibration/apply", h.instrument("/ml/calibration/apply", h.CorrectReading)).Methods(http.MethodPost)
	r.HandleFunc("/ml/auto-train", h.instrument("/ml/auto-train", h.AutoTrain)).Methods(http.MethodPost)
	r.HandleFunc("/ml/models", h.instrument("/ml/models", h.ModelInventory)).Methods(http.MethodGet)
	r.HandleFunc("/ml/analytics", h.instrument("/ml/analytics", h.MLStatistics)).Methods(http.MethodGet)
	r.HandleFunc("/ml/calibration-schedule", h.instrument("/ml/calibration-schedule", h.CalibrationSchedule)).Methods(http.MethodGet)
	r.HandleFunc("/ml/recommendations", h.instrument("/ml/recommendations", h.Recommendations)).Methods(http.MethodGet)

	r.Path("/metrics").Handler(promhttp.Handler())
	return r
}
