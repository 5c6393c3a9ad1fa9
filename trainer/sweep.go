package trainer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sensor-calibration-platform/mlmodel"
)

// StalenessAge is how old an artifact may get before it is queued for
// retraining. Stale artifacts remain usable by prediction paths.
const StalenessAge = 7 * 24 * time.Hour

// SweepOutcome is one per-sensor per-kind result of an auto-train sweep.
type SweepOutcome struct {
	RunID      string       `json:"run_id"`
	SensorID   uint         `json:"sensor_id"`
	SensorName string       `json:"sensor_name"`
	Kind       mlmodel.Kind `json:"kind"`
	Result     TrainResult  `json:"result"`
}

// NeedsTraining reports whether the artifact for (kind, sensorID) is absent
// or older than the staleness threshold.
func (t *Trainer) NeedsTraining(kind mlmodel.Kind, sensorID uint) bool {
	age, err := t.models.Age(kind, sensorID)
	if err != nil {
		return true
	}
	return age > StalenessAge
}

// AutoTrainSweep retrains absent or stale artifacts for every eligible
// sensor. A sensor is eligible with at least 20 readings; the calibration
// kind additionally requires 5 calibration records. One sensor's failure
// never aborts the others.
func (t *Trainer) AutoTrainSweep(ctx context.Context) []SweepOutcome {
	runID := uuid.NewString()
	log := t.log.With(zap.String("run_id", runID))

	sensors, err := t.data.Sensors()
	if err != nil {
		log.Error("sweep aborted: listing sensors failed", zap.Error(err))
		return nil
	}

	var outcomes []SweepOutcome
	for _, sensor := range sensors {
		if ctx.Err() != nil {
			log.Warn("sweep cancelled", zap.Int("completed", len(outcomes)))
			return outcomes
		}

		readingCount, err := t.data.CountReadings(sensor.ID)
		if err != nil || readingCount < minDriftReadings {
			continue
		}
		calibrationCount, err := t.data.CountCalibrations(sensor.ID)
		if err != nil {
			calibrationCount = 0
		}

		for _, kind := range mlmodel.Kinds {
			if kind == mlmodel.KindCalibration && calibrationCount < minCalibrations {
				continue
			}
			if !t.NeedsTraining(kind, sensor.ID) {
				continue
			}
			result := t.trainSafely(kind, sensor.ID)
			outcomes = append(outcomes, SweepOutcome{
				RunID:      runID,
				SensorID:   sensor.ID,
				SensorName: sensor.Name,
				Kind:       kind,
				Result:     result,
			})
			if result.Status != StatusSuccess {
				log.Warn("sweep training failed",
					zap.Uint("sensor_id", sensor.ID),
					zap.String("kind", string(kind)),
					zap.String("message", result.Message))
			}
		}
	}
	log.Info("auto-train sweep finished", zap.Int("outcomes", len(outcomes)))
	return outcomes
}

// trainSafely converts a panic during fitting into an error result so bulk
// operations keep going.
func (t *Trainer) trainSafely(kind mlmodel.Kind, sensorID uint) (result TrainResult) {
	defer func() {
		if r := recover(); r != nil {
			result = errResult(kind, sensorID, "training failed: %v", r)
		}
	}()
	return t.Train(kind, sensorID)
}

// RunSweepLoop runs AutoTrainSweep on a ticker until the context is
// cancelled. Model persistence is atomic, so cancellation mid-cycle cannot
// leave a half-written artifact behind.
func (t *Trainer) RunSweepLoop(ctx context.Context, interval time.Duration) {
	t.log.Info("starting auto-train loop", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	t.AutoTrainSweep(ctx)
	for {
		select {
		case <-ctx.Done():
			t.log.Info("auto-train loop stopped")
			return
		case <-ticker.C:
			t.AutoTrainSweep(ctx)
		}
	}
}
