package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sensor-calibration-platform/analytics"
	"sensor-calibration-platform/anomaly"
	"sensor-calibration-platform/cache"
	"sensor-calibration-platform/calib"
	"sensor-calibration-platform/config"
	"sensor-calibration-platform/drift"
	"sensor-calibration-platform/handlers"
	"sensor-calibration-platform/mlmodel"
	"sensor-calibration-platform/scheduler"
	"sensor-calibration-platform/store"
	"sensor-calibration-platform/trainer"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	st, err := store.Open(cfg.Database.DSN)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	logger.Info("Connected to database")

	redisClient, err := cache.New(cfg.Redis.Addr)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))

	models, err := mlmodel.NewStore(cfg.Models.Dir)
	if err != nil {
		logger.Fatal("Failed to open model store", zap.String("dir", cfg.Models.Dir), zap.Error(err))
	}

	engine := analytics.NewEngine(st, redisClient, cfg.Analytics.Workers, cfg.Analytics.QueueSize, handlers.RecordAnomaly, logger)
	aggregator := analytics.NewAggregator(st, models)
	tr := trainer.New(st, models, logger)
	sched := scheduler.New(st)

	predictor := &drift.ModelPredictor{
		Models:   models,
		Readings: st,
		Fallback: &drift.TrendPredictor{Readings: st},
	}
	corrector := &calib.ModelCorrector{Models: models}
	classifier := &anomaly.ModelClassifier{Models: models}

	h := handlers.New(st, redisClient, engine, aggregator, tr, sched, predictor, corrector, classifier, logger)

	srv := &http.Server{
		Addr:           cfg.Server.Addr,
		Handler:        h.Router(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	if cfg.Training.Enabled {
		go tr.RunSweepLoop(sweepCtx, cfg.Training.Interval)
	}

	go func() {
		logger.Info("Server starting", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	stopSweep()
	engine.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server exited")
}
