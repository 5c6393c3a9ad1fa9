package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"sensor-calibration-platform/models"
)

const (
	analysisTTL   = 5 * time.Minute
	statisticsTTL = time.Minute
)

// Client caches per-sensor analysis results and dashboard aggregates.
type Client struct {
	rdb *redis.Client
}

func New(addr string) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     50,
		MinIdleConns: 10,
		MaxRetries:   3,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &Client{rdb: rdb}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func analysisKey(sensorID uint) string {
	return fmt.Sprintf("analysis:%d", sensorID)
}

// SaveAnalysis caches the latest ingest outcome for a sensor.
func (c *Client) SaveAnalysis(ctx context.Context, result models.AnalysisResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, analysisKey(result.SensorID), data, analysisTTL).Err()
}

// GetAnalysis returns the cached ingest outcome, or nil on a miss.
func (c *Client) GetAnalysis(ctx context.Context, sensorID uint) (*models.AnalysisResult, error) {
	val, err := c.rdb.Get(ctx, analysisKey(sensorID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SetJSON caches an arbitrary value under key with the statistics TTL.
func (c *Client) SetJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, statisticsTTL).Err()
}

// GetJSON loads a cached value into out; ok is false on a miss.
func (c *Client) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false, err
	}
	return true, nil
}
