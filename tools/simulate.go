package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"time"
)

// Reading simulator: creates a fleet of sensors against a running server and
// streams synthetic readings with configurable drift and noise, so the
// detection and training pipelines have realistic data to chew on.

type simSensor struct {
	id           uint
	baseline     float64
	driftPerTick float64
	noise        float64
	offset       float64
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run tools/simulate.go <base-url> [sensors] [interval] [duration]")
		fmt.Println("Example: go run tools/simulate.go http://localhost:8080 5 2s 10m")
		os.Exit(1)
	}

	baseURL := os.Args[1]
	sensorCount := 5
	interval := 2 * time.Second
	duration := 10 * time.Minute

	if len(os.Args) > 2 {
		fmt.Sscanf(os.Args[2], "%d", &sensorCount)
	}
	if len(os.Args) > 3 {
		if d, err := time.ParseDuration(os.Args[3]); err == nil {
			interval = d
		}
	}
	if len(os.Args) > 4 {
		if d, err := time.ParseDuration(os.Args[4]); err == nil {
			duration = d
		}
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	types := []struct {
		kind     string
		baseline float64
		unit     string
	}{
		{"Temperature", 25.0, "C"},
		{"Pressure", 101.3, "kPa"},
		{"Humidity", 45.0, "%"},
		{"Vibration", 2.5, "mm/s"},
		{"Flow", 120.0, "L/min"},
	}

	sensors := make([]*simSensor, 0, sensorCount)
	for i := 0; i < sensorCount; i++ {
		t := types[i%len(types)]
		name := fmt.Sprintf("sim-%s-%d", t.kind, i+1)
		id, err := createSensor(client, baseURL, name, t.kind, t.baseline, t.unit)
		if err != nil {
			fmt.Printf("Failed to create sensor %d: %v\n", i+1, err)
			os.Exit(1)
		}
		sensors = append(sensors, &simSensor{
			id:       id,
			baseline: t.baseline,
			// Slow drift, a fraction of baseline per tick.
			driftPerTick: t.baseline * (rng.Float64()*0.002 - 0.001),
			noise:        t.baseline * 0.01,
		})
		fmt.Printf("Created sensor %d (%s, baseline %.1f)\n", id, t.kind, t.baseline)
	}

	fmt.Printf("\nStreaming readings every %v for %v\n\n", interval, duration)

	sent, failed := 0, 0
	deadline := time.Now().Add(duration)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for now := range ticker.C {
		if now.After(deadline) {
			break
		}
		for _, s := range sensors {
			s.offset += s.driftPerTick
			value := s.baseline + s.offset + rng.NormFloat64()*s.noise
			// Occasional spike to exercise anomaly detection.
			if rng.Float64() < 0.01 {
				value += s.baseline * 0.5 * math.Copysign(1, rng.Float64()-0.5)
			}
			if err := postReading(client, baseURL, s.id, value); err != nil {
				failed++
			} else {
				sent++
			}
		}
		if (sent+failed)%100 < sensorCount {
			fmt.Printf("sent=%d failed=%d\n", sent, failed)
		}
	}

	fmt.Printf("\nDone. sent=%d failed=%d\n", sent, failed)
}

func createSensor(client *http.Client, baseURL, name, kind string, baseline float64, unit string) (uint, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"name":  name,
		"type":  kind,
		"value": baseline,
		"unit":  unit,
	})
	resp, err := client.Post(baseURL+"/sensors", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var created struct {
		ID uint `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return 0, err
	}
	return created.ID, nil
}

func postReading(client *http.Client, baseURL string, sensorID uint, value float64) error {
	body, _ := json.Marshal(map[string]interface{}{
		"sensor_id": sensorID,
		"raw_value": value,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	resp, err := client.Post(baseURL+"/readings", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
