package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSensorInputValidate(t *testing.T) {
	in := SensorInput{Name: "t-1", Type: SensorTemperature, Value: 25}
	assert.NoError(t, in.Validate())

	in.Name = ""
	assert.Error(t, in.Validate())

	in = SensorInput{Name: "t-1", Type: SensorType("thermal")}
	assert.Error(t, in.Validate())
}

func TestReadingInputValidate(t *testing.T) {
	in := ReadingInput{SensorID: 1, RawValue: 25}
	assert.NoError(t, in.Validate())

	in.SensorID = 0
	assert.Error(t, in.Validate())

	in = ReadingInput{SensorID: 1, Timestamp: "yesterday"}
	assert.Error(t, in.Validate())

	in.Timestamp = "2025-06-01T12:00:00Z"
	assert.NoError(t, in.Validate())
}

func TestReadingInputParsedTimestamp(t *testing.T) {
	in := ReadingInput{SensorID: 1, Timestamp: "2025-06-01T12:00:00Z"}
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), in.ParsedTimestamp())

	in.Timestamp = ""
	assert.WithinDuration(t, time.Now().UTC(), in.ParsedTimestamp(), time.Minute)
}
