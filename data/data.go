package data

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Reading is a single timestamped sensor sample. Timestamp is UNIX seconds;
// zero means no valid clock was held when the sample was taken, and such a
// reading must never be stored or uploaded.
type Reading struct {
	Timestamp   int64   `json:"timestamp"`
	Humidity    float64 `json:"humidity"`
	Temperature float64 `json:"temperatureC"`
}

const (
	minTemperatureC = -40.0
	maxTemperatureC = 80.0
)

// Valid reports whether the reading is safe to persist and upload.
// A zero timestamp or a failed sensor read (NaN from the transducer,
// or values outside the DHT22's physical range) fails the check.
func (r Reading) Valid() bool {
	if r.Timestamp == 0 {
		return false
	}
	if math.IsNaN(r.Humidity) || math.IsNaN(r.Temperature) {
		return false
	}
	if r.Humidity < 0 || r.Humidity > 100 {
		return false
	}
	if r.Temperature < minTemperatureC || r.Temperature > maxTemperatureC {
		return false
	}
	return true
}

func (r Reading) String() string {
	return fmt.Sprintf("ts=%d humidity=%.1f%% temperature=%.1fC", r.Timestamp, r.Humidity, r.Temperature)
}

// MarshalCSV renders the reading as one persisted record line,
// "timestamp,humidity,temperature", without a trailing newline.
func (r Reading) MarshalCSV() string {
	return fmt.Sprintf("%d,%s,%s",
		r.Timestamp,
		strconv.FormatFloat(r.Humidity, 'f', -1, 64),
		strconv.FormatFloat(r.Temperature, 'f', -1, 64))
}

// ParseCSV parses one persisted record line.
func ParseCSV(line string) (Reading, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != 3 {
		return Reading{}, fmt.Errorf("malformed record [%q]", line)
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Reading{}, fmt.Errorf("bad timestamp [%q]: %w", parts[0], err)
	}
	hum, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return Reading{}, fmt.Errorf("bad humidity [%q]: %w", parts[1], err)
	}
	temp, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return Reading{}, fmt.Errorf("bad temperature [%q]: %w", parts[2], err)
	}
	return Reading{Timestamp: ts, Humidity: hum, Temperature: temp}, nil
}
