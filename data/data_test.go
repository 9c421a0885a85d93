package data

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValid(t *testing.T) {
	good := Reading{Timestamp: 1700000000, Humidity: 55.0, Temperature: 21.3}
	assert.True(t, good.Valid())

	noClock := good
	noClock.Timestamp = 0
	assert.False(t, noClock.Valid(), "zero timestamp means no valid clock")

	failedRead := good
	failedRead.Humidity = math.NaN()
	assert.False(t, failedRead.Valid())

	failedRead = good
	failedRead.Temperature = math.NaN()
	assert.False(t, failedRead.Valid())

	outOfRange := good
	outOfRange.Humidity = 120.0
	assert.False(t, outOfRange.Valid())

	outOfRange = good
	outOfRange.Temperature = 99.0
	assert.False(t, outOfRange.Valid())
}

func TestJSONFieldNames(t *testing.T) {
	r := Reading{Timestamp: 1700000000, Humidity: 55.0, Temperature: 21.3}
	js, err := json.Marshal(r)
	assert.NoError(t, err)
	assert.JSONEq(t, `{"timestamp":1700000000,"humidity":55,"temperatureC":21.3}`, string(js))
}

func TestCSVRoundTrip(t *testing.T) {
	r := Reading{Timestamp: 1700000000, Humidity: 55.5, Temperature: -3.25}
	line := r.MarshalCSV()
	assert.Equal(t, "1700000000,55.5,-3.25", line)

	parsed, err := ParseCSV(line + "\n")
	assert.NoError(t, err)
	assert.Equal(t, r, parsed)
}

func TestParseCSVRejectsGarbage(t *testing.T) {
	_, err := ParseCSV("not,a")
	assert.Error(t, err)

	_, err = ParseCSV("x,55.0,21.3")
	assert.Error(t, err)

	_, err = ParseCSV("1700000000,wet,21.3")
	assert.Error(t, err)

	_, err = ParseCSV("1700000000,55.0,warm")
	assert.Error(t, err)
}
