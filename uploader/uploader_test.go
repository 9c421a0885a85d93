package uploader

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/christoff-linde/MonitoringESP/data"
	"github.com/stretchr/testify/assert"
)

func TestUploadSingleReading(t *testing.T) {
	var gotPath, gotType string
	var got data.Reading
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		rw.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(srv.URL, Identity{})
	code, err := c.Upload([]data.Reading{{Timestamp: 1000, Humidity: 55.0, Temperature: 21.3}})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "/api/DataEntries", gotPath)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, data.Reading{Timestamp: 1000, Humidity: 55.0, Temperature: 21.3}, got)
}

func TestUploadBatch(t *testing.T) {
	var gotPath string
	var got []data.Reading
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		rw.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	readings := []data.Reading{
		{Timestamp: 1000, Humidity: 55.0, Temperature: 21.3},
		{Timestamp: 1060, Humidity: 54.0, Temperature: 21.5},
		{Timestamp: 1120, Humidity: 53.5, Temperature: 21.6},
	}

	c := New(srv.URL, Identity{})
	code, err := c.Upload(readings)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "/api/DataEntries/list", gotPath)
	assert.Equal(t, readings, got)
}

func TestUploadIdentityParams(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
	}))
	defer srv.Close()

	c := New(srv.URL, Identity{Device: "esp-env-node", Firmware: "2.4.0"})
	_, err := c.Upload([]data.Reading{{Timestamp: 1000, Humidity: 55.0, Temperature: 21.3}})

	assert.NoError(t, err)
	assert.Equal(t, "device=esp-env-node&fw=2.4.0", gotQuery)
}

func TestUploadTransportFailure(t *testing.T) {
	// nothing listens here
	c := New("http://127.0.0.1:1", Identity{})
	code, err := c.Upload([]data.Reading{{Timestamp: 1000, Humidity: 55.0, Temperature: 21.3}})

	assert.Error(t, err)
	assert.Equal(t, -1, code)
}

func TestUploadStatusPassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, Identity{})
	code, err := c.Upload([]data.Reading{{Timestamp: 1000, Humidity: 55.0, Temperature: 21.3}})

	// the node treats any real HTTP response as delivered; only the
	// transport layer can fail an upload
	assert.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestUploadNothing(t *testing.T) {
	c := New("http://example.invalid", Identity{})
	code, err := c.Upload(nil)

	assert.NoError(t, err)
	assert.Equal(t, 0, code)
}
