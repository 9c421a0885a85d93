package uploader

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/christoff-linde/MonitoringESP/data"
	"github.com/christoff-linde/MonitoringESP/env"
	"github.com/google/go-querystring/query"
	logger "github.com/sirupsen/logrus"
)

// Identity is appended to the endpoint URL so the API can tell nodes apart.
type Identity struct {
	Device   string `url:"device,omitempty"`
	Firmware string `url:"fw,omitempty"`
}

// Client submits buffered readings to the remote API. One POST per call, no
// internal retries; the scheduler re-arms its upload timer on failure.
type Client struct {
	base     string
	identity Identity
	client   *http.Client
}

func New(base string, identity Identity) *Client {
	return &Client{
		base:     base,
		identity: identity,
		// sane timeout so idle connections are terminated
		client: &http.Client{Timeout: time.Second * 30},
	}
}

// Upload serializes the readings and POSTs them: a single reading goes to the
// entry endpoint as one object, more than one goes to the list endpoint as an
// array. Returns the HTTP status code, or -1 with the error on transport
// failure. The response body is never parsed.
func (c *Client) Upload(readings []data.Reading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}

	var (
		path    string
		payload interface{}
	)
	if len(readings) == 1 {
		path = env.EntriesPath
		payload = readings[0]
	} else {
		path = env.EntryListPath
		payload = readings
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return -1, err
	}

	url := c.base + path
	vals, _ := query.Values(c.identity)
	if enc := vals.Encode(); enc != "" {
		url += "?" + enc
	}

	resp, err := c.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		logger.Errorf("Failed to POST data [%v]", err)
		return -1, err
	}
	defer resp.Body.Close()

	logger.Infof("Uploaded %v readings, HTTP [%v]", len(readings), resp.Status)
	return resp.StatusCode, nil
}
