package sensor

import "errors"

// ErrNotReady means the transducer produced no numeric value: still settling,
// mid-conversion or disconnected. Transient; the caller drops the sample and
// retries on its next interval.
var ErrNotReady = errors.New("sensor not ready")

// Source produces one humidity/temperature sample on demand. The physical
// sensor has a slow internal polling cycle, so callers must leave the
// settling delay between deciding to read and calling ReadSample.
type Source interface {
	ReadSample() (humidity float64, temperature float64, err error)
}
