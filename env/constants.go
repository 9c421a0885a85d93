package env

import "time"

const (
	// Remote API (see original node deployment: a LAN-hosted collector)
	APIBaseURL    = "http://192.168.0.108:5000"
	EntriesPath   = "/api/DataEntries"
	EntryListPath = "/api/DataEntries/list"

	// NTP
	NTPHost        = "pool.ntp.org:123"
	NTPPacketLen   = 48
	NTPEpochOffset = 2208988800 // seconds between 1900 and 1970
	UTCOffset      = 2 * time.Hour

	ClockResyncInterval = time.Hour
	ClockStaleTimeout   = 24 * time.Hour

	SampleInterval      = 5 * time.Minute
	SensorSettlingDelay = 2 * time.Second
	UploadInterval      = time.Hour

	// bring-up only; steady-state ticks never block
	NTPBringupWait = 1500 * time.Millisecond
	TickInterval   = 250 * time.Millisecond

	// oldest readings are dropped beyond this
	BufferCap = 2048

	StoreFile = "readings.csv"

	DeviceName = "esp-env-node"
)
