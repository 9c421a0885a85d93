package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"time"

	"github.com/christoff-linde/MonitoringESP/clock"
	"github.com/christoff-linde/MonitoringESP/data"
	"github.com/christoff-linde/MonitoringESP/env"
	"github.com/christoff-linde/MonitoringESP/node"
	"github.com/christoff-linde/MonitoringESP/sensor"
	"github.com/christoff-linde/MonitoringESP/store"
	"github.com/christoff-linde/MonitoringESP/telemetry"
	"github.com/christoff-linde/MonitoringESP/uploader"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	logger "github.com/sirupsen/logrus"
)

const version = "MonitoringESP-2.4.0"

type sensornode struct {
	core *node.Core
}

type webdata struct {
	TimeNow     string  `json:"time"`
	UnixTime    int64   `json:"unixTime"`
	Synced      bool    `json:"synced"`
	Humidity    float64 `json:"humidity_RH"`
	Temperature float64 `json:"temperature_C"`
	Buffered    int     `json:"buffered"`
	Dropped     int     `json:"dropped"`
}

var Prom_humidity = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "relative_humidity",
		Help: "Relative Humidity",
	},
)

var Prom_temperature = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "temperature",
		Help: "Temperature C",
	},
)

var Prom_bufferedReadings = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "buffered_readings",
		Help: "Readings waiting for upload",
	},
)

var Prom_droppedReadings = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "dropped_readings",
		Help: "Readings dropped because the buffer was full",
	},
)

var Prom_clockAge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "clock_age_seconds",
		Help: "Seconds since the last good NTP sync",
	},
)

func init() {
	logger.Infof("%v: Initialize prometheus...", time.Now().Format(time.RFC822))
	prometheus.MustRegister(
		Prom_humidity,
		Prom_temperature,
		Prom_bufferedReadings,
		Prom_droppedReadings,
		Prom_clockAge)
}

// nullUploader stands in for the remote API in test mode.
type nullUploader struct{}

func (nullUploader) Upload(readings []data.Reading) (int, error) {
	logger.Infof("TEST MODE: discarding %v readings", len(readings))
	return http.StatusOK, nil
}

func main() {
	logger.Infof("Starting monitoring node [%v]", version)

	args := env.Args{
		Test:    flag.Bool("test", false, "test mode, does not send API data"),
		Verbose: flag.Bool("verbose", false, "debug logging"),
		API:     flag.String("api", env.APIBaseURL, "base URL of the data API"),
		Broker:  flag.String("broker", "", "optional MQTT broker for live telemetry"),
		Store:   flag.String("store", env.StoreFile, "reading buffer file"),
	}
	flag.Parse()

	if *args.Verbose {
		logger.SetLevel(logger.DebugLevel)
	}
	if *args.Test {
		logger.Info("TEST MODE")
	}

	logger.Infof("%v: Initialize sensors...", time.Now().Format(time.RFC822))
	atm, err := sensor.NewAtmosphere(args)
	if err != nil {
		logger.Errorf("Failed to initialise sensors!! [%v]", err)
		logger.Exit(1)
	}
	defer atm.Close()

	transport, err := clock.Dial(env.NTPHost)
	if err != nil {
		logger.Errorf("Failed to open NTP socket [%v]", err)
		logger.Exit(1)
	}
	defer transport.Close()

	clk := clockwork.NewRealClock()
	clockSource := clock.NewSource(clk, transport, env.UTCOffset)
	st := store.NewFileStore(*args.Store, env.BufferCap)

	var up node.Uploader
	if *args.Test {
		up = nullUploader{}
	} else {
		up = uploader.New(*args.API, uploader.Identity{Device: env.DeviceName, Firmware: version})
	}

	// the service manager brings the process back up; exiting is the
	// device-restart analog
	restart := func() {
		logger.Exit(1)
	}

	core := node.New(clk, clockSource, atm, st, up, restart)

	if *args.Broker != "" {
		pub, err := telemetry.NewPublisher(*args.Broker, env.DeviceName)
		if err != nil {
			logger.Errorf("MQTT telemetry unavailable [%v]", err)
		} else {
			defer pub.Close()
			core.SetPublisher(pub.Publish)
		}
	}

	n := sensornode{core: core}

	core.Bringup(5)
	go core.Run(context.Background())
	go n.heartbeat()

	logger.Info("Starting webservice...")
	http.HandleFunc("/", n.handler)
	http.Handle("/metrics", promhttp.Handler())
	logger.Fatal(http.ListenAndServe(":80", nil))
}

func (n *sensornode) heartbeat() {
	logger.Info("Heartbeat started")
	for range time.Tick(time.Second * 30) {
		s := n.core.Status()
		Prom_humidity.Set(s.LastReading.Humidity)
		Prom_temperature.Set(s.LastReading.Temperature)
		Prom_bufferedReadings.Set(float64(s.Buffered))
		Prom_droppedReadings.Set(float64(s.Dropped))
		Prom_clockAge.Set(s.ClockAgeSec)
		logger.Debugf("Heartbeat: buffered [%v] clock age [%.0fs]", s.Buffered, s.ClockAgeSec)
	}
}

func (n *sensornode) handler(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	s := n.core.Status()
	wd := webdata{
		TimeNow:     time.Now().Format(time.RFC822),
		UnixTime:    s.UnixTime,
		Synced:      s.Synced,
		Humidity:    s.LastReading.Humidity,
		Temperature: s.LastReading.Temperature,
		Buffered:    s.Buffered,
		Dropped:     s.Dropped,
	}

	js, err := json.Marshal(wd)
	if err != nil {
		logger.Errorf("JSON error [%v]", err)
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	_, _ = rw.Write(js) // not much we can do if this fails
}
