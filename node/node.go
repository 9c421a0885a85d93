package node

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/christoff-linde/MonitoringESP/clock"
	"github.com/christoff-linde/MonitoringESP/data"
	"github.com/christoff-linde/MonitoringESP/env"
	"github.com/christoff-linde/MonitoringESP/sensor"
	"github.com/christoff-linde/MonitoringESP/store"
	"github.com/jonboulle/clockwork"
	logger "github.com/sirupsen/logrus"
)

// Uploader submits a batch of readings and reports the HTTP status code.
type Uploader interface {
	Upload(readings []data.Reading) (int, error)
}

type Config struct {
	ClockResyncInterval time.Duration
	ClockStaleTimeout   time.Duration
	SampleInterval      time.Duration
	SensorSettlingDelay time.Duration
	UploadInterval      time.Duration
	BringupWait         time.Duration
	TickInterval        time.Duration
}

func DefaultConfig() Config {
	return Config{
		ClockResyncInterval: env.ClockResyncInterval,
		ClockStaleTimeout:   env.ClockStaleTimeout,
		SampleInterval:      env.SampleInterval,
		SensorSettlingDelay: env.SensorSettlingDelay,
		UploadInterval:      env.UploadInterval,
		BringupWait:         env.NTPBringupWait,
		TickInterval:        env.TickInterval,
	}
}

// Status is a read-only snapshot for the web handler and gauges.
type Status struct {
	Synced      bool         `json:"synced"`
	UnixTime    int64        `json:"unixTime"`
	ClockAgeSec float64      `json:"clockAgeSec"`
	Buffered    int          `json:"buffered"`
	Dropped     int          `json:"dropped"`
	LastReading data.Reading `json:"lastReading"`
	HaveReading bool         `json:"haveReading"`
}

// Core multiplexes clock resync, sensor sampling, persistence and upload over
// one cooperative loop. Everything it owns is touched only from Tick, which
// runs to completion before the next tick begins; no locking is needed beyond
// the status snapshot handed to other goroutines.
//
// Ordering inside a tick is fixed: resync timer, response poll, staleness
// watchdog, then the clock-gated sample and upload timers. Sampling and
// upload both depend on a valid time estimate, so the clock always goes
// first.
type Core struct {
	clk     clockwork.Clock
	clock   *clock.Source
	sensor  sensor.Source
	store   store.Store
	up      Uploader
	publish func(data.Reading)
	restart func()
	cfg     Config

	lastClockSyncAt     time.Time
	lastSampleAt        time.Time
	lastUploadAt        time.Time
	lastClockResponseAt time.Time
	sampleRequested     bool
	restarting          bool

	statusLock sync.Mutex
	status     Status
}

func New(clk clockwork.Clock, clockSource *clock.Source, sensorSource sensor.Source, st store.Store, up Uploader, restart func()) *Core {
	now := clk.Now()
	return &Core{
		clk:     clk,
		clock:   clockSource,
		sensor:  sensorSource,
		store:   st,
		up:      up,
		restart: restart,
		cfg:     DefaultConfig(),
		// all timers count from boot; in particular the watchdog window
		// starts here, so a node that never syncs at all still restarts
		lastClockSyncAt:     now,
		lastSampleAt:        now,
		lastUploadAt:        now,
		lastClockResponseAt: now,
	}
}

// SetConfig must be called before Run.
func (c *Core) SetConfig(cfg Config) {
	c.cfg = cfg
}

// SetPublisher installs an optional hook called with each stored reading.
func (c *Core) SetPublisher(publish func(data.Reading)) {
	c.publish = publish
}

// Bringup runs the one-time synchronous first-sync phase, bounded to the
// given number of attempts. Failure is not fatal; the tick loop keeps
// retrying in its awaiting-clock state.
func (c *Core) Bringup(attempts int) bool {
	for i := 0; i < attempts; i++ {
		_ = c.clock.RequestResync()
		if unix, ok := c.clock.PollResponse(c.cfg.BringupWait); ok {
			c.lastClockResponseAt = c.clk.Now()
			logger.Infof("Clock synced, unix time [%v]", unix)
			return true
		}
	}
	logger.Warnf("No NTP response after %v attempts", attempts)
	return false
}

// Tick runs one pass of the scheduler. It never blocks in steady state; the
// only bounded wait is the receive window while no first sync is held.
func (c *Core) Tick() {
	if c.restarting {
		return
	}
	now := c.clk.Now()

	if now.Sub(c.lastClockSyncAt) > c.cfg.ClockResyncInterval {
		_ = c.clock.RequestResync()
		c.lastClockSyncAt = now
	}

	if unix, ok := c.clock.PollResponse(0); ok {
		c.lastClockResponseAt = now
		logger.Infof("Clock synced, unix time [%v]", unix)
	}

	// A silently stuck clock is worse than a visible reboot.
	if now.Sub(c.lastClockResponseAt) > c.cfg.ClockStaleTimeout {
		logger.Errorf("No clock sync for [%v], restarting", now.Sub(c.lastClockResponseAt))
		c.restarting = true
		c.restart()
		return
	}

	if c.clock.EstimateNow() == 0 {
		// awaiting first sync: sampling and upload stay suppressed; the
		// bounded receive wait keeps this from busy-spinning
		_ = c.clock.RequestResync()
		c.lastClockSyncAt = now
		if unix, ok := c.clock.PollResponse(c.cfg.BringupWait); ok {
			c.lastClockResponseAt = c.clk.Now()
			logger.Infof("Clock synced, unix time [%v]", unix)
		}
		c.snapshotStatus()
		return
	}

	if now.Sub(c.lastSampleAt) > c.cfg.SampleInterval {
		// the sensor needs its settling delay before the actual read
		c.sampleRequested = true
		c.lastSampleAt = now
	}

	if c.sampleRequested && now.Sub(c.lastSampleAt) > c.cfg.SensorSettlingDelay {
		c.sampleRequested = false
		c.readSensor()
	}

	if now.Sub(c.lastUploadAt) > c.cfg.UploadInterval {
		// the timer re-arms whether or not the POST lands, so a dead
		// endpoint is retried once per interval rather than every tick
		c.lastUploadAt = now
		c.uploadBuffered()
	}

	c.snapshotStatus()
}

func (c *Core) readSensor() {
	hum, temp, err := c.sensor.ReadSample()
	if err != nil {
		if errors.Is(err, sensor.ErrNotReady) {
			logger.Debugf("Sensor not ready, dropping sample")
		} else {
			logger.Warnf("Sensor read failed [%v]", err)
		}
		return
	}
	r := data.Reading{
		Timestamp:   c.clock.EstimateNow(),
		Humidity:    hum,
		Temperature: temp,
	}
	if !r.Valid() {
		logger.Warnf("Dropping invalid reading [%v]", r)
		return
	}
	if err := c.store.Append(r); err != nil {
		logger.Errorf("Failed to buffer reading [%v]", err)
		return
	}
	logger.Infof("Sampled [%v]", r)

	c.statusLock.Lock()
	c.status.LastReading = r
	c.status.HaveReading = true
	c.statusLock.Unlock()

	if c.publish != nil {
		c.publish(r)
	}
}

func (c *Core) uploadBuffered() {
	if c.store.IsEmpty() {
		return
	}
	readings := c.store.Readings()
	code, err := c.up.Upload(readings)
	if err == nil && code > 0 {
		c.store.Drain()
		return
	}
	logger.Errorf("Upload failed, keeping %v readings [code %v] [%v]", len(readings), code, err)
}

func (c *Core) snapshotStatus() {
	c.statusLock.Lock()
	defer c.statusLock.Unlock()
	c.status.Synced = c.clock.Synced()
	c.status.UnixTime = c.clock.EstimateNow()
	c.status.ClockAgeSec = c.clock.SinceLastGoodSync().Seconds()
	c.status.Buffered = c.store.Len()
	c.status.Dropped = c.store.Dropped()
}

func (c *Core) Status() Status {
	c.statusLock.Lock()
	defer c.statusLock.Unlock()
	return c.status
}

// Run drives Tick until the context is cancelled or the watchdog fires.
func (c *Core) Run(ctx context.Context) {
	logger.Info("Scheduler started")
	for {
		select {
		case <-ctx.Done():
			logger.Info("Scheduler stopped")
			return
		default:
		}
		c.Tick()
		if c.restarting {
			return
		}
		c.clk.Sleep(c.cfg.TickInterval)
	}
}
