package sensor

import (
	"math"

	"github.com/christoff-linde/MonitoringESP/env"
	logger "github.com/sirupsen/logrus"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"
)

const BME280_I2C = 0x76

// Atmosphere reads humidity and temperature from a BME280-class sensor on
// the I²C bus.
type Atmosphere struct {
	dev  *bmxx80.Dev
	bus  i2c.BusCloser
	args env.Args
}

func NewAtmosphere(args env.Args) (*Atmosphere, error) {
	if _, err := host.Init(); err != nil {
		logger.Errorf("Failed to init host [%v]", err)
		return nil, err
	}

	bus, err := i2creg.Open("")
	if err != nil {
		logger.Errorf("Failed to open I²C: %v", err)
		return nil, err
	}

	logger.Infof("Starting BME280 reader [%x]", BME280_I2C)
	dev, err := bmxx80.NewI2C(bus, BME280_I2C, &bmxx80.DefaultOpts)
	if err != nil {
		logger.Errorf("failed to initialize bme280: %v", err)
		_ = bus.Close()
		return nil, err
	}

	return &Atmosphere{dev: dev, bus: bus, args: args}, nil
}

func (a *Atmosphere) ReadSample() (float64, float64, error) {
	em := physic.Env{}
	if err := a.dev.Sense(&em); err != nil {
		logger.Warnf("BME280 read failed [%v]", err)
		return 0, 0, ErrNotReady
	}
	if a.args.Verbose != nil && *a.args.Verbose {
		logger.Infof("Raw hum [%v] temp [%v]", em.Humidity, em.Temperature)
	}
	humidity := math.Round(float64(em.Humidity)/float64(physic.PercentRH)*10) / 10
	temperature := em.Temperature.Celsius()
	if math.IsNaN(humidity) || math.IsNaN(temperature) {
		return 0, 0, ErrNotReady
	}
	return humidity, temperature, nil
}

func (a *Atmosphere) Close() error {
	return a.bus.Close()
}
