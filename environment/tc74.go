package environment

import (
	"fmt"

	"github.com/mklimuk/busq"
)

const tc74DefaultAddress = 0x4D
const tc74TempRegister = 0x00
const tc74ConfigRegister = 0x01
const tc74DataReady = 0x40

type tc74Stage int

const (
	tc74StageConfig tc74Stage = iota
	tc74StageTemp
)

// TC74 represents a Microchip TC74 Digital Temperature Sensor
// See: https://ww1.microchip.com/downloads/en/DeviceDoc/21462D.pdf
//
// Usage: Instantiate with NewTC74, then call RequestTemperature and keep
// the scheduler running until the callback fires.
type TC74 struct {
	bus      busq.Submitter
	address  byte
	tx       busq.Transaction
	buf      [1]byte
	lastTemp float32
	pending  bool

	onConfig func(byte, error)
	onTemp   func(float32, error)
}

type TC74Config struct {
	Address byte
}

type TC74ConfigOption func(*TC74Config)

func WithAddress(address byte) TC74ConfigOption {
	return func(c *TC74Config) {
		c.Address = address
	}
}

// NewTC74 creates a new TC74 sensor connector queueing its transfers on bus.
// The default address is 0x4D.
func NewTC74(bus busq.Submitter, opts ...TC74ConfigOption) *TC74 {
	config := &TC74Config{
		Address: tc74DefaultAddress,
	}
	for _, opt := range opts {
		opt(config)
	}
	return &TC74{bus: bus, address: config.Address}
}

// RequestConfig reads the configuration register (0x01).
func (sensor *TC74) RequestConfig(done func(config byte, err error)) error {
	if sensor.pending {
		return busq.ErrPending
	}
	sensor.onConfig = done
	sensor.onTemp = nil
	return sensor.readRegister(tc74ConfigRegister, tc74StageConfig)
}

// RequestTemperature reads the current temperature in Celsius. The DATA_RDY
// bit of the config register is checked first; while it is clear the last
// known temperature is reported.
func (sensor *TC74) RequestTemperature(done func(temp float32, err error)) error {
	if sensor.pending {
		return busq.ErrPending
	}
	sensor.onConfig = nil
	sensor.onTemp = done
	return sensor.readRegister(tc74ConfigRegister, tc74StageConfig)
}

func (sensor *TC74) readRegister(reg byte, stage tc74Stage) error {
	sensor.tx.OnComplete(sensor, stage)
	if !sensor.bus.SubmitRead(&sensor.tx, uint16(sensor.address), busq.Register(reg), sensor.buf[:]) {
		return busq.ErrPending
	}
	sensor.pending = true
	return nil
}

// LastTemperature returns the last successfully read temperature.
func (sensor *TC74) LastTemperature() float32 {
	return sensor.lastTemp
}

func (sensor *TC74) Notify(arg any) {
	stage := arg.(tc74Stage)
	if err := sensor.tx.Err(); err != nil {
		reg := "config"
		if stage == tc74StageTemp {
			reg = "temp"
		}
		sensor.finish(0, 0, fmt.Errorf("tc74: could not read %s register: %w", reg, err))
		return
	}
	switch stage {
	case tc74StageConfig:
		config := sensor.buf[0]
		if sensor.onTemp == nil {
			sensor.finish(config, 0, nil)
			return
		}
		if config&tc74DataReady == 0 {
			sensor.finish(config, sensor.lastTemp, nil)
			return
		}
		// the record has been dequeued already, resubmission cannot collide
		_ = sensor.readRegister(tc74TempRegister, tc74StageTemp)
	case tc74StageTemp:
		// 2's complement 8-bit value
		sensor.lastTemp = float32(int8(sensor.buf[0]))
		sensor.finish(0, sensor.lastTemp, nil)
	}
}

func (sensor *TC74) finish(config byte, temp float32, err error) {
	sensor.pending = false
	if sensor.onConfig != nil {
		sensor.onConfig(config, err)
		return
	}
	if sensor.onTemp != nil {
		sensor.onTemp(temp, err)
	}
}
