package environment

import (
	"encoding/binary"
	"fmt"

	"github.com/mklimuk/busq"
)

const hih6021DefaultAddress = 0x27

// a fresh measurement takes ~37ms; each stale read is one more bus round trip
const defaultStaleRetries = 100

var divider = float32(1<<14 - 2)

var ErrStaleData = fmt.Errorf("stale data")
var ErrCommandMode = fmt.Errorf("device in command mode")

type hihStage int

const (
	hihStageMeasure hihStage = iota
	hihStageFetch
)

// HIH6021 represents Honywell HumidIcon™ Digital Humidity/Temperature sensor
type HIH6021 struct {
	bus     busq.Submitter
	address byte
	retries int

	tx       busq.Transaction
	resp     [4]byte
	attempt  int
	pending  bool
	lastTemp float32
	lastHum  float32
	done     func(temp, hum float32, err error)
}

type HIH6021Option func(*HIH6021)

func WithHIH6021Address(address byte) HIH6021Option {
	return func(h *HIH6021) {
		h.address = address
	}
}

// WithStaleRetries bounds the number of fetches issued while the device
// still reports stale data.
func WithStaleRetries(n int) HIH6021Option {
	return func(h *HIH6021) {
		h.retries = n
	}
}

func NewHIH6021(bus busq.Submitter, opts ...HIH6021Option) *HIH6021 {
	sensor := &HIH6021{bus: bus, address: hih6021DefaultAddress, retries: defaultStaleRetries}
	for _, opt := range opts {
		opt(sensor)
	}
	return sensor
}

// Measure issues a measurement request and fetches the result once the
// device reports fresh data.
func (sensor *HIH6021) Measure(done func(temp, hum float32, err error)) error {
	if sensor.pending {
		return busq.ErrPending
	}
	sensor.done = done
	sensor.attempt = 0
	sensor.tx.OnComplete(sensor, hihStageMeasure)
	// measurement request is an address-only write
	if !sensor.bus.SubmitWrite(&sensor.tx, uint16(sensor.address), 0, nil) {
		return busq.ErrPending
	}
	sensor.pending = true
	return nil
}

func (sensor *HIH6021) LastTempAndHum() (float32, float32) {
	return sensor.lastTemp, sensor.lastHum
}

func (sensor *HIH6021) fetch() {
	sensor.attempt++
	sensor.tx.OnComplete(sensor, hihStageFetch)
	sensor.bus.SubmitRead(&sensor.tx, uint16(sensor.address), 0, sensor.resp[:])
}

func (sensor *HIH6021) Notify(arg any) {
	stage := arg.(hihStage)
	if err := sensor.tx.Err(); err != nil {
		if stage == hihStageMeasure {
			sensor.finish(fmt.Errorf("could not write measurement request to device: %w", err))
			return
		}
		sensor.finish(fmt.Errorf("could not read measurement from device: %w", err))
		return
	}
	if stage == hihStageMeasure {
		sensor.fetch()
		return
	}
	// check the oldest bit
	if sensor.resp[0]&0x80 > 0 {
		sensor.finish(ErrCommandMode)
		return
	}
	// check the second oldest bit
	if sensor.resp[0]&0x40 > 0 {
		// measurement cycle not finished yet
		if sensor.attempt >= sensor.retries {
			sensor.finish(ErrStaleData)
			return
		}
		sensor.fetch()
		return
	}
	sensor.lastHum = convertHumidity(sensor.resp[0:2])
	sensor.lastTemp = convertTemperature(sensor.resp[2:4])
	sensor.finish(nil)
}

func (sensor *HIH6021) finish(err error) {
	sensor.pending = false
	if sensor.done != nil {
		sensor.done(sensor.lastTemp, sensor.lastHum, err)
	}
}

func convertHumidity(resp []byte) float32 {
	hum := float32(binary.BigEndian.Uint16(resp)) / divider * 100
	if hum > 100.00 {
		return 100.00
	}
	return hum
}

func convertTemperature(resp []byte) float32 {
	shift := resp[0] & 0x03
	shift <<= 6
	lsb := (resp[1] >> 2) | shift
	msb := resp[0] >> 2
	return float32(binary.BigEndian.Uint16([]byte{msb, lsb}))/divider*165 - 40
}
