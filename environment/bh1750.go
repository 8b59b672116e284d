package environment

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/mklimuk/busq"
)

const BH1750AddrHigh = 0b1011100
const BH1750AddrLow = 0b0100011

const (
	opCodeSingleLowResolution = 0b00100011
)

// measurement cycle takes typically 16ms, max time is 24ms, we will wait for 25ms
const bh1750MeasureDelay = 25 * time.Millisecond

type bh1750Stage int

const (
	bh1750StageCommand bh1750Stage = iota
	bh1750StageFetch
)

type BH1750 struct {
	bus  busq.Submitter
	addr byte
	now  func() time.Time

	tx      busq.Transaction
	cmd     [1]byte
	buf     [2]byte
	fetch   busq.Deferred
	pending bool
	lastLux int
	done    func(lux int, err error)
}

var _ busq.Poller = &BH1750{}

func NewBH1750(bus busq.Submitter, addr byte) *BH1750 {
	return &BH1750{
		addr: addr,
		bus:  bus,
		now:  time.Now,
		cmd:  [1]byte{opCodeSingleLowResolution},
	}
}

// RequestLux triggers a one-time low resolution measurement. The result is
// fetched from Poll once the measurement cycle is over.
func (sensor *BH1750) RequestLux(done func(lux int, err error)) error {
	if sensor.pending {
		return busq.ErrPending
	}
	sensor.done = done
	sensor.tx.OnComplete(sensor, bh1750StageCommand)
	if !sensor.bus.SubmitWrite(&sensor.tx, uint16(sensor.addr), 0, sensor.cmd[:]) {
		return busq.ErrPending
	}
	sensor.pending = true
	return nil
}

func (sensor *BH1750) Poll() bool {
	return sensor.fetch.Fire(sensor.now())
}

func (sensor *BH1750) LastLux() int {
	return sensor.lastLux
}

func (sensor *BH1750) read() bool {
	sensor.tx.OnComplete(sensor, bh1750StageFetch)
	return sensor.bus.SubmitRead(&sensor.tx, uint16(sensor.addr), 0, sensor.buf[:])
}

func (sensor *BH1750) Notify(arg any) {
	stage := arg.(bh1750Stage)
	if err := sensor.tx.Err(); err != nil {
		if stage == bh1750StageCommand {
			sensor.finish(0, fmt.Errorf("could not write command: %w", err))
			return
		}
		sensor.finish(0, fmt.Errorf("could not read data: %w", err))
		return
	}
	if stage == bh1750StageCommand {
		sensor.fetch.Arm(sensor.now().Add(bh1750MeasureDelay), sensor.read)
		return
	}
	res := float32(binary.BigEndian.Uint16(sensor.buf[:])) / 1.2
	sensor.lastLux = int(res)
	sensor.finish(sensor.lastLux, nil)
}

func (sensor *BH1750) finish(lux int, err error) {
	sensor.pending = false
	if sensor.done != nil {
		sensor.done(lux, err)
	}
}
