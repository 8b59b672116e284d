package environment

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/sigurn/crc8"

	"github.com/mklimuk/busq"
)

// SHTC3 I2C address (7-bit)
const shtc3Address = 0x70

// Commands (Big Endian on the wire)
const (
	shtc3CmdWake  uint16 = 0x3517
	shtc3CmdSleep uint16 = 0xB098

	// Normal power, clock stretching disabled
	// Measure T first, then RH
	shtc3CmdMeasureTFirstNoCS uint16 = 0x7866
)

const (
	// wake-up takes < 240us
	shtc3WakeDelay = time.Millisecond
	// typical measurement time is ~12.1ms in normal mode
	shtc3MeasureDelay = 15 * time.Millisecond
)

// Sensirion CRC-8, polynomial 0x31, init 0xFF
var shtCRCTable = crc8.MakeTable(crc8.Params{
	Poly:   0x31,
	Init:   0xFF,
	XorOut: 0x00,
	Check:  0xF7,
	Name:   "CRC-8/NRSC-5",
})

type shtc3Stage int

const (
	shtc3StageWake shtc3Stage = iota
	shtc3StageMeasure
	shtc3StageFetch
	shtc3StageSleep
)

func (s shtc3Stage) String() string {
	switch s {
	case shtc3StageWake:
		return "wake"
	case shtc3StageMeasure:
		return "measure command"
	case shtc3StageFetch:
		return "read"
	default:
		return "sleep"
	}
}

// SHTC3 represents Sensirion SHTC3 Temperature/Humidity sensor
// Typical usage:
//
//	s := NewSHTC3(scheduler)
//	err := s.Measure(func(t, h float32, err error) { ... })
//
// then keep running the scheduler and calling Poll until the callback fires.
type SHTC3 struct {
	bus busq.Submitter
	now func() time.Time

	tx   busq.Transaction
	cmd  [2]byte
	resp [6]byte
	next busq.Deferred

	pending  bool
	lastTemp float32
	lastHum  float32
	err      error
	done     func(temp, hum float32, err error)
}

var _ busq.Poller = &SHTC3{}

func NewSHTC3(bus busq.Submitter) *SHTC3 {
	return &SHTC3{bus: bus, now: time.Now}
}

// Measure wakes the sensor, triggers a measurement, reads it back and puts
// the sensor to sleep again.
func (s *SHTC3) Measure(done func(temp, hum float32, err error)) error {
	if s.pending {
		return busq.ErrPending
	}
	s.done = done
	s.err = nil
	if !s.writeCmd(shtc3CmdWake, shtc3StageWake) {
		return busq.ErrPending
	}
	s.pending = true
	return nil
}

// Poll submits the phase following a wake-up or a measurement command once
// the sensor had time to complete it.
func (s *SHTC3) Poll() bool {
	return s.next.Fire(s.now())
}

func (s *SHTC3) LastTempAndHum() (float32, float32) {
	return s.lastTemp, s.lastHum
}

func (s *SHTC3) writeCmd(cmd uint16, stage shtc3Stage) bool {
	binary.BigEndian.PutUint16(s.cmd[:], cmd)
	s.tx.OnComplete(s, stage)
	return s.bus.SubmitWrite(&s.tx, shtc3Address, 0, s.cmd[:])
}

func (s *SHTC3) fetch() bool {
	s.tx.OnComplete(s, shtc3StageFetch)
	return s.bus.SubmitRead(&s.tx, shtc3Address, 0, s.resp[:])
}

func (s *SHTC3) Notify(arg any) {
	stage := arg.(shtc3Stage)
	if err := s.tx.Err(); err != nil {
		if stage == shtc3StageSleep {
			// not fatal for the reading, but report so the caller knows
			s.finish(fmt.Errorf("shtc3: sleep failed: %w", err))
			return
		}
		s.finish(fmt.Errorf("shtc3: %s failed: %w", stage, err))
		return
	}
	switch stage {
	case shtc3StageWake:
		s.next.Arm(s.now().Add(shtc3WakeDelay), func() bool {
			return s.writeCmd(shtc3CmdMeasureTFirstNoCS, shtc3StageMeasure)
		})
	case shtc3StageMeasure:
		s.next.Arm(s.now().Add(shtc3MeasureDelay), s.fetch)
	case shtc3StageFetch:
		s.err = s.decode()
		s.writeCmd(shtc3CmdSleep, shtc3StageSleep)
	case shtc3StageSleep:
		s.finish(s.err)
	}
}

// decode verifies both CRCs and converts the T[0:2], CRC, RH[3:5], CRC frame.
func (s *SHTC3) decode() error {
	if shtCRC8(s.resp[0:2]) != s.resp[2] {
		return fmt.Errorf("shtc3: temperature CRC mismatch")
	}
	if shtCRC8(s.resp[3:5]) != s.resp[5] {
		return fmt.Errorf("shtc3: humidity CRC mismatch")
	}
	rawT := binary.BigEndian.Uint16(s.resp[0:2])
	rawRH := binary.BigEndian.Uint16(s.resp[3:5])
	// T(C) = -45 + 175 * rawT / 65535
	// RH(%) = 100 * rawRH / 65535
	s.lastTemp = -45.0 + (175.0 * float32(rawT) / 65535.0)
	s.lastHum = 100.0 * float32(rawRH) / 65535.0
	return nil
}

func (s *SHTC3) finish(err error) {
	s.pending = false
	s.next.Disarm()
	if s.done != nil {
		s.done(s.lastTemp, s.lastHum, err)
	}
}

func shtCRC8(data []byte) byte {
	return crc8.Checksum(data, shtCRCTable)
}
