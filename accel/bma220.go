package accel

import (
	"fmt"

	"github.com/mklimuk/busq"
)

const (
	regRange         = 0x22
	regLatch         = 0x1C
	regSlopeSettings = 0x12
	regSlopeDet      = 0x1A
	regWatchdog      = 0x2E
	regInterrupts    = 0x18
)

const DefaultAddress = 0x0A

type setting struct {
	reg   byte
	value byte
	desc  string
}

// motionSetup is written in order by InitMotionDetection.
var motionSetup = [...]setting{
	// set sensitivity
	{regRange, 0x03, "set detection sensitivity"},
	// set permanent interrupt latch lat_int[2:0] = 111
	{regLatch, 0b01110000, "set interrupt settings"},
	// enable slope detection
	{regSlopeDet, 0b00111000, "enable slope detection"},
	// set slope detection parameters (default 0x45)
	{regSlopeSettings, 0x45, "set slope detection settings"},
	// enable watchdog
	{regWatchdog, 0x06, "set watchdog settings"},
}

// BMA220 represents Bosh BMA220 accelerometer
type BMA220 struct {
	bus     busq.Submitter
	address byte

	setup       [len(motionSetup)]busq.Transaction
	setupBuf    [len(motionSetup)][1]byte
	initDone    func(error)
	initErr     error
	initPending bool

	check        busq.Transaction
	checkBuf     [1]byte
	checkDone    func(int, error)
	checkPending bool

	reset        busq.Transaction
	resetBuf     [1]byte
	resetDone    func(error)
	resetPending bool
}

func NewBMA220(bus busq.Submitter) *BMA220 {
	return NewBMA220At(bus, DefaultAddress)
}

func NewBMA220At(bus busq.Submitter, address byte) *BMA220 {
	b := &BMA220{bus: bus, address: address}
	b.check.OnComplete(busq.HandlerFunc(b.checked), nil)
	b.reset.OnComplete(busq.HandlerFunc(b.resetted), nil)
	return b
}

/*
en_slope_x (0x1A.5) enable slope detection on x-axis
en_slope_y (0x1A.4) enable slope detection on y-axis
en_slope_z (0x1A.3) enable slope detection on z-axis
slope_th (0x12[5:2]) define the threshold level of the slope 1 LSB threshold is 1 LSB of acc_data
slope_dur (0x12[1:0]) define the number of consecutive slope data points above slope_th which are required to set the interrupt (“00” = 1,”01” = 2,”10” = 3, “11” = 4)
slope_filt (0x12.6) defines whether filtered or unfiltered acceleration data should be used (evaluated) (‘0’=unfiltered, ‘1’=filtered)
slope_int (0x0C.0) whetherslopeinterrupthasbeentriggered
slope_first_x whether x-axis has triggered the interrupt (0=no, 1=yes)
slope_first_y whether y-axis has triggered the interrupt (0=no, 1=yes)
slope_first_z whether z-axis has triggered the interrupt (0=no, 1=yes)
slope_sign global register bit for all interrupts define the slope sign of the triggering signal (0=positive slope, 1=negative slope)
*/
// InitMotionDetection queues all setup writes at once; FIFO ordering keeps
// them in sequence on the bus. done receives the first failure, if any.
func (b *BMA220) InitMotionDetection(done func(error)) error {
	if b.initPending {
		return busq.ErrPending
	}
	b.initErr = nil
	for i, s := range motionSetup {
		b.setupBuf[i][0] = s.value
		b.setup[i].OnComplete(b, i)
		if !b.bus.SubmitWrite(&b.setup[i], uint16(b.address), busq.Register(s.reg), b.setupBuf[i][:]) {
			return busq.ErrPending
		}
	}
	b.initDone = done
	b.initPending = true
	return nil
}

func (b *BMA220) setupStep(i int) {
	if err := b.setup[i].Err(); err != nil && b.initErr == nil {
		b.initErr = fmt.Errorf("could not %s: %w", motionSetup[i].desc, err)
	}
	if i < len(motionSetup)-1 {
		return
	}
	done := b.initDone
	b.initDone = nil
	b.initPending = false
	if done != nil {
		done(b.initErr)
	}
}

// CheckMotionInterrupt reports 1 when the slope interrupt is latched.
func (b *BMA220) CheckMotionInterrupt(done func(int, error)) error {
	if b.checkPending {
		return busq.ErrPending
	}
	if !b.bus.SubmitRead(&b.check, uint16(b.address), busq.Register(regInterrupts), b.checkBuf[:]) {
		return busq.ErrPending
	}
	b.checkPending = true
	b.checkDone = done
	return nil
}

func (b *BMA220) checked(any) {
	done := b.checkDone
	b.checkDone = nil
	b.checkPending = false
	if done == nil {
		return
	}
	if err := b.check.Err(); err != nil {
		done(0, fmt.Errorf("could not read registry content: %w", err))
		return
	}
	// slope detection is on bit 0
	done(int(b.checkBuf[0]&0x01), nil)
}

// ResetMotionInterrupt clears the latched interrupt.
func (b *BMA220) ResetMotionInterrupt(done func(error)) error {
	if b.resetPending {
		return busq.ErrPending
	}
	b.resetBuf[0] = 0b11110000
	if !b.bus.SubmitWrite(&b.reset, uint16(b.address), busq.Register(regLatch), b.resetBuf[:]) {
		return busq.ErrPending
	}
	b.resetPending = true
	b.resetDone = done
	return nil
}

func (b *BMA220) resetted(any) {
	done := b.resetDone
	b.resetDone = nil
	b.resetPending = false
	if done == nil {
		return
	}
	if err := b.reset.Err(); err != nil {
		done(fmt.Errorf("could not set interrupt settings: %w", err))
		return
	}
	done(nil)
}

func (b *BMA220) Notify(arg any) {
	b.setupStep(arg.(int))
}
