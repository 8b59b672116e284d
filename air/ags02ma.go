package air

import (
	"fmt"
	"time"

	"github.com/sigurn/crc8"

	"github.com/mklimuk/busq"
)

// AGS02MA default 7-bit I2C address is 0x1A.
// Datasheet also mentions write/read instructions 0x34/0x35 which are the
// 8-bit bus addresses (0x1A<<1 | 0 for write, | 1 for read) used on the wire.
const DefaultAddress = 0x1A

// Register/command map (per datasheet)
//
//	0x00: TVOC readout (first byte is status, next three bytes are TVOC ppb)
const (
	regTVOC       byte = 0x00
	regVersion    byte = 0x11
	regResistance byte = 0x20
	regCalibrate  byte = 0x01
)

// Status byte bit definitions (Data1):
// Bit0: RDY (0 = ready, 1 = not ready or pre-heat)
// Bit3..1: CI[2:0] data type (000 => TVOC in ppb after power-on)
// Bit7..4: Reserved (0)
const (
	statusBitRDY = 0x01
)

var ErrNotReady = fmt.Errorf("ags02ma: data not ready or sensor in pre-heat stage")
var ErrTooSoon = fmt.Errorf("ags02ma: sensor still settling after the previous operation")

// CRC-8 with polynomial 0x31 (x8 + x5 + x4 + 1) and initial value 0xFF.
var crcTable = crc8.MakeTable(crc8.Params{
	Poly:   0x31,
	Init:   0xFF,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
	Check:  0xF7,
	Name:   "CRC-8/AGS02MA",
})

const (
	TVOCModeDirectRead    byte = 0x00
	TVOCModeRegisterWrite byte = 0x01
)

type AGS02MAOpts struct {
	Address        byte
	ConfigureDelay time.Duration
	ReadDelay      time.Duration
	TxDelay        time.Duration
	TVOCMode       byte
}

type AGS02MAOpt func(*AGS02MAOpts)

func WithAddress(address byte) AGS02MAOpt {
	return func(o *AGS02MAOpts) {
		o.Address = address
	}
}

func WithConfigureDelay(delay time.Duration) AGS02MAOpt {
	return func(o *AGS02MAOpts) {
		o.ConfigureDelay = delay
	}
}

func WithReadDelay(delay time.Duration) AGS02MAOpt {
	return func(o *AGS02MAOpts) {
		o.ReadDelay = delay
	}
}

// WithTxDelay sets the gap between a command write and the following read.
func WithTxDelay(delay time.Duration) AGS02MAOpt {
	return func(o *AGS02MAOpts) {
		o.TxDelay = delay
	}
}

func WithTVOCMode(mode byte) AGS02MAOpt {
	return func(o *AGS02MAOpts) {
		o.TVOCMode = mode
	}
}

// request is one register access: an optional command write followed by a
// 5-byte read (4 data bytes + CRC).
type request struct {
	desc   string
	delay  time.Duration
	read   bool
	decode func(data []byte) (uint32, error)
	done   func(uint32, error)
}

// AGS02MA represents Aosong AGS02MA TVOC sensor.
// Typical usage:
//
//	s := NewAGS02MA(scheduler)
//	err := s.ReadTVOC(func(ppb uint32, err error) { ... })
//
// Value is reported in parts-per-billion (ppb).
// Note: The sensor requires a slow I2C clock (<= 30 kHz). Ensure adapter supports it.
// The sensor also needs ReadDelay between reads; requests issued earlier
// fail with ErrTooSoon. The read following a command write is held back by
// TxDelay and submitted from Poll, so Poll must be called while the
// scheduler runs.
type AGS02MA struct {
	bus    busq.Submitter
	config AGS02MAOpts
	now    func() time.Time

	cmd    busq.Transaction
	cmdBuf []byte
	rd     busq.Transaction
	buf    [5]byte

	req       request
	fetch     busq.Deferred
	pending   bool
	notBefore time.Time
}

var _ busq.Poller = &AGS02MA{}

func NewAGS02MA(bus busq.Submitter, opts ...AGS02MAOpt) *AGS02MA {
	config := AGS02MAOpts{
		Address:        DefaultAddress,
		ConfigureDelay: 2 * time.Second,
		ReadDelay:      1500 * time.Millisecond,
		TxDelay:        100 * time.Millisecond,
		TVOCMode:       TVOCModeRegisterWrite,
	}
	for _, opt := range opts {
		opt(&config)
	}
	s := &AGS02MA{
		bus:    bus,
		config: config,
		now:    time.Now,
		cmdBuf: make([]byte, 0, 6),
	}
	s.cmd.OnComplete(busq.HandlerFunc(s.commandDone), nil)
	s.rd.OnComplete(busq.HandlerFunc(s.readDone), nil)
	return s
}

// Configure writes the TVOC measurement settings.
func (s *AGS02MA) Configure(done func(error)) error {
	return s.start([]byte{regTVOC, 0x00, 0xFF, 0x00, 0xFF, 0x30}, request{
		desc:  "configuration write",
		delay: s.config.ConfigureDelay,
		done:  func(_ uint32, err error) { done(err) },
	})
}

// ReadTVOC performs a "master direct read" or "register write" as described
// in the datasheet, depending on the TVOCMode option. The first byte is
// status; the remaining three make a 24-bit big-endian ppb value.
func (s *AGS02MA) ReadTVOC(done func(ppb uint32, err error)) error {
	var cmd []byte
	if s.config.TVOCMode != TVOCModeDirectRead {
		cmd = []byte{regTVOC}
	}
	return s.start(cmd, request{
		desc:  "TVOC read",
		delay: s.config.ReadDelay,
		read:  true,
		decode: func(data []byte) (uint32, error) {
			if data[0]&statusBitRDY != 0 {
				return 0, ErrNotReady
			}
			return (uint32(data[1]) << 16) | (uint32(data[2]) << 8) | uint32(data[3]), nil
		},
		done: done,
	})
}

func (s *AGS02MA) ReadVersion(done func(version uint32, err error)) error {
	return s.start([]byte{regVersion}, request{
		desc:   "version read",
		read:   true,
		decode: lastByte,
		done:   done,
	})
}

func (s *AGS02MA) ReadResistance(done func(resistance uint32, err error)) error {
	return s.start([]byte{regResistance}, request{
		desc:   "resistance read",
		delay:  s.config.ReadDelay,
		read:   true,
		decode: lastByte,
		done:   done,
	})
}

func (s *AGS02MA) Calibrate(done func(error)) error {
	return s.start([]byte{regCalibrate}, request{
		desc:   "calibration",
		delay:  s.config.ReadDelay,
		read:   true,
		decode: lastByte,
		done:   func(_ uint32, err error) { done(err) },
	})
}

func lastByte(data []byte) (uint32, error) {
	return uint32(data[3]), nil
}

// start queues the command write. The read is queued from the write's
// handler, right away or through Poll once TxDelay has passed.
func (s *AGS02MA) start(cmd []byte, req request) error {
	if s.pending {
		return busq.ErrPending
	}
	if s.now().Before(s.notBefore) {
		return ErrTooSoon
	}
	s.req = req
	address := uint16(s.config.Address)
	if cmd == nil {
		if !s.submitRead() {
			return busq.ErrPending
		}
		s.pending = true
		return nil
	}
	s.cmdBuf = append(s.cmdBuf[:0], cmd...)
	if !s.bus.SubmitWrite(&s.cmd, address, 0, s.cmdBuf) {
		return busq.ErrPending
	}
	s.pending = true
	return nil
}

func (s *AGS02MA) submitRead() bool {
	return s.bus.SubmitRead(&s.rd, uint16(s.config.Address), 0, s.buf[:])
}

// Poll submits a read whose TxDelay has passed. It reports whether a read
// is still waiting for its slot.
func (s *AGS02MA) Poll() bool {
	return s.fetch.Fire(s.now())
}

func (s *AGS02MA) commandDone(any) {
	if err := s.cmd.Err(); err != nil {
		s.finish(0, fmt.Errorf("ags02ma: %s command write failed: %w", s.req.desc, err))
		return
	}
	if !s.req.read {
		s.finish(0, nil)
		return
	}
	if s.config.TxDelay <= 0 {
		s.submitRead()
		return
	}
	s.fetch.Arm(s.now().Add(s.config.TxDelay), s.submitRead)
}

func (s *AGS02MA) readDone(any) {
	if err := s.rd.Err(); err != nil {
		s.finish(0, fmt.Errorf("ags02ma: read failed: %w", err))
		return
	}
	crc := crc8Checksum(s.buf[:4])
	if crc != s.buf[4] {
		s.finish(0, fmt.Errorf("ags02ma: crc mismatch: expected %#x, got %#x", s.buf[4], crc))
		return
	}
	s.finish(s.req.decode(s.buf[:]))
}

func crc8Checksum(data []byte) uint8 {
	return crc8.Checksum(data, crcTable)
}

func (s *AGS02MA) finish(value uint32, err error) {
	s.pending = false
	if err == nil && s.req.delay > 0 {
		s.notBefore = s.now().Add(s.req.delay)
	}
	if s.req.done != nil {
		s.req.done(value, err)
	}
}
