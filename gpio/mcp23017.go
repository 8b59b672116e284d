package gpio

import (
	"fmt"

	"github.com/mklimuk/busq"
)

type registry int

const DefaultMCP23017Address = 0x21

const defaultRetryLimit = 3

// BRegistries
const (
	IODIRA registry = iota
	IOPOLA
	GPINTENA
	DEFVALA
	INTCONA
	IOCONA
	GPPUA
	INTFA
	INTCAPA
	GPIOA
	IODIRB
	IOPOLB
	GPINTENB
	DEFVALB
	INTCONB
	IOCONB
	GPPUB
	INTFB
	INTCAPB
	GPIOB
	OLATB
)

var (
	BankAddr = []map[registry]byte{
		{
			IODIRA:   0x00,
			IOPOLA:   0x02,
			GPINTENA: 0x04,
			DEFVALA:  0x06,
			INTCONA:  0x08,
			IOCONA:   0x0A,
			GPPUA:    0x0C,
			INTFA:    0x0E,
			INTCAPA:  0x10,
			GPIOA:    0x12,
			IODIRB:   0x01,
			IOPOLB:   0x03,
			GPINTENB: 0x05,
			DEFVALB:  0x07,
			INTCONB:  0x09,
			IOCONB:   0x0B,
			GPPUB:    0x0D,
			INTFB:    0x0F,
			INTCAPB:  0x11,
			GPIOB:    0x13,
			OLATB:    0x15,
		},
		{
			IODIRA:   0x00,
			IOPOLA:   0x01,
			GPINTENA: 0x02,
			DEFVALA:  0x03,
			INTCONA:  0x04,
			IOCONA:   0x05,
			GPPUA:    0x06,
			INTFA:    0x07,
			INTCAPA:  0x08,
			GPIOA:    0x09,
			IODIRB:   0x10,
			IOPOLB:   0x11,
			GPINTENB: 0x12,
			DEFVALB:  0x13,
			INTCONB:  0x14,
			IOCONB:   0x15,
			GPPUB:    0x16,
			INTFB:    0x17,
			INTCAPB:  0x18,
			GPIOB:    0x19,
			OLATB:    0x1A,
		},
	}
)

/*
	Steps to read GPIO:

1. Set 0xFF to IODIR registry (all inputs) - 0x00(A)/0x01(B)
2. Configure pull-up? 0x06
3. Read port register 0x09
*/
type MCP23017 struct {
	bus        busq.Submitter
	bank       int
	address    byte
	retryLimit int

	tx      busq.Transaction
	buf     [1]byte
	op      operation
	attempt int
	pending bool
}

// operation is a single register access with its completion callback.
type operation struct {
	desc    string
	reg     registry
	write   bool
	onWrite func(error)
	onRead  func(byte, error)
}

type Option func(*MCP23017)

// WithRetryLimit sets the number of attempts made while the bus reports busy.
func WithRetryLimit(limit int) Option {
	return func(m *MCP23017) {
		m.retryLimit = limit
	}
}

// WithBank selects the register layout (IOCON.BANK).
func WithBank(bank int) Option {
	return func(m *MCP23017) {
		m.bank = bank
	}
}

func NewMCP23017(bus busq.Submitter, address byte, opts ...Option) *MCP23017 {
	m := &MCP23017{retryLimit: defaultRetryLimit, bus: bus, address: address}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InitA sets IODIR registry to inout on I/O pool A
func (m *MCP23017) InitA(inout byte, done func(error)) error {
	return m.write(operation{desc: "initialize gpio A set", reg: IODIRA, onWrite: done}, inout)
}

// InitB sets IODIR registry to inout on I/O pool B
func (m *MCP23017) InitB(inout byte, done func(error)) error {
	return m.write(operation{desc: "initialize gpio B set", reg: IODIRB, onWrite: done}, inout)
}

// PullUpA sets up pull up resistors on set A
func (m *MCP23017) PullUpA(settings byte, done func(error)) error {
	return m.write(operation{desc: "set pull-up on gpio A set", reg: GPPUA, onWrite: done}, settings)
}

// PullUpB sets up pull up resistors on set B
func (m *MCP23017) PullUpB(settings byte, done func(error)) error {
	return m.write(operation{desc: "set pull-up on gpio B set", reg: GPPUB, onWrite: done}, settings)
}

// WriteSettingsA writes the IOCON registry through its A address
func (m *MCP23017) WriteSettingsA(settings byte, done func(error)) error {
	return m.write(operation{desc: "write settings on gpio A set", reg: IOCONA, onWrite: done}, settings)
}

// WriteSettingsB writes the IOCON registry through its B address
func (m *MCP23017) WriteSettingsB(settings byte, done func(error)) error {
	return m.write(operation{desc: "write settings on gpio B set", reg: IOCONB, onWrite: done}, settings)
}

// ReadA reads gpio A set values
func (m *MCP23017) ReadA(done func(byte, error)) error {
	return m.read(operation{desc: "read gpio A set", reg: GPIOA, onRead: done})
}

// ReadB reads gpio B set values
func (m *MCP23017) ReadB(done func(byte, error)) error {
	return m.read(operation{desc: "read gpio B set", reg: GPIOB, onRead: done})
}

// ReadSettingsA reads contents of IOCON registry
func (m *MCP23017) ReadSettingsA(done func(byte, error)) error {
	return m.read(operation{desc: "read gpio A settings", reg: IOCONA, onRead: done})
}

// ReadSettingsB reads contents of IOCON registry
func (m *MCP23017) ReadSettingsB(done func(byte, error)) error {
	return m.read(operation{desc: "read gpio B settings", reg: IOCONB, onRead: done})
}

// Read reads set A and then set B.
func (m *MCP23017) Read(done func([]byte, error)) error {
	return m.ReadA(func(a byte, err error) {
		if err != nil {
			done(nil, fmt.Errorf("could not read gpio set A: %w", err))
			return
		}
		err = m.ReadB(func(b byte, err error) {
			if err != nil {
				done(nil, fmt.Errorf("could not read gpio set B: %w", err))
				return
			}
			done([]byte{a, b}, nil)
		})
		if err != nil {
			done(nil, fmt.Errorf("could not read gpio set B: %w", err))
		}
	})
}

func (m *MCP23017) write(op operation, value byte) error {
	if m.pending {
		return busq.ErrPending
	}
	op.write = true
	m.buf[0] = value
	return m.start(op)
}

func (m *MCP23017) read(op operation) error {
	if m.pending {
		return busq.ErrPending
	}
	return m.start(op)
}

func (m *MCP23017) start(op operation) error {
	m.op = op
	m.attempt = 0
	if !m.submit() {
		return busq.ErrPending
	}
	m.pending = true
	return nil
}

func (m *MCP23017) submit() bool {
	m.attempt++
	m.tx.OnComplete(m, nil)
	extra := busq.Register(BankAddr[m.bank][m.op.reg])
	if m.op.write {
		return m.bus.SubmitWrite(&m.tx, uint16(m.address), extra, m.buf[:])
	}
	return m.bus.SubmitRead(&m.tx, uint16(m.address), extra, m.buf[:])
}

func (m *MCP23017) Notify(any) {
	err := m.tx.Err()
	if m.tx.ErrCode == busq.CodeBusBusy && m.attempt < m.retryLimit {
		m.submit()
		return
	}
	if err != nil {
		if m.tx.ErrCode == busq.CodeBusBusy {
			err = fmt.Errorf("could not %s (retry limit reached): %w", m.op.desc, err)
		} else {
			err = fmt.Errorf("could not %s: %w", m.op.desc, err)
		}
	}
	m.pending = false
	op := m.op
	if op.onWrite != nil {
		op.onWrite(err)
	}
	if op.onRead != nil && err != nil {
		op.onRead(0, err)
		return
	}
	if op.onRead != nil {
		op.onRead(m.buf[0], nil)
	}
}
