// Package sim provides an in-memory two-wire bus populated with register
// file devices. It is used by tests and by the `sim` CLI adapter.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mklimuk/busq"
)

var _ busq.Transport = &Bus{}

// Device is a register file with an auto-incrementing register pointer.
// A write sets the pointer from its first byte and stores the remaining
// bytes; a read returns bytes starting at the pointer.
type Device struct {
	mx        sync.Mutex
	registers []byte
	pointer   int
	// OnWrite is called after a write with the pointer and payload.
	OnWrite func(reg byte, data []byte)
	// OnRead may overwrite the returned bytes.
	OnRead func(reg byte, data []byte)
}

// NewDevice panics unless size is positive.
func NewDevice(size int) *Device {
	if size <= 0 {
		panic(fmt.Sprintf("sim: device size must be positive, got %d", size))
	}
	return &Device{registers: make([]byte, size)}
}

// Set stores values starting at reg. Addresses wrap like the register
// pointer does.
func (d *Device) Set(reg byte, values ...byte) {
	d.mx.Lock()
	defer d.mx.Unlock()
	for i, v := range values {
		d.registers[(int(reg)+i)%len(d.registers)] = v
	}
}

// Get returns the value of reg.
func (d *Device) Get(reg byte) byte {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.registers[int(reg)%len(d.registers)]
}

func (d *Device) write(w []byte) {
	d.mx.Lock()
	if len(w) > 0 {
		d.pointer = int(w[0]) % len(d.registers)
		for i, b := range w[1:] {
			d.registers[(d.pointer+i)%len(d.registers)] = b
		}
	}
	reg := byte(d.pointer)
	d.mx.Unlock()
	if d.OnWrite == nil {
		return
	}
	if len(w) == 0 {
		// quick command, no register pointer update
		d.OnWrite(reg, nil)
		return
	}
	d.OnWrite(reg, w[1:])
}

func (d *Device) read(r []byte) {
	d.mx.Lock()
	for i := range r {
		r[i] = d.registers[(d.pointer+i)%len(d.registers)]
	}
	reg := byte(d.pointer)
	d.mx.Unlock()
	if d.OnRead != nil {
		d.OnRead(reg, r)
	}
}

// Bus routes transfers to the attached devices.
type Bus struct {
	mx      sync.Mutex
	devices map[uint16]*Device
	delay   time.Duration
	busy    int
	txs     int
}

type BusOpt func(*Bus)

// WithDelay makes every transfer take at least d.
func WithDelay(d time.Duration) BusOpt {
	return func(b *Bus) {
		b.delay = d
	}
}

func NewBus(opts ...BusOpt) *Bus {
	b := &Bus{devices: map[uint16]*Device{}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach places dev at address, replacing any device already there.
func (b *Bus) Attach(address uint16, dev *Device) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.devices[address] = dev
}

// FailBusy makes the next n transfers fail with busq.ErrBusBusy.
func (b *Bus) FailBusy(n int) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.busy = n
}

// Transfers returns the number of transfers attempted so far.
func (b *Bus) Transfers() int {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.txs
}

func (b *Bus) Tx(ctx context.Context, address uint16, w, r []byte) error {
	b.mx.Lock()
	b.txs++
	dev := b.devices[address]
	busy := b.busy > 0
	if busy {
		b.busy--
	}
	b.mx.Unlock()
	if b.delay > 0 {
		timer := time.NewTimer(b.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if busy {
		return busq.ErrBusBusy
	}
	if dev == nil {
		return fmt.Errorf("sim: no device at %#x: %w", address, busq.ErrNack)
	}
	if len(w) > 0 || len(r) == 0 {
		dev.write(w)
	}
	if len(r) > 0 {
		dev.read(r)
	}
	return nil
}

func (b *Bus) Release(ctx context.Context) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.busy = 0
	return nil
}
