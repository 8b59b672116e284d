package i2c

import (
	"context"
	"fmt"
	"sync"

	"gobot.io/x/gobot/v2/drivers/i2c"

	"github.com/mklimuk/busq"
)

var _ busq.Transport = &GobotBus{}

// GobotBus is a transport over a gobot adaptor (e.g. NanoPi, Raspberry Pi).
// Gobot connections are bound to one address, so one is opened lazily per
// device and kept until Close.
type GobotBus struct {
	mx        sync.Mutex
	connector i2c.Connector
	busNr     int
	conns     map[uint16]i2c.Connection
}

// NewGobotBus uses bus number busNr of the connector, or its default bus
// when busNr is negative.
func NewGobotBus(connector i2c.Connector, busNr int) *GobotBus {
	if busNr < 0 {
		busNr = connector.DefaultI2cBus()
	}
	return &GobotBus{
		connector: connector,
		busNr:     busNr,
		conns:     map[uint16]i2c.Connection{},
	}
}

func (b *GobotBus) connection(address uint16) (i2c.Connection, error) {
	if conn, ok := b.conns[address]; ok {
		return conn, nil
	}
	conn, err := b.connector.GetI2cConnection(int(address), b.busNr)
	if err != nil {
		return nil, fmt.Errorf("could not open connection to %x on bus %d: %w", address, b.busNr, err)
	}
	b.conns[address] = conn
	return conn, nil
}

// Tx writes w and then reads r. Gobot has no combined transfer so the read
// is issued with a separate start condition.
func (b *GobotBus) Tx(ctx context.Context, address uint16, w, r []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	conn, err := b.connection(address)
	if err != nil {
		return err
	}
	if len(w) > 0 || len(r) == 0 {
		if _, err := conn.Write(w); err != nil {
			return fmt.Errorf("could not write to %x: %w", address, err)
		}
	}
	if len(r) == 0 {
		return nil
	}
	n, err := conn.Read(r)
	if err != nil {
		return fmt.Errorf("could not read from %x: %w", address, err)
	}
	if n != len(r) {
		return fmt.Errorf("short read from %x: %d of %d bytes", address, n, len(r))
	}
	return nil
}

func (b *GobotBus) Release(ctx context.Context) error {
	return nil
}

func (b *GobotBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	var firstErr error
	for addr, conn := range b.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("could not close connection to %x: %w", addr, err)
		}
		delete(b.conns, addr)
	}
	return firstErr
}
