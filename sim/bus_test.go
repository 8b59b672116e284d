package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/busq"
)

func TestBus_RegisterAccess(t *testing.T) {
	bus := NewBus()
	dev := NewDevice(16)
	bus.Attach(0x20, dev)
	ctx := context.Background()

	require.NoError(t, bus.Tx(ctx, 0x20, []byte{0x04, 0xAA, 0xBB}, nil))
	assert.Equal(t, byte(0xAA), dev.Get(0x04))
	assert.Equal(t, byte(0xBB), dev.Get(0x05))

	buf := make([]byte, 2)
	require.NoError(t, bus.Tx(ctx, 0x20, []byte{0x04}, buf))
	assert.Equal(t, []byte{0xAA, 0xBB}, buf)

	// plain read continues from the last pointer
	buf = make([]byte, 1)
	require.NoError(t, bus.Tx(ctx, 0x20, nil, buf))
	assert.Equal(t, []byte{0xAA}, buf)
	assert.Equal(t, 3, bus.Transfers())
}

func TestBus_Errors(t *testing.T) {
	bus := NewBus()
	bus.Attach(0x20, NewDevice(4))
	ctx := context.Background()

	err := bus.Tx(ctx, 0x21, []byte{0x00}, nil)
	assert.ErrorIs(t, err, busq.ErrNack)

	bus.FailBusy(2)
	assert.ErrorIs(t, bus.Tx(ctx, 0x20, []byte{0x00}, nil), busq.ErrBusBusy)
	require.NoError(t, bus.Release(ctx))
	assert.NoError(t, bus.Tx(ctx, 0x20, []byte{0x00}, nil))
}

func TestBus_Delay(t *testing.T) {
	bus := NewBus(WithDelay(50 * time.Millisecond))
	bus.Attach(0x20, NewDevice(4))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	err := bus.Tx(ctx, 0x20, []byte{0x00}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDevice_Hooks(t *testing.T) {
	bus := NewBus()
	dev := NewDevice(4)
	var quick int
	dev.OnWrite = func(reg byte, data []byte) {
		if data == nil {
			quick++
			dev.Set(0x00, 0x42)
		}
	}
	dev.OnRead = func(reg byte, data []byte) {
		data[len(data)-1] = 0xFF
	}
	bus.Attach(0x27, dev)
	ctx := context.Background()

	require.NoError(t, bus.Tx(ctx, 0x27, nil, nil))
	assert.Equal(t, 1, quick)
	buf := make([]byte, 2)
	require.NoError(t, bus.Tx(ctx, 0x27, nil, buf))
	assert.Equal(t, []byte{0x42, 0xFF}, buf)
	assert.Equal(t, 1, quick, "reads must not trigger quick commands")
}

func TestDevice_Wraps(t *testing.T) {
	dev := NewDevice(4)
	dev.Set(0x03, 0x11, 0x22)
	assert.Equal(t, byte(0x11), dev.Get(0x03))
	assert.Equal(t, byte(0x22), dev.Get(0x00))
	assert.Equal(t, byte(0x22), dev.Get(0x04))
	assert.NotPanics(t, func() { dev.Set(0xFF, 0x33) })
	assert.Equal(t, byte(0x33), dev.Get(0x03))
	assert.Panics(t, func() { NewDevice(0) })
}
