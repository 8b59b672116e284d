package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/busq"
	"github.com/mklimuk/busq/sim"
)

// MockTransport is a mock implementation of busq.Transport using testify/mock
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Tx(ctx context.Context, address uint16, w, r []byte) error {
	args := m.Called(ctx, address, w, r)
	if data, ok := args.Get(0).([]byte); ok {
		copy(r, data)
	}
	return args.Error(1)
}

func (m *MockTransport) Release(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestPolled_RegisterTransfers(t *testing.T) {
	tr := new(MockTransport)
	tr.On("Tx", mock.Anything, uint16(0x4D), []byte{0x01, 0x80}, []byte(nil)).Return(nil, nil).Once()
	tr.On("Tx", mock.Anything, uint16(0x4D), []byte{0x00}, mock.Anything).Return([]byte{0x19}, nil).Once()
	tr.On("Tx", mock.Anything, uint16(0x4D), []byte(nil), mock.Anything).Return([]byte{0x1A}, nil).Once()
	tr.On("Tx", mock.Anything, uint16(0x4D), []byte{0x05}, []byte(nil)).Return(nil, nil).Once()
	p := NewPolled(tr)

	require.True(t, p.StartWrite(0x4D, busq.Register(0x01), []byte{0x80}))
	assert.True(t, p.Busy())
	p.Run()
	assert.False(t, p.Busy())
	assert.Equal(t, busq.OK, p.Error())

	buf := make([]byte, 1)
	require.True(t, p.StartRead(0x4D, busq.Register(0x00), buf))
	p.Run()
	assert.Equal(t, byte(0x19), buf[0])

	require.True(t, p.StartRead(0x4D, 0, buf))
	p.Run()
	assert.Equal(t, byte(0x1A), buf[0])

	require.True(t, p.StartWrite(0x4D, 0, []byte{0x05}))
	p.Run()
	tr.AssertExpectations(t)
}

func TestPolled_StartRejections(t *testing.T) {
	tests := []struct {
		name     string
		start    func(p *Polled) bool
		expected busq.Code
	}{
		{
			name:     "address out of range",
			start:    func(p *Polled) bool { return p.StartWrite(0x400, 0, []byte{0x00}) },
			expected: busq.CodeInvalidAddress,
		},
		{
			name:     "empty read buffer",
			start:    func(p *Polled) bool { return p.StartRead(0x20, 0, nil) },
			expected: busq.CodeInvalidBuffer,
		},
		{
			name: "already busy",
			start: func(p *Polled) bool {
				p.StartWrite(0x20, 0, []byte{0x00})
				return p.StartWrite(0x21, 0, []byte{0x00})
			},
			expected: busq.CodeExecutorBusy,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPolled(new(MockTransport))
			assert.False(t, tt.start(p))
			assert.Equal(t, tt.expected, p.Error())
		})
	}
}

func TestPolled_TransferErrors(t *testing.T) {
	bus := sim.NewBus()
	bus.Attach(0x20, sim.NewDevice(4))
	p := NewPolled(bus)

	require.True(t, p.StartWrite(0x30, 0, []byte{0x00}))
	p.Run()
	assert.Equal(t, busq.CodeNack, p.Error())

	bus.FailBusy(1)
	require.True(t, p.StartWrite(0x20, 0, []byte{0x00}))
	p.Run()
	assert.Equal(t, busq.CodeBusBusy, p.Error())

	require.True(t, p.StartWrite(0x20, 0, []byte{0x00}))
	p.Run()
	assert.Equal(t, busq.OK, p.Error())
}

func TestPolled_Timeout(t *testing.T) {
	bus := sim.NewBus(sim.WithDelay(100 * time.Millisecond))
	bus.Attach(0x20, sim.NewDevice(4))
	p := NewPolled(bus, WithTimeout(5*time.Millisecond))
	require.True(t, p.StartWrite(0x20, 0, []byte{0x00}))
	p.Run()
	assert.Equal(t, busq.CodeTimeout, p.Error())
}

type slowTransport struct {
	*sim.Bus
	floor time.Duration
}

func (s slowTransport) MinTimeout() time.Duration {
	return s.floor
}

func TestPolled_TimeoutFloor(t *testing.T) {
	bus := sim.NewBus(sim.WithDelay(20 * time.Millisecond))
	bus.Attach(0x20, sim.NewDevice(4))
	p := NewPolled(slowTransport{Bus: bus, floor: 200 * time.Millisecond}, WithTimeout(5*time.Millisecond))
	require.True(t, p.StartWrite(0x20, 0, []byte{0x00}))
	p.Run()
	assert.Equal(t, busq.OK, p.Error())
}

func TestAsync_Transfer(t *testing.T) {
	bus := sim.NewBus(sim.WithDelay(10 * time.Millisecond))
	dev := sim.NewDevice(8)
	dev.Set(0x02, 0x11, 0x22)
	bus.Attach(0x50, dev)
	a := NewAsync(bus)
	defer a.Close()

	buf := make([]byte, 2)
	require.True(t, a.StartRead(0x50, busq.Register(0x02), buf))
	assert.True(t, a.Busy())
	assert.False(t, a.StartWrite(0x50, 0, []byte{0x00}), "second start while busy must be rejected")
	assert.Equal(t, busq.CodeExecutorBusy, a.Error())

	assert.Eventually(t, func() bool {
		a.Run()
		return !a.Busy()
	}, time.Second, time.Millisecond)
	assert.Equal(t, busq.OK, a.Error())
	assert.Equal(t, []byte{0x11, 0x22}, buf)
}

func TestAsync_WithScheduler(t *testing.T) {
	bus := sim.NewBus(sim.WithDelay(time.Millisecond))
	dev := sim.NewDevice(8)
	bus.Attach(0x50, dev)
	a := NewAsync(bus)
	defer a.Close()
	s := busq.New(a)

	records := make([]busq.Transaction, 4)
	for i := range records {
		require.True(t, s.SubmitWrite(&records[i], 0x50, busq.Register(byte(i)), []byte{byte(0xA0 + i)}))
	}
	var missing busq.Transaction
	require.True(t, s.SubmitWrite(&missing, 0x51, 0, []byte{0x00}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.WaitFinishContext(ctx, &missing))
	for i := range records {
		assert.True(t, records[i].Completed)
		assert.Equal(t, byte(0xA0+i), dev.Get(byte(i)))
	}
	assert.Equal(t, busq.CodeNack, missing.ErrCode)
}

func TestAsync_StartRejection(t *testing.T) {
	a := NewAsync(new(MockTransport))
	defer a.Close()
	assert.False(t, a.StartRead(0x20, 0, []byte{}))
	assert.Equal(t, busq.CodeInvalidBuffer, a.Error())
	assert.False(t, a.Busy())
}
