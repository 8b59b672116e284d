package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/busq"
	"github.com/mklimuk/busq/executor"
)

// fakeBridge answers HID reports with canned responses keyed by command.
type fakeBridge struct {
	requests  [][]byte
	responses map[byte][]byte
	last      byte
	closed    int
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{responses: map[byte][]byte{}}
}

func (f *fakeBridge) respond(cmd byte, payload ...byte) {
	resp := make([]byte, reportSize)
	resp[0] = cmd
	copy(resp[1:], payload)
	f.responses[cmd] = resp
}

func (f *fakeBridge) Write(b []byte) (int, error) {
	f.requests = append(f.requests, append([]byte(nil), b...))
	f.last = b[0]
	return len(b), nil
}

func (f *fakeBridge) Read(b []byte) (int, error) {
	resp, ok := f.responses[f.last]
	if !ok {
		resp = make([]byte, reportSize)
		resp[0] = f.last
	}
	return copy(b, resp), nil
}

func (f *fakeBridge) Close() error {
	f.closed++
	return nil
}

func newTestAdapter(f *fakeBridge) *MCP2221 {
	return NewMCP2221(
		withOpener(func() (hidDevice, error) { return f, nil }),
		WithResponseWait(0),
	)
}

func TestMCP2221_Write(t *testing.T) {
	f := newFakeBridge()
	d := newTestAdapter(f)
	require.NoError(t, d.Tx(context.Background(), 0x50, []byte{0x01, 0xAA}, nil))
	require.Len(t, f.requests, 1)
	req := f.requests[0]
	assert.Equal(t, cmdWrite, req[0])
	assert.Equal(t, []byte{0x02, 0x00}, req[1:3])
	assert.Equal(t, byte(0xA0), req[3])
	assert.Equal(t, []byte{0x01, 0xAA}, req[4:6])
	assert.Equal(t, 1, f.closed)
}

func TestMCP2221_CombinedRead(t *testing.T) {
	f := newFakeBridge()
	f.respond(cmdGetData, 0x00, 0x00, 0x02, 0x11, 0x22)
	d := newTestAdapter(f)
	buf := make([]byte, 2)
	require.NoError(t, d.Tx(context.Background(), 0x50, []byte{0x10}, buf))
	assert.Equal(t, []byte{0x11, 0x22}, buf)
	require.Len(t, f.requests, 3)
	assert.Equal(t, cmdWriteNoStop, f.requests[0][0])
	assert.Equal(t, cmdReadRepeatStart, f.requests[1][0])
	assert.Equal(t, byte(0xA1), f.requests[1][3])
	assert.Equal(t, cmdGetData, f.requests[2][0])
}

func TestMCP2221_Errors(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(f *fakeBridge)
		w, r     []byte
		address  uint16
		expected error
	}{
		{
			name:     "engine busy",
			setup:    func(f *fakeBridge) { f.respond(cmdWrite, respEngineBusy) },
			w:        []byte{0x00},
			address:  0x20,
			expected: busq.ErrBusBusy,
		},
		{
			name:     "read nack",
			setup:    func(f *fakeBridge) { f.respond(cmdGetData, respReadError) },
			r:        make([]byte, 1),
			address:  0x20,
			expected: busq.ErrNack,
		},
		{
			name: "echo mismatch",
			setup: func(f *fakeBridge) {
				f.responses[cmdWrite] = make([]byte, reportSize)
			},
			w:        []byte{0x00},
			address:  0x20,
			expected: ErrCommandFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeBridge()
			tt.setup(f)
			err := newTestAdapter(f).Tx(context.Background(), tt.address, tt.w, tt.r)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestMCP2221_InvalidRequests(t *testing.T) {
	d := newTestAdapter(newFakeBridge())
	ctx := context.Background()
	assert.Error(t, d.Tx(ctx, 0x80, []byte{0x00}, nil))
	assert.Error(t, d.Tx(ctx, 0x20, make([]byte, MaxTransfer+1), nil))
}

func TestMCP2221_DeviceMissing(t *testing.T) {
	d := NewMCP2221(withOpener(func() (hidDevice, error) { return nil, ErrDeviceNotFound }))
	err := d.Tx(context.Background(), 0x20, []byte{0x00}, nil)
	assert.True(t, errors.Is(err, ErrDeviceNotFound))
	assert.ErrorIs(t, d.Init(), ErrDeviceNotFound)
}

func TestMCP2221_ContextCancelledWhileWaiting(t *testing.T) {
	f := newFakeBridge()
	d := NewMCP2221(
		withOpener(func() (hidDevice, error) { return f, nil }),
		WithResponseWait(time.Second),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	err := d.Tx(ctx, 0x20, []byte{0x00}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMCP2221_Status(t *testing.T) {
	f := newFakeBridge()
	payload := make([]byte, 30)
	payload[8], payload[9] = 0x04, 0x00 // requested size at [9:11]
	payload[12] = 0x03                  // data buffer counter at [13]
	payload[15], payload[16] = 0xA0, 0x00
	f.respond(cmdStatus, payload...)
	status, err := newTestAdapter(f).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(4), status.LastWriteRequestedSize)
	assert.Equal(t, 3, status.I2CDataBufferCounter)
	assert.Equal(t, "a000", status.CurrentAddress)
}

func TestMCP2221_RegisterReadWithDefaultTimeouts(t *testing.T) {
	f := newFakeBridge()
	f.respond(cmdGetData, 0x00, 0x00, 0x01, 0x19)
	d := NewMCP2221(withOpener(func() (hidDevice, error) { return f, nil }))
	sched := busq.New(executor.NewPolled(d))

	var tx busq.Transaction
	buf := make([]byte, 1)
	require.True(t, sched.SubmitRead(&tx, 0x4D, busq.Register(0x00), buf))
	sched.WaitFinish(&tx)

	require.NoError(t, tx.Err())
	assert.Equal(t, byte(0x19), buf[0])
	require.Len(t, f.requests, 3)
	assert.Equal(t, byte(0x00), f.requests[0][4])
}

func TestMCP2221_MinTimeout(t *testing.T) {
	assert.Equal(t, 250*time.Millisecond, NewMCP2221().MinTimeout())
	assert.Equal(t, 100*time.Millisecond, NewMCP2221(WithResponseWait(0)).MinTimeout())
}
