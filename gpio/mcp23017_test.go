package gpio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/busq"
	"github.com/mklimuk/busq/executor"
	"github.com/mklimuk/busq/sim"
)

func setup(t *testing.T, opts ...Option) (*sim.Bus, *sim.Device, *busq.Scheduler[*executor.Polled], *MCP23017) {
	t.Helper()
	bus := sim.NewBus()
	dev := sim.NewDevice(0x20)
	bus.Attach(DefaultMCP23017Address, dev)
	s := busq.New(executor.NewPolled(bus))
	return bus, dev, s, NewMCP23017(s, DefaultMCP23017Address, opts...)
}

func drain(t *testing.T, s *busq.Scheduler[*executor.Polled]) {
	t.Helper()
	for i := 0; !s.Idle(); i++ {
		require.Less(t, i, 1000, "scheduler did not drain")
		s.Run()
	}
}

func TestMCP23017_Writes(t *testing.T) {
	tests := []struct {
		name string
		call func(m *MCP23017, done func(error)) error
		bank int
		reg  byte
	}{
		{"init A", func(m *MCP23017, done func(error)) error { return m.InitA(0xAB, done) }, 0, 0x00},
		{"init B", func(m *MCP23017, done func(error)) error { return m.InitB(0xAB, done) }, 0, 0x01},
		{"init B bank 1", func(m *MCP23017, done func(error)) error { return m.InitB(0xAB, done) }, 1, 0x10},
		{"pull-up A", func(m *MCP23017, done func(error)) error { return m.PullUpA(0xAB, done) }, 1, 0x06},
		{"pull-up B", func(m *MCP23017, done func(error)) error { return m.PullUpB(0xAB, done) }, 0, 0x0D},
		{"settings A", func(m *MCP23017, done func(error)) error { return m.WriteSettingsA(0xAB, done) }, 0, 0x0A},
		{"settings B", func(m *MCP23017, done func(error)) error { return m.WriteSettingsB(0xAB, done) }, 1, 0x15},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, dev, s, m := setup(t, WithBank(test.bank))
			called := false
			require.NoError(t, test.call(m, func(err error) {
				called = true
				assert.NoError(t, err)
			}))
			drain(t, s)
			assert.True(t, called)
			assert.Equal(t, byte(0xAB), dev.Get(test.reg))
		})
	}
}

func TestMCP23017_Read(t *testing.T) {
	_, dev, s, m := setup(t)
	dev.Set(0x12, 0x5A, 0xA5)
	var got []byte
	require.NoError(t, m.Read(func(values []byte, err error) {
		require.NoError(t, err)
		got = values
	}))
	drain(t, s)
	assert.Equal(t, []byte{0x5A, 0xA5}, got)
}

func TestMCP23017_ReadSettings(t *testing.T) {
	_, dev, s, m := setup(t)
	dev.Set(0x0A, 0x40, 0x44)
	var a, b byte
	require.NoError(t, m.ReadSettingsA(func(v byte, err error) {
		a = v
		require.NoError(t, m.ReadSettingsB(func(v byte, err error) {
			b = v
		}))
	}))
	drain(t, s)
	assert.Equal(t, byte(0x40), a)
	assert.Equal(t, byte(0x44), b)
}

func TestMCP23017_Pending(t *testing.T) {
	_, _, s, m := setup(t)
	require.NoError(t, m.ReadA(func(byte, error) {}))
	assert.ErrorIs(t, m.InitA(0xFF, func(error) {}), busq.ErrPending)
	assert.Equal(t, 1, s.Len())
}

func TestMCP23017_BusBusyRetry(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		bus, dev, s, m := setup(t)
		dev.Set(0x13, 0x77)
		bus.FailBusy(2)
		var got byte
		require.NoError(t, m.ReadB(func(v byte, err error) {
			require.NoError(t, err)
			got = v
		}))
		drain(t, s)
		assert.Equal(t, byte(0x77), got)
		assert.Equal(t, 3, bus.Transfers())
	})
	t.Run("retry limit", func(t *testing.T) {
		bus, _, s, m := setup(t, WithRetryLimit(2))
		bus.FailBusy(5)
		var gotErr error
		require.NoError(t, m.InitA(0x00, func(err error) {
			gotErr = err
		}))
		drain(t, s)
		assert.ErrorIs(t, gotErr, busq.CodeBusBusy)
		assert.Contains(t, gotErr.Error(), "retry limit reached")
		assert.Equal(t, 2, bus.Transfers())
	})
}

func TestMCP23017_Nack(t *testing.T) {
	bus := sim.NewBus()
	s := busq.New(executor.NewPolled(bus))
	m := NewMCP23017(s, 0x22)
	var gotErr error
	require.NoError(t, m.Read(func(_ []byte, err error) {
		gotErr = err
	}))
	drain(t, s)
	assert.ErrorIs(t, gotErr, busq.CodeNack)
	assert.Contains(t, gotErr.Error(), "could not read gpio set A")
	assert.Equal(t, 1, bus.Transfers())
}
