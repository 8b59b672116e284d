package environment

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/busq"
	"github.com/mklimuk/busq/sim"
)

func TestHIH6021_ConvertHum(t *testing.T) {
	tests := []struct {
		given    []byte
		expected float32
	}{
		{[]byte{0x00, 0x00}, 0.0},
		{[]byte{0x3F, 0xFF}, 100.0},
		{[]byte{0x17, 0x8B}, 36.79038},
	}
	for _, test := range tests {
		t.Run(hex.EncodeToString(test.given), func(t *testing.T) {
			assert.Equal(t, test.expected, convertHumidity(test.given))
		})
	}
}

func TestHIH6021_ConvertTemp(t *testing.T) {
	tests := []struct {
		given    []byte
		expected float32
	}{
		{[]byte{0x00, 0x00}, -40.0},
		{[]byte{0xFF, 0xFC}, 125.01007},
		{[]byte{0x65, 0xB8}, 25.568916},
	}
	for _, test := range tests {
		t.Run(hex.EncodeToString(test.given), func(t *testing.T) {
			assert.Equal(t, test.expected, convertTemperature(test.given))
		})
	}
}

func TestHIH6021_Measure(t *testing.T) {
	bus := sim.NewBus()
	dev := sim.NewDevice(4)
	dev.Set(0, 0x17, 0x8B, 0x65, 0xB8)
	requests := 0
	dev.OnWrite = func(reg byte, data []byte) {
		requests++
	}
	stale := 3
	dev.OnRead = func(reg byte, data []byte) {
		if stale > 0 {
			stale--
			data[0] |= 0x40
		}
	}
	bus.Attach(hih6021DefaultAddress, dev)
	s := newScheduler(bus)
	sensor := NewHIH6021(s)

	var temp, hum float32
	var gotErr error
	require.NoError(t, sensor.Measure(func(tmp, h float32, err error) {
		temp, hum, gotErr = tmp, h, err
	}))
	drain(t, s)
	require.NoError(t, gotErr)
	assert.Equal(t, 1, requests)
	assert.Equal(t, float32(36.79038), hum)
	assert.Equal(t, float32(25.568916), temp)
	// one request and four fetches
	assert.Equal(t, 5, bus.Transfers())
}

func TestHIH6021_MeasureErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   byte
		expected error
	}{
		{"command mode", 0x80, ErrCommandMode},
		{"stale", 0x40, ErrStaleData},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			bus := sim.NewBus()
			dev := sim.NewDevice(4)
			dev.Set(0, test.status)
			bus.Attach(hih6021DefaultAddress, dev)
			s := newScheduler(bus)
			sensor := NewHIH6021(s, WithStaleRetries(5))
			var gotErr error
			require.NoError(t, sensor.Measure(func(_, _ float32, err error) {
				gotErr = err
			}))
			drain(t, s)
			assert.ErrorIs(t, gotErr, test.expected)
		})
	}
}

func TestHIH6021_MeasureNack(t *testing.T) {
	s := newScheduler(sim.NewBus())
	sensor := NewHIH6021(s, WithHIH6021Address(0x28))
	var gotErr error
	require.NoError(t, sensor.Measure(func(_, _ float32, err error) {
		gotErr = err
	}))
	assert.ErrorIs(t, sensor.Measure(nil), busq.ErrPending)
	drain(t, s)
	assert.ErrorIs(t, gotErr, busq.CodeNack)
}
