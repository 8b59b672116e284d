package main

import (
	"github.com/mklimuk/busq/accel"
	"github.com/mklimuk/busq/air"
	"github.com/mklimuk/busq/environment"
	"github.com/mklimuk/busq/gpio"
	"github.com/mklimuk/busq/sim"
)

// newSimBus returns an in-memory bus populated with one of every supported
// device at its default address.
func newSimBus() *sim.Bus {
	bus := sim.NewBus()

	// TC74: 22°C, DATA_RDY set
	tc74 := sim.NewDevice(2)
	tc74.Set(0x00, 22, 0x40)
	bus.Attach(0x4D, tc74)

	// HIH6021: ~36.8%RH, ~25.6°C
	hih := sim.NewDevice(4)
	hih.Set(0x00, 0x17, 0x8B, 0x65, 0xB8)
	bus.Attach(0x27, hih)

	mcp := sim.NewDevice(0x20)
	mcp.Set(0x12, 0xA5, 0x5A)
	bus.Attach(gpio.DefaultMCP23017Address, mcp)

	bma := sim.NewDevice(0x40)
	bus.Attach(accel.DefaultAddress, bma)
	// the motion interrupt stays latched until the latch register is reset
	bma.Set(0x18, 0x01)
	bma.OnWrite = func(reg byte, data []byte) {
		if reg == 0x1C && len(data) > 0 && data[0]&0x80 != 0 {
			bma.Set(0x18, 0x00)
		}
	}

	// AGS02MA: 500 ppb TVOC, firmware version 117, CRC-terminated frames
	ags := sim.NewDevice(0x30)
	ags.Set(0x00, 0x00, 0x00, 0x01, 0xF4, 0x65)
	ags.Set(0x11, 0x00, 0x00, 0x00, 0x75, 0xDA)
	bus.Attach(air.DefaultAddress, ags)

	// SHTC3: 25°C, 50%RH; commands are 16-bit so the frame comes from the hook
	shtc3 := sim.NewDevice(0x100)
	shtc3.OnRead = func(_ byte, data []byte) {
		copy(data, []byte{0x66, 0x66, 0x93, 0x80, 0x00, 0xA2})
	}
	bus.Attach(0x70, shtc3)

	// BH1750: 400 lux at the low address
	bh := sim.NewDevice(0x30)
	bh.Set(0x23, 0x01, 0xE1)
	bus.Attach(environment.BH1750AddrLow, bh)
	return bus
}
