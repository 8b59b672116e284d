package busq

// ExtraRegister marks the low byte of the extra word as a register
// sub-address that precedes the data phase.
const ExtraRegister uint32 = 1 << 8

const extraRegisterMask uint32 = 0xFF

// Register builds an extra word addressing the given device register.
func Register(reg byte) uint32 {
	return ExtraRegister | uint32(reg)
}

// RegisterOf returns the register encoded in extra, if any.
func RegisterOf(extra uint32) (byte, bool) {
	if extra&ExtraRegister == 0 {
		return 0, false
	}
	return byte(extra & extraRegisterMask), true
}
