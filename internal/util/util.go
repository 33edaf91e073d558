package util

// Modbus registers arrive as big-endian words; multi-register values on
// Deye inverters are low word first.

func WordToUint16(regBytes []byte) uint16 {
	result := uint16(regBytes[1])
	result |= uint16(regBytes[0]) << 8
	return result
}

func WordToInt16(regBytes []byte) int16 {
	result := int16(regBytes[1]) & 0xff
	result |= int16(regBytes[0]) << 8
	return result
}

func LowHighToUint32(regBytes []byte) uint32 {
	result := uint32(regBytes[1])
	result |= uint32(regBytes[0]) << 8
	result |= uint32(regBytes[3]) << 16
	result |= uint32(regBytes[2]) << 24
	return result
}

func Uint16ToWord(value uint16) []byte {
	var result [2]byte
	result[1] = byte(value & 0xff)
	result[0] = byte(value >> 8)
	return result[:]
}
