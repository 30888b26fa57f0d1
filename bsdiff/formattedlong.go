package bsdiff

// signBit marks a formatted-long's magnitude as negative: the bsdiff
// stream's encoding is little-endian magnitude with the sign folded into
// the top bit of the most significant byte rather than two's complement,
// so -0 and +0 both round-trip and the magnitude never needs 64 full
// bits (int64 magnitudes never reach 1<<63).
const signBit = uint64(1) << 63

// PutFormattedLong writes v into dst[0:8] using the bsdiff stream's
// formatted-long encoding.
func PutFormattedLong(dst []byte, v int64) {
	var mag uint64
	if v < 0 {
		mag = uint64(-v) | signBit
	} else {
		mag = uint64(v)
	}

	for i := range 8 {
		dst[i] = byte(mag)
		mag >>= 8
	}
}

// FormattedLong returns v encoded as an 8-byte formatted long.
func FormattedLong(v int64) [8]byte {
	var out [8]byte
	PutFormattedLong(out[:], v)

	return out
}

// ParseFormattedLong decodes 8 bytes of formatted-long encoding back
// into a signed value.
func ParseFormattedLong(src []byte) int64 {
	var mag uint64
	for i := 7; i >= 0; i-- {
		mag = (mag << 8) | uint64(src[i])
	}

	if mag&signBit != 0 {
		return -int64(mag &^ signBit)
	}

	return int64(mag)
}
