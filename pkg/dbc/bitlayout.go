package dbc

// Bits returns the absolute bit indices occupied by a signal, in extraction
// order, using Vector numbering (bit n is bit n%8 of byte n/8).
//
// Intel signals ascend from start, so the first index is the least
// significant bit of the raw value. Motorola signals descend from start
// inside each byte and jump forward by 8 at every byte boundary; the first
// index is the most significant bit.
func Bits(start, length int, order ByteOrder) []int {
	if length <= 0 {
		return nil
	}
	bits := make([]int, length)
	for i := range bits {
		if order == Motorola {
			bits[i] = start + 8*(i/8) - i%8
		} else {
			bits[i] = start + i
		}
	}
	return bits
}

// Bits returns the bit indices occupied by s. See Bits.
func (s *Signal) Bits() []int {
	return Bits(s.Start, s.Length, s.ByteOrder)
}

// maxBit is the exclusive upper bound of addressable bits in a classic CAN payload.
const maxBit = 64

func bitsInPayload(bits []int) bool {
	for _, b := range bits {
		if b < 0 || b >= maxBit {
			return false
		}
	}
	return true
}
