package can

import (
	"math"

	"github.com/cockroachdb/errors"

	"github.com/BIwashi/candbc/pkg/dbc"
)

var (
	// ErrDecode is returned when a payload does not cover a signal's bits.
	ErrDecode = errors.New("decode error")
	// ErrEncodeRange is returned when a value cannot be represented by a signal.
	ErrEncodeRange = errors.New("value outside encodable range")
	// ErrUnknownMessage is returned by Encode for a message name not in the database.
	ErrUnknownMessage = errors.New("unknown message")
	// ErrUnknownSignal is returned when encode values name a signal the message lacks.
	ErrUnknownSignal = errors.New("unknown signal")
)

// covers reports the first bit of bits that falls outside a payload of n
// bytes, or -1.
func covers(bits []int, n int) int {
	for _, b := range bits {
		if b < 0 || b/8 >= n {
			return b
		}
	}
	return -1
}

// Unpack extracts the raw bit pattern of sig from payload.
func Unpack(payload []byte, sig *dbc.Signal) (uint64, error) {
	bits := sig.Bits()
	if b := covers(bits, len(payload)); b >= 0 {
		return 0, errors.Wrapf(ErrDecode, "signal %s: bit %d outside %d byte payload", sig.Name, b, len(payload))
	}
	var raw uint64
	for i, b := range bits {
		bit := uint64(payload[b/8]>>(b%8)) & 1
		if sig.ByteOrder == dbc.Intel {
			raw |= bit << i
		} else {
			raw = raw<<1 | bit
		}
	}
	return raw, nil
}

func mask(length int) uint64 {
	if length >= 64 {
		return math.MaxUint64
	}
	return 1<<length - 1
}

// RawValue interprets raw as the integer stored by sig, sign-extending
// signed signals. Unsigned 64-bit values above math.MaxInt64 wrap.
func RawValue(sig *dbc.Signal, raw uint64) int64 {
	raw &= mask(sig.Length)
	if sig.Signed && sig.Length < 64 && raw&(1<<(sig.Length-1)) != 0 {
		return int64(raw | ^mask(sig.Length))
	}
	return int64(raw)
}

// Physical converts a raw bit pattern of sig to its physical value.
func Physical(sig *dbc.Signal, raw uint64) float64 {
	var v float64
	if sig.Signed {
		v = float64(RawValue(sig, raw))
	} else {
		v = float64(raw & mask(sig.Length))
	}
	return v*sig.Scale + sig.Offset
}

// DecodeSignal returns the physical value of sig in payload.
func DecodeSignal(payload []byte, sig *dbc.Signal) (float64, error) {
	raw, err := Unpack(payload, sig)
	if err != nil {
		return 0, err
	}
	return Physical(sig, raw), nil
}

// EncodeSignal writes value into buf at the footprint of sig, leaving every
// other bit of buf untouched. The raw value is rounded and clamped to the
// range the signal can hold; clamped reports that the clamp changed it.
// Values further than one scale step outside the physical range fail with
// ErrEncodeRange and leave buf unchanged.
func EncodeSignal(buf []byte, sig *dbc.Signal, value float64) (clamped bool, err error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return false, errors.Wrapf(ErrEncodeRange, "signal %s: value %v", sig.Name, value)
	}
	bits := sig.Bits()
	if b := covers(bits, len(buf)); b >= 0 {
		return false, errors.Wrapf(ErrEncodeRange, "signal %s: bit %d outside %d byte buffer", sig.Name, b, len(buf))
	}

	lsb := math.Abs(sig.Scale)
	tolerance := lsb * (1 + 1e-9)
	lo, hi := sig.PhysicalRange()
	if value < lo-tolerance || value > hi+tolerance {
		return false, errors.Wrapf(ErrEncodeRange, "signal %s: %v outside [%v, %v]", sig.Name, value, lo, hi)
	}

	raw := math.Round((value - sig.Offset) / sig.Scale)
	rawMin, rawMax := sig.RawRange()
	switch {
	case raw < rawMin:
		raw, clamped = rawMin, true
	case raw > rawMax:
		raw, clamped = rawMax, true
	}
	if got := raw*sig.Scale + sig.Offset; math.Abs(got-value) > tolerance {
		return false, errors.Wrapf(ErrEncodeRange, "signal %s: %v not representable, nearest %v", sig.Name, value, got)
	}

	pack(buf, bits, sig.ByteOrder, toBits(raw, sig))
	return clamped, nil
}

// toBits converts an in-range raw float to the signal's bit pattern.
func toBits(raw float64, sig *dbc.Signal) uint64 {
	if sig.Signed {
		var v int64
		switch {
		case raw >= math.Ldexp(1, 63):
			v = math.MaxInt64
		case raw <= -math.Ldexp(1, 63):
			v = math.MinInt64
		default:
			v = int64(raw)
		}
		return uint64(v) & mask(sig.Length)
	}
	if raw >= math.Ldexp(1, 64) {
		return math.MaxUint64
	}
	return uint64(raw) & mask(sig.Length)
}

func pack(buf []byte, bits []int, order dbc.ByteOrder, raw uint64) {
	n := len(bits)
	for i, b := range bits {
		var bit uint64
		if order == dbc.Intel {
			bit = raw >> i & 1
		} else {
			bit = raw >> (n - 1 - i) & 1
		}
		if bit == 1 {
			buf[b/8] |= 1 << (b % 8)
		} else {
			buf[b/8] &^= 1 << (b % 8)
		}
	}
}
