// Package canmotor drives swerve module motor controllers over a SocketCAN bus. Setpoints are
// latched and re-sent on a fixed period; telemetry frames are decoded into module readings.
package canmotor

import (
	"math"

	"github.com/pkg/errors"
)

const bitsPerByte = 8

// Signal describes a scaled integer packed into a CAN payload.
type Signal struct {
	Scale        float64
	Offset       float64
	Start        uint8 // least significant bit
	Length       uint8 // bits, at most 32
	LittleEndian bool
	Signed       bool
}

// byteMask returns the mask of the signal bits [lsb, msb] that fall in byte n of the payload.
func byteMask(n, lsb, msb uint) uint8 {
	byteLsb := n * bitsPerByte
	byteMsb := (n+1)*bitsPerByte - 1

	var lo, hi uint
	if lsb > byteLsb {
		lo = lsb - byteLsb
	}
	hi = bitsPerByte - 1
	if msb < byteMsb {
		hi = msb - byteLsb
	}
	all := uint8(math.MaxUint8)
	return (all << (hi + 1)) ^ (all << lo)
}

// Extract decodes the signal from data.
func (s Signal) Extract(data []byte) (float64, error) {
	if s.Length == 0 || s.Length > 32 {
		return 0, errors.Errorf("signal length %d out of range", s.Length)
	}
	lsb := uint(s.Start)
	msb := lsb + uint(s.Length) - 1
	first, last := lsb/bitsPerByte, msb/bitsPerByte
	if int(last) >= len(data) {
		return 0, errors.Errorf("signal ends in byte %d of a %d byte payload", last, len(data))
	}

	var raw uint32
	for i := first; i <= last; i++ {
		shift := i - first
		if !s.LittleEndian {
			shift = last - i
		}
		raw |= uint32(byteMask(i, lsb, msb)&data[i]) << (shift * bitsPerByte)
	}
	raw >>= lsb - first*bitsPerByte

	var value float64
	if s.Signed {
		if raw&(1<<(s.Length-1)) != 0 {
			raw |= math.MaxUint32 << s.Length
		}
		value = float64(int32(raw))
	} else {
		value = float64(raw)
	}
	return value*s.Scale + s.Offset, nil
}
