package tscmath

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"math/bits"
)

// Calculator composes the TSC offset and guest TSC from an Arithmetic. The
// zero value uses Native.
type Calculator struct {
	Arith Arithmetic
}

func (c Calculator) arith() Arithmetic {
	if c.Arith == nil {
		return Native{}
	}
	return c.Arith
}

// Multiplier returns the guest/host frequency ratio in format f.
func (c Calculator) Multiplier(guestFreq, hostFreq uint64, f Format) (uint64, error) {
	return c.arith().Multiplier(guestFreq, hostFreq, f)
}

// Scale applies a fixed-point multiplier to a counter value.
func (c Calculator) Scale(counter, multiplier uint64, fracBits uint8) (uint64, error) {
	return c.arith().Scale(counter, multiplier, fracBits)
}

// Offset returns the signed value that, added to the scaled host TSC, yields
// initialGuestTSC at the instant the host TSC reads initialHostTSC.
// multiplier must come from Multiplier for the same format.
//
//	offset = initial_guest_tsc - scale(initial_host_tsc, multiplier)
func (c Calculator) Offset(initialHostTSC, initialGuestTSC, multiplier uint64, f Format) (int64, error) {
	scaled, err := c.arith().Scale(initialHostTSC, multiplier, f.FracBits)
	if err != nil {
		return 0, err
	}
	var diff uint64
	negative := scaled >= initialGuestTSC
	if negative {
		diff = scaled - initialGuestTSC
	} else {
		diff = initialGuestTSC - scaled
	}
	if diff&(1<<63) != 0 {
		return 0, newError("offset", ErrOffsetOverflow, "host_tsc_scaled=%d, initial_guest_tsc=%d, diff=%d", scaled, initialGuestTSC, diff)
	}
	if negative {
		return -int64(diff), nil
	}
	return int64(diff), nil
}

// TSCOffset computes the multiplier for the two frequencies and then the
// offset that anchors initialGuestTSC to initialHostTSC.
func (c Calculator) TSCOffset(initialHostTSC, initialGuestTSC, guestFreq, hostFreq uint64, f Format) (int64, error) {
	multiplier, err := c.arith().Multiplier(guestFreq, hostFreq, f)
	if err != nil {
		return 0, err
	}
	return c.Offset(initialHostTSC, initialGuestTSC, multiplier, f)
}

// GuestTSC returns the guest TSC at the moment the host TSC reads
// currentHostTSC, for a guest that read initialGuestTSC when the host read
// initialHostTSC.
func (c Calculator) GuestTSC(initialHostTSC, initialGuestTSC, hostFreq, guestFreq, currentHostTSC uint64, f Format) (uint64, error) {
	multiplier, err := c.arith().Multiplier(guestFreq, hostFreq, f)
	if err != nil {
		return 0, err
	}
	offset, err := c.Offset(initialHostTSC, initialGuestTSC, multiplier, f)
	if err != nil {
		return 0, err
	}
	scaled, err := c.arith().Scale(currentHostTSC, multiplier, f.FracBits)
	if err != nil {
		return 0, err
	}
	return AddOffset(scaled, offset)
}

// AddOffset returns scaled + offset, failing if the sum leaves the unsigned
// 64-bit range in either direction.
func AddOffset(scaled uint64, offset int64) (uint64, error) {
	if offset >= 0 {
		sum, carry := bits.Add64(scaled, uint64(offset), 0)
		if carry != 0 {
			return 0, newError("guest tsc", ErrAdditionOverflow, "host_tsc_scaled=%d, tsc_offset=%d", scaled, offset)
		}
		return sum, nil
	}
	magnitude := uint64(-offset) // also correct for math.MinInt64
	if scaled < magnitude {
		return 0, newError("guest tsc", ErrAdditionOverflow, "host_tsc_scaled=%d, tsc_offset=%d", scaled, offset)
	}
	return scaled - magnitude, nil
}
