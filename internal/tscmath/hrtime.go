package tscmath

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"math/bits"
)

// NsPerSec is the number of nanoseconds in one second.
const NsPerSec = 1_000_000_000

// Increment returns the TSC value one second after tsc on a counter running
// at ticksPerSecond.
func Increment(tsc, ticksPerSecond uint64) (uint64, error) {
	next, carry := bits.Add64(tsc, ticksPerSecond, 0)
	if carry != 0 {
		return 0, newError("increment", ErrCounterOverflow, "tsc=%d, ticks_per_second=%d", tsc, ticksPerSecond)
	}
	return next, nil
}

// HRTime converts a TSC value to nanoseconds. Only whole seconds are kept:
// the sub-second remainder of tsc/freqHz is dropped.
func HRTime(tsc, freqHz uint64) (uint64, error) {
	if freqHz == 0 {
		return 0, newError("hrtime", ErrZeroFrequency, "tsc=%d", tsc)
	}
	hi, lo := bits.Mul64(tsc/freqHz, NsPerSec)
	if hi != 0 {
		return 0, newError("hrtime", ErrCounterOverflow, "tsc=%d, freq_hz=%d", tsc, freqHz)
	}
	return lo, nil
}

// TSCFromHRTime converts nanoseconds to a TSC value, keeping whole seconds
// only.
func TSCFromHRTime(hrtime, freqHz uint64) (uint64, error) {
	if freqHz == 0 {
		return 0, newError("tsc", ErrZeroFrequency, "hrtime=%d", hrtime)
	}
	hi, lo := bits.Mul64(hrtime/NsPerSec, freqHz)
	if hi != 0 {
		return 0, newError("tsc", ErrCounterOverflow, "hrtime=%d, freq_hz=%d", hrtime, freqHz)
	}
	return lo, nil
}
