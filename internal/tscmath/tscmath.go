// Package tscmath models hardware TSC scaling: the fixed-point frequency
// multiplier, scaling a counter by it, and the offset that keeps a guest's
// TSC continuous across boot and live migration. Every overflow that a
// fixed-point scaling register would hit is reported as an error rather than
// wrapped or saturated.
package tscmath

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// The package-level functions below use the Native arithmetic.

var native = Calculator{Arith: Native{}}

// FrequencyMultiplier returns guestFreq/hostFreq as a fixed-point value in
// format f, truncated toward zero. Both frequencies must be non-zero and in
// the same unit.
func FrequencyMultiplier(guestFreq, hostFreq uint64, f Format) (uint64, error) {
	return native.Multiplier(guestFreq, hostFreq, f)
}

// Scale returns (counter * multiplier) >> fracBits.
func Scale(counter, multiplier uint64, fracBits uint8) (uint64, error) {
	return native.Scale(counter, multiplier, fracBits)
}

// TSCOffset returns the offset for a guest that reads initialGuestTSC when
// the host reads initialHostTSC.
func TSCOffset(initialHostTSC, initialGuestTSC, guestFreq, hostFreq uint64, f Format) (int64, error) {
	return native.TSCOffset(initialHostTSC, initialGuestTSC, guestFreq, hostFreq, f)
}

// GuestTSC returns the guest TSC when the host TSC reads currentHostTSC.
func GuestTSC(initialHostTSC, initialGuestTSC, hostFreq, guestFreq, currentHostTSC uint64, f Format) (uint64, error) {
	return native.GuestTSC(initialHostTSC, initialGuestTSC, hostFreq, guestFreq, currentHostTSC, f)
}
