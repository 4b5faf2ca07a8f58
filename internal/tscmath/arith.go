package tscmath

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"math/big"
	"math/bits"
	"slices"
	"strings"
)

// Arithmetic is the pair of primitives that hardware TSC scaling is built
// from. Implementations must agree bit for bit, including on which inputs
// fail and with which error class.
type Arithmetic interface {
	// Multiplier returns floor(guestFreq * 2^FracBits / hostFreq).
	Multiplier(guestFreq, hostFreq uint64, f Format) (uint64, error)
	// Scale returns (counter * multiplier) >> fracBits.
	Scale(counter, multiplier uint64, fracBits uint8) (uint64, error)
}

// implementation names
const (
	ImplNative    = "native"
	ImplReference = "reference"
	ImplAll       = "all"
)

var ImplOptions = []string{ImplNative, ImplReference, ImplAll}

// ImplByName returns the Arithmetic selected by name. "all" runs the native
// and reference implementations side by side.
func ImplByName(name string) (Arithmetic, error) {
	switch strings.ToLower(name) {
	case ImplNative:
		return Native{}, nil
	case ImplReference:
		return Reference{}, nil
	case ImplAll:
		return Checked{Primary: Native{}, Secondary: Reference{}}, nil
	}
	return nil, fmt.Errorf("unknown arithmetic implementation %q, expected one of: %s", name, strings.Join(ImplOptions, ", "))
}

// Native computes with 128-bit intermediates built from math/bits. This is
// the canonical engine.
type Native struct{}

func (Native) Multiplier(guestFreq, hostFreq uint64, f Format) (uint64, error) {
	if err := f.Validate(); err != nil {
		return 0, err
	}
	requirePositive(guestFreq, hostFreq)
	hi, lo := bits.Mul64(guestFreq, f.One())
	// two-step long division keeps the full 128-bit quotient
	qhi := hi / hostFreq
	qlo, _ := bits.Div64(hi%hostFreq, lo, hostFreq)
	if qhi != 0 || (f.Width() < 64 && qlo>>f.Width() != 0) {
		return 0, ratioOverflow(guestFreq, hostFreq, f)
	}
	return qlo, nil
}

func (Native) Scale(counter, multiplier uint64, fracBits uint8) (uint64, error) {
	if fracBits == 0 || fracBits >= 64 {
		return 0, newError("scale", ErrInvalidFormat, "frac_bits=%d, must be in [1, 63]", fracBits)
	}
	hi, lo := bits.Mul64(counter, multiplier)
	if hi>>fracBits != 0 {
		return 0, scaleOverflow(counter, multiplier, fracBits)
	}
	return lo>>fracBits | hi<<(64-fracBits), nil
}

// Reference recomputes the same primitives with arbitrary precision
// integers. It shares no code with Native so that the two can be checked
// against each other.
type Reference struct{}

func (Reference) Multiplier(guestFreq, hostFreq uint64, f Format) (uint64, error) {
	if err := f.Validate(); err != nil {
		return 0, err
	}
	requirePositive(guestFreq, hostFreq)
	q := new(big.Int).SetUint64(guestFreq)
	q.Lsh(q, uint(f.FracBits))
	q.Quo(q, new(big.Int).SetUint64(hostFreq))
	if q.BitLen() > int(f.Width()) {
		return 0, ratioOverflow(guestFreq, hostFreq, f)
	}
	return q.Uint64(), nil
}

func (Reference) Scale(counter, multiplier uint64, fracBits uint8) (uint64, error) {
	if fracBits == 0 || fracBits >= 64 {
		return 0, newError("scale", ErrInvalidFormat, "frac_bits=%d, must be in [1, 63]", fracBits)
	}
	p := new(big.Int).SetUint64(counter)
	p.Mul(p, new(big.Int).SetUint64(multiplier))
	p.Rsh(p, uint(fracBits))
	if p.BitLen() > 64 {
		return 0, scaleOverflow(counter, multiplier, fracBits)
	}
	return p.Uint64(), nil
}

// Checked evaluates Primary and Secondary and fails with ErrMismatch when
// they return different values or different error classes. On agreement the
// Primary result is returned.
type Checked struct {
	Primary   Arithmetic
	Secondary Arithmetic
}

func (c Checked) Multiplier(guestFreq, hostFreq uint64, f Format) (uint64, error) {
	a, errA := c.Primary.Multiplier(guestFreq, hostFreq, f)
	b, errB := c.Secondary.Multiplier(guestFreq, hostFreq, f)
	if err := compare("multiplier", a, b, errA, errB); err != nil {
		return 0, err
	}
	return a, errA
}

func (c Checked) Scale(counter, multiplier uint64, fracBits uint8) (uint64, error) {
	a, errA := c.Primary.Scale(counter, multiplier, fracBits)
	b, errB := c.Secondary.Scale(counter, multiplier, fracBits)
	if err := compare("scale", a, b, errA, errB); err != nil {
		return 0, err
	}
	return a, errA
}

func compare(op string, a, b uint64, errA, errB error) error {
	classA, classB := ErrorClass(errA), ErrorClass(errB)
	if classA != classB {
		return newError(op, ErrMismatch, "primary error=%v, secondary error=%v", errA, errB)
	}
	if errA == nil && a != b {
		return newError(op, ErrMismatch, "primary=%#x, secondary=%#x", a, b)
	}
	return nil
}

// requirePositive panics on zero frequencies. Callers own that precondition.
func requirePositive(freqs ...uint64) {
	if slices.Contains(freqs, 0) {
		panic(fmt.Sprintf("tscmath: zero frequency in %v", freqs))
	}
}

func ratioOverflow(guestFreq, hostFreq uint64, f Format) error {
	return newError("multiplier", ErrRatioOverflow, "guest_freq=%d, host_freq=%d, %s format", guestFreq, hostFreq, f)
}

func scaleOverflow(counter, multiplier uint64, fracBits uint8) error {
	return newError("scale", ErrScaleOverflow, "tsc=%d (%#x), multiplier=%d (%#x), frac_bits=%d", counter, counter, multiplier, multiplier, fracBits)
}
