package tscmath

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"strconv"
	"strings"
)

// Format is the integer/fraction split of a 64-bit fixed-point value.
type Format struct {
	IntBits  uint8
	FracBits uint8
}

// Hardware TSC-scaling ratio formats.
var (
	FormatAMD   = Format{IntBits: 8, FracBits: 32}
	FormatIntel = Format{IntBits: 16, FracBits: 48}
)

// format names accepted by ParseFormat
const (
	FormatNameAMD   = "amd"
	FormatNameIntel = "intel"
)

// ResolveFormat builds a Format from a fractional width and an optional
// integer width. When intBits is nil the integer part takes the remaining
// 64 - fracBits bits.
func ResolveFormat(fracBits uint8, intBits *uint8) (Format, error) {
	if fracBits == 0 || fracBits >= 64 {
		return Format{}, newError("format", ErrInvalidFormat, "frac_bits=%d, must be in [1, 63]", fracBits)
	}
	f := Format{IntBits: 64 - fracBits, FracBits: fracBits}
	if intBits != nil {
		f.IntBits = *intBits
	}
	if err := f.Validate(); err != nil {
		return Format{}, err
	}
	return f, nil
}

// Validate reports whether f fits in a 64-bit register.
func (f Format) Validate() error {
	if f.FracBits == 0 || f.FracBits >= 64 {
		return newError("format", ErrInvalidFormat, "frac_bits=%d, must be in [1, 63]", f.FracBits)
	}
	if f.IntBits == 0 {
		return newError("format", ErrInvalidFormat, "int_bits must be at least 1")
	}
	if uint(f.IntBits)+uint(f.FracBits) > 64 {
		return newError("format", ErrInvalidFormat, "%d.%d does not fit in 64 bits", f.IntBits, f.FracBits)
	}
	return nil
}

// Width is the number of significant bits, IntBits + FracBits.
func (f Format) Width() uint {
	return uint(f.IntBits) + uint(f.FracBits)
}

// One is the fixed-point representation of 1.0.
func (f Format) One() uint64 {
	return uint64(1) << f.FracBits
}

func (f Format) String() string {
	return fmt.Sprintf("%d.%d", f.IntBits, f.FracBits)
}

// Name returns "amd" or "intel" for the hardware formats and N.M otherwise.
func (f Format) Name() string {
	switch f {
	case FormatAMD:
		return FormatNameAMD
	case FormatIntel:
		return FormatNameIntel
	}
	return f.String()
}

// ParseFormat accepts "amd", "intel", "N.M", or a bare fractional width "M".
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case FormatNameAMD:
		return FormatAMD, nil
	case FormatNameIntel:
		return FormatIntel, nil
	case "":
		return Format{}, newError("format", ErrInvalidFormat, "empty format")
	}
	intPart, fracPart, found := strings.Cut(s, ".")
	if !found {
		fracBits, err := parseBits(s)
		if err != nil {
			return Format{}, err
		}
		return ResolveFormat(fracBits, nil)
	}
	intBits, err := parseBits(intPart)
	if err != nil {
		return Format{}, err
	}
	fracBits, err := parseBits(fracPart)
	if err != nil {
		return Format{}, err
	}
	return ResolveFormat(fracBits, &intBits)
}

func parseBits(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, newError("format", ErrInvalidFormat, "%q is not a bit count", s)
	}
	return uint8(v), nil
}
