// Package freq parses clock frequencies and converts between frequency units.
package freq

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"

	"github.com/casbin/govaluate"
)

// Unit is the number of Hz in one unit of frequency.
type Unit uint64

const (
	Hz  Unit = 1
	KHz Unit = 1_000
	MHz Unit = 1_000_000
	GHz Unit = 1_000_000_000
)

var unitNames = map[Unit]string{
	Hz:  "Hz",
	KHz: "kHz",
	MHz: "MHz",
	GHz: "GHz",
}

// UnitOptions lists the names accepted by ParseUnit.
var UnitOptions = []string{"hz", "khz", "mhz", "ghz"}

func (u Unit) String() string {
	if name, ok := unitNames[u]; ok {
		return name
	}
	return fmt.Sprintf("%dHz", uint64(u))
}

// ParseUnit returns the Unit named by s, ignoring case.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hz":
		return Hz, nil
	case "khz":
		return KHz, nil
	case "mhz":
		return MHz, nil
	case "ghz":
		return GHz, nil
	}
	return 0, fmt.Errorf("unknown frequency unit %q, expected one of: %s", s, strings.Join(UnitOptions, ", "))
}

// TicksPerSecond converts a frequency expressed in u to Hz, i.e. the number
// of counter ticks in one second.
func (u Unit) TicksPerSecond(value uint64) (uint64, error) {
	hi, lo := bits.Mul64(value, uint64(u))
	if hi != 0 {
		return 0, fmt.Errorf("%d %s is more than %d ticks per second", value, u, uint64(math.MaxUint64))
	}
	return lo, nil
}

// largest integer a float64 holds exactly
const maxExactFloat = 1 << 53

// Parse reads a positive frequency expressed in unit. Plain integers may be
// decimal, hex (0x), octal (0o) or binary (0b) and may use '_' separators.
// Anything else is evaluated as an arithmetic expression in which Hz, kHz,
// MHz and GHz are variables, e.g. "2.5*GHz" or "3000 * MHz".
func Parse(expr string, unit Unit) (uint64, error) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return 0, fmt.Errorf("empty frequency")
	}
	if v, err := strconv.ParseUint(s, 0, 64); err == nil {
		if v == 0 {
			return 0, fmt.Errorf("frequency must be greater than zero")
		}
		return v, nil
	}
	expression, err := govaluate.NewEvaluableExpression(s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse frequency %q: %w", expr, err)
	}
	parameters := make(map[string]any, len(unitNames)*2)
	for u, name := range unitNames {
		v := float64(u) / float64(unit)
		parameters[name] = v
		parameters[strings.ToUpper(name)] = v
		parameters[strings.ToLower(name)] = v
	}
	result, err := expression.Evaluate(parameters)
	if err != nil {
		return 0, fmt.Errorf("failed to evaluate frequency %q: %w", expr, err)
	}
	value, ok := result.(float64)
	if !ok {
		return 0, fmt.Errorf("frequency %q does not evaluate to a number", expr)
	}
	if value <= 0 || math.IsNaN(value) {
		return 0, fmt.Errorf("frequency %q must be greater than zero", expr)
	}
	if value != math.Trunc(value) {
		return 0, fmt.Errorf("frequency %q is not a whole number of %s", expr, unit)
	}
	if value > maxExactFloat {
		return 0, fmt.Errorf("frequency %q is too large for an expression, use an integer literal", expr)
	}
	return uint64(value), nil
}
