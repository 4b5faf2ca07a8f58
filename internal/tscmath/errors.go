package tscmath

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"errors"
	"fmt"
)

// Error classes raised by the engine. Every failure returned by this package
// matches exactly one of these with errors.Is.
var (
	ErrInvalidFormat     = errors.New("invalid fixed-point format")
	ErrRatioOverflow     = errors.New("frequency ratio too large")
	ErrScaleOverflow     = errors.New("cannot scale TSC")
	ErrOffsetOverflow    = errors.New("TSC offset does not fit in 64 bits")
	ErrAdditionOverflow  = errors.New("offset addition overflows")
	ErrCounterOverflow   = errors.New("counter value overflows 64 bits")
	ErrZeroFrequency     = errors.New("frequency must be greater than zero")
	ErrMismatch          = errors.New("arithmetic implementations disagree")
)

// ArithError describes a failed operation together with the operands that
// caused it.
type ArithError struct {
	Op     string // operation that failed, e.g. "multiplier"
	Detail string // operands, formatted for humans
	Err    error  // one of the Err* classes above
}

func (e *ArithError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Detail)
}

func (e *ArithError) Unwrap() error {
	return e.Err
}

func newError(op string, class error, format string, args ...any) error {
	return &ArithError{Op: op, Err: class, Detail: fmt.Sprintf(format, args...)}
}

var errorClasses = []error{
	ErrInvalidFormat,
	ErrRatioOverflow,
	ErrScaleOverflow,
	ErrOffsetOverflow,
	ErrAdditionOverflow,
	ErrCounterOverflow,
	ErrZeroFrequency,
	ErrMismatch,
}

// ErrorClass returns the sentinel that err belongs to, or nil if err did not
// come from this package.
func ErrorClass(err error) error {
	if err == nil {
		return nil
	}
	for _, class := range errorClasses {
		if errors.Is(err, class) {
			return class
		}
	}
	return nil
}

// ErrorKind is a short, label-friendly name for the class of err.
func ErrorKind(err error) string {
	switch ErrorClass(err) {
	case ErrInvalidFormat:
		return "invalid_format"
	case ErrRatioOverflow:
		return "ratio_overflow"
	case ErrScaleOverflow:
		return "scale_overflow"
	case ErrOffsetOverflow:
		return "offset_overflow"
	case ErrAdditionOverflow:
		return "addition_overflow"
	case ErrCounterOverflow:
		return "counter_overflow"
	case ErrZeroFrequency:
		return "zero_frequency"
	case ErrMismatch:
		return "mismatch"
	}
	return "unknown"
}
