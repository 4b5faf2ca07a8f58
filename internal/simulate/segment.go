package simulate

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"errors"
	"fmt"
	"strings"

	"tscsim/internal/freq"
	"tscsim/internal/util"

	mapset "github.com/deckarep/golang-set/v2"
)

// HostSegment is the guest's stay on one host, from Start until the next
// segment's Start or the end of the simulation.
type HostSegment struct {
	Start         uint64 // seconds since guest boot
	HostTSC       uint64 // host TSC at Start
	HostFrequency uint64 // in the simulation's frequency unit
}

// Segment validation errors.
var (
	ErrNoSegments        = errors.New("at least one host is required")
	ErrFirstSegmentStart = errors.New("the boot host must start at time 0")
	ErrDuplicateStart    = errors.New("two hosts share a start time")
	ErrUnsortedSegments  = errors.New("hosts must be ordered by start time")
	ErrSegmentAfterEnd   = errors.New("host starts after the end of the simulation")
	ErrZeroHostFrequency = errors.New("host frequency must be greater than zero")
)

// ValidateSegments checks that segments describe a single timeline starting
// at boot and ending no later than duration.
func ValidateSegments(segments []HostSegment, duration uint64) error {
	if len(segments) == 0 {
		return ErrNoSegments
	}
	if segments[0].Start != 0 {
		return fmt.Errorf("%w: first host starts at %d", ErrFirstSegmentStart, segments[0].Start)
	}
	seen := mapset.NewThreadUnsafeSet[uint64]()
	for i, seg := range segments {
		if !seen.Add(seg.Start) {
			return fmt.Errorf("%w: host %d starts at %d", ErrDuplicateStart, i, seg.Start)
		}
		if i > 0 && seg.Start < segments[i-1].Start {
			return fmt.Errorf("%w: host %d starts at %d, before host %d at %d", ErrUnsortedSegments, i, seg.Start, i-1, segments[i-1].Start)
		}
		if seg.Start > duration {
			return fmt.Errorf("%w: host %d starts at %d, duration is %d", ErrSegmentAfterEnd, i, seg.Start, duration)
		}
		if seg.HostFrequency == 0 {
			return fmt.Errorf("%w: host %d", ErrZeroHostFrequency, i)
		}
	}
	return nil
}

// ParseMigration parses a "<time> <host_tsc> <host_freq>" triple. The TSC
// may be decimal or hex; the frequency may be any expression accepted by
// freq.Parse as long as it has no spaces.
func ParseMigration(s string, unit freq.Unit) (HostSegment, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return HostSegment{}, fmt.Errorf("expected \"<time> <host_tsc> <host_freq>\", got %q", s)
	}
	start, err := util.ParseUint64(fields[0])
	if err != nil {
		return HostSegment{}, fmt.Errorf("invalid migration time %q: %w", fields[0], err)
	}
	hostTSC, err := util.ParseUint64(fields[1])
	if err != nil {
		return HostSegment{}, fmt.Errorf("invalid host TSC %q: %w", fields[1], err)
	}
	hostFreq, err := freq.Parse(fields[2], unit)
	if err != nil {
		return HostSegment{}, fmt.Errorf("invalid host frequency %q: %w", fields[2], err)
	}
	return HostSegment{Start: start, HostTSC: hostTSC, HostFrequency: hostFreq}, nil
}
