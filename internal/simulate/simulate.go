// Package simulate replays a guest's TSC across boot and a sequence of live
// migrations, one sample per simulated second.
package simulate

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"sync"

	"tscsim/internal/freq"
	"tscsim/internal/tscmath"
)

// Anchor is the host/guest TSC pair that must coincide when the guest starts
// running on a host.
type Anchor struct {
	InitialHostTSC  uint64
	InitialGuestTSC uint64
}

// Sample is the guest and host TSC at one simulated second.
type Sample struct {
	Time     uint64
	Segment  int
	GuestTSC uint64
	HostTSC  uint64
}

// Migration records the hand-off from one host to the next.
type Migration struct {
	Time          uint64
	Segment       int // destination segment
	SourceHostTSC uint64
	DestHostTSC   uint64
	GuestTSC      uint64
}

// Observer is notified as the simulation progresses.
type Observer interface {
	ObserveSample(f tscmath.Format, s Sample)
	ObserveMigration(f tscmath.Format, m Migration)
	ObserveError(f tscmath.Format, err error)
}

// Config describes one simulation run.
type Config struct {
	Duration       uint64 // seconds
	GuestFrequency uint64
	Unit           freq.Unit // unit of GuestFrequency and every HostFrequency
	Format         tscmath.Format
	Segments       []HostSegment
	Arith          tscmath.Arithmetic // nil means tscmath.Native
	Observer       Observer           // optional
}

// Result holds everything computed before the run finished or failed.
type Result struct {
	Format     tscmath.Format
	Samples    []Sample
	Migrations []Migration
	Anchors    []Anchor // one per segment
}

// StepError identifies the simulated second at which the engine failed.
type StepError struct {
	Time    uint64
	Segment int
	HostTSC uint64
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("could not calculate guest TSC at t=%d (host %d, host TSC %d): %v", e.Time, e.Segment, e.HostTSC, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Run simulates cfg.Duration seconds. Each segment is evaluated at every whole
// second from its start to its end inclusive, so a migration instant appears
// once on the source host and once on the destination host with the same
// guest TSC. On failure Run returns the partial result together with a
// *StepError.
func Run(cfg Config) (*Result, error) {
	if err := cfg.Format.Validate(); err != nil {
		return nil, err
	}
	if cfg.GuestFrequency == 0 {
		return nil, fmt.Errorf("guest frequency must be greater than zero")
	}
	if err := ValidateSegments(cfg.Segments, cfg.Duration); err != nil {
		return nil, err
	}
	unit := cfg.Unit
	if unit == 0 {
		unit = freq.Hz
	}
	calc := tscmath.Calculator{Arith: cfg.Arith}
	result := &Result{Format: cfg.Format}
	fail := func(err *StepError) (*Result, error) {
		slog.Debug("simulation failed", slog.String("format", cfg.Format.String()), slog.String("error", err.Error()))
		if cfg.Observer != nil {
			cfg.Observer.ObserveError(cfg.Format, err)
		}
		return result, err
	}

	anchor := Anchor{InitialHostTSC: cfg.Segments[0].HostTSC}
	var guestTSC, hostTSC uint64
	for i, seg := range cfg.Segments {
		end := cfg.Duration
		if i+1 < len(cfg.Segments) {
			end = cfg.Segments[i+1].Start
		}
		ticks, err := unit.TicksPerSecond(seg.HostFrequency)
		if err != nil {
			return fail(&StepError{Time: seg.Start, Segment: i, HostTSC: seg.HostTSC, Err: err})
		}
		if i > 0 {
			anchor = Anchor{InitialHostTSC: seg.HostTSC, InitialGuestTSC: guestTSC}
			migration := Migration{Time: seg.Start, Segment: i, SourceHostTSC: hostTSC, DestHostTSC: seg.HostTSC, GuestTSC: guestTSC}
			result.Migrations = append(result.Migrations, migration)
			if cfg.Observer != nil {
				cfg.Observer.ObserveMigration(cfg.Format, migration)
			}
			slog.Debug("migrating guest", slog.Int("host", i), slog.Uint64("time", seg.Start), slog.Uint64("guest_tsc", guestTSC))
		}
		result.Anchors = append(result.Anchors, anchor)
		hostTSC = seg.HostTSC
		for t := seg.Start; ; t++ {
			guestTSC, err = calc.GuestTSC(anchor.InitialHostTSC, anchor.InitialGuestTSC, seg.HostFrequency, cfg.GuestFrequency, hostTSC, cfg.Format)
			if err != nil {
				return fail(&StepError{Time: t, Segment: i, HostTSC: hostTSC, Err: err})
			}
			sample := Sample{Time: t, Segment: i, GuestTSC: guestTSC, HostTSC: hostTSC}
			result.Samples = append(result.Samples, sample)
			if cfg.Observer != nil {
				cfg.Observer.ObserveSample(cfg.Format, sample)
			}
			if t == end {
				break
			}
			next, err := tscmath.Increment(hostTSC, ticks)
			if err != nil {
				return fail(&StepError{Time: t + 1, Segment: i, HostTSC: hostTSC, Err: err})
			}
			hostTSC = next
		}
	}
	return result, nil
}

// FormatResult is the outcome of simulating with one candidate format.
type FormatResult struct {
	Format tscmath.Format
	Result *Result
	Err    error
}

// RunFormats runs the same scenario once per format, concurrently. Results
// are returned in the order of formats. cfg.Observer, if set, is shared by
// all runs and must be safe for concurrent use.
func RunFormats(cfg Config, formats []tscmath.Format) []FormatResult {
	results := make([]FormatResult, len(formats))
	var wg sync.WaitGroup
	for i, f := range formats {
		wg.Add(1)
		go func(i int, f tscmath.Format) {
			defer wg.Done()
			c := cfg
			c.Format = f
			res, err := Run(c)
			results[i] = FormatResult{Format: f, Result: res, Err: err}
		}(i, f)
	}
	wg.Wait()
	return results
}
