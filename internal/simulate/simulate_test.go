package simulate

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"math"
	"sync"
	"testing"

	"tscsim/internal/freq"
	"tscsim/internal/tscmath"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu         sync.Mutex
	samples    map[tscmath.Format][]Sample
	migrations map[tscmath.Format][]Migration
	errs       map[tscmath.Format][]error
}

func newRecorder() *recorder {
	return &recorder{
		samples:    make(map[tscmath.Format][]Sample),
		migrations: make(map[tscmath.Format][]Migration),
		errs:       make(map[tscmath.Format][]error),
	}
}

func (r *recorder) ObserveSample(f tscmath.Format, s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[f] = append(r.samples[f], s)
}

func (r *recorder) ObserveMigration(f tscmath.Format, m Migration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.migrations[f] = append(r.migrations[f], m)
}

func (r *recorder) ObserveError(f tscmath.Format, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[f] = append(r.errs[f], err)
}

func bootOnly(duration uint64) Config {
	return Config{
		Duration:       duration,
		GuestFrequency: 1_000_000_000,
		Format:         tscmath.FormatAMD,
		Segments:       []HostSegment{{Start: 0, HostTSC: 1_000_000_000, HostFrequency: 1_000_000_000}},
	}
}

func TestRunBootOnly(t *testing.T) {
	result, err := Run(bootOnly(3))
	require.NoError(t, err)
	assert.Equal(t, tscmath.FormatAMD, result.Format)
	assert.Equal(t, []Sample{
		{Time: 0, Segment: 0, GuestTSC: 0, HostTSC: 1_000_000_000},
		{Time: 1, Segment: 0, GuestTSC: 1_000_000_000, HostTSC: 2_000_000_000},
		{Time: 2, Segment: 0, GuestTSC: 2_000_000_000, HostTSC: 3_000_000_000},
		{Time: 3, Segment: 0, GuestTSC: 3_000_000_000, HostTSC: 4_000_000_000},
	}, result.Samples)
	assert.Empty(t, result.Migrations)
	assert.Equal(t, []Anchor{{InitialHostTSC: 1_000_000_000}}, result.Anchors)
}

func TestRunMigration(t *testing.T) {
	cfg := bootOnly(4)
	cfg.Segments = append(cfg.Segments, HostSegment{Start: 2, HostTSC: 5_000_000_000, HostFrequency: 2_000_000_000})
	result, err := Run(cfg)
	require.NoError(t, err)
	assert.Equal(t, []Sample{
		{Time: 0, Segment: 0, GuestTSC: 0, HostTSC: 1_000_000_000},
		{Time: 1, Segment: 0, GuestTSC: 1_000_000_000, HostTSC: 2_000_000_000},
		{Time: 2, Segment: 0, GuestTSC: 2_000_000_000, HostTSC: 3_000_000_000},
		{Time: 2, Segment: 1, GuestTSC: 2_000_000_000, HostTSC: 5_000_000_000},
		{Time: 3, Segment: 1, GuestTSC: 3_000_000_000, HostTSC: 7_000_000_000},
		{Time: 4, Segment: 1, GuestTSC: 4_000_000_000, HostTSC: 9_000_000_000},
	}, result.Samples)
	assert.Equal(t, []Migration{
		{Time: 2, Segment: 1, SourceHostTSC: 3_000_000_000, DestHostTSC: 5_000_000_000, GuestTSC: 2_000_000_000},
	}, result.Migrations)
	assert.Equal(t, []Anchor{
		{InitialHostTSC: 1_000_000_000, InitialGuestTSC: 0},
		{InitialHostTSC: 5_000_000_000, InitialGuestTSC: 2_000_000_000},
	}, result.Anchors)
}

func TestRunMigrationIsTransparent(t *testing.T) {
	cfg := Config{
		Duration:       30,
		GuestFrequency: 2_500_000_000,
		Segments: []HostSegment{
			{Start: 0, HostTSC: 123_456_789, HostFrequency: 3_000_000_000},
			{Start: 7, HostTSC: 0x1_0000_0000, HostFrequency: 1_700_000_000},
			{Start: 19, HostTSC: 42, HostFrequency: 2_999_999_999},
			{Start: 30, HostTSC: 1 << 40, HostFrequency: 4_100_000_000},
		},
	}
	for _, f := range []tscmath.Format{tscmath.FormatAMD, tscmath.FormatIntel, {IntBits: 32, FracBits: 32}} {
		cfg.Format = f
		result, err := Run(cfg)
		require.NoError(t, err, f.String())
		require.Len(t, result.Migrations, 3)
		for i, s := range result.Samples[1:] {
			prev := result.Samples[i]
			if s.Segment != prev.Segment {
				assert.Equal(t, prev.Time, s.Time, "format %s", f)
				assert.Equal(t, prev.GuestTSC, s.GuestTSC, "format %s: guest TSC jumped at migration", f)
				continue
			}
			assert.Equal(t, prev.Time+1, s.Time)
			assert.Greater(t, s.GuestTSC, prev.GuestTSC, "format %s: guest TSC must keep counting", f)
		}
		last := result.Samples[len(result.Samples)-1]
		assert.Equal(t, uint64(30), last.Time)
		assert.Equal(t, 3, last.Segment)
	}
}

func TestRunKHz(t *testing.T) {
	cfg := Config{
		Duration:       1,
		GuestFrequency: 1_000_000,
		Unit:           freq.KHz,
		Format:         tscmath.FormatIntel,
		Segments:       []HostSegment{{Start: 0, HostTSC: 0, HostFrequency: 1_000_000}},
	}
	result, err := Run(cfg)
	require.NoError(t, err)
	require.Len(t, result.Samples, 2)
	assert.Equal(t, uint64(1_000_000_000), result.Samples[1].HostTSC)
	assert.Equal(t, uint64(1_000_000_000), result.Samples[1].GuestTSC)
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	obs := newRecorder()
	cfg := Config{
		Duration:       3,
		GuestFrequency: 1_000_000_000,
		Format:         tscmath.FormatAMD,
		Segments:       []HostSegment{{Start: 0, HostTSC: math.MaxUint64 - 5_000_000_000, HostFrequency: 4_000_000_000}},
		Observer:       obs,
	}
	result, err := Run(cfg)
	require.Error(t, err)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, uint64(2), stepErr.Time)
	assert.Equal(t, 0, stepErr.Segment)
	assert.Equal(t, uint64(math.MaxUint64-1_000_000_000), stepErr.HostTSC)
	assert.ErrorIs(t, err, tscmath.ErrCounterOverflow)

	require.NotNil(t, result)
	require.Len(t, result.Samples, 2)
	assert.Equal(t, uint64(0), result.Samples[0].GuestTSC)
	assert.Equal(t, uint64(1_000_000_000), result.Samples[1].GuestTSC)
	assert.Len(t, obs.samples[tscmath.FormatAMD], 2)
	assert.Len(t, obs.errs[tscmath.FormatAMD], 1)
}

func TestRunRatioOverflow(t *testing.T) {
	cfg := bootOnly(5)
	cfg.Segments = append(cfg.Segments, HostSegment{Start: 3, HostTSC: 0, HostFrequency: 1_000_000})
	result, err := Run(cfg)
	assert.ErrorIs(t, err, tscmath.ErrRatioOverflow)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, uint64(3), stepErr.Time)
	assert.Equal(t, 1, stepErr.Segment)
	assert.Len(t, result.Samples, 4)
	assert.Len(t, result.Migrations, 1)
}

func TestRunInvalidConfig(t *testing.T) {
	cfg := bootOnly(5)
	cfg.Format = tscmath.Format{IntBits: 40, FracBits: 40}
	_, err := Run(cfg)
	assert.ErrorIs(t, err, tscmath.ErrInvalidFormat)

	cfg = bootOnly(5)
	cfg.GuestFrequency = 0
	_, err = Run(cfg)
	assert.Error(t, err)

	cfg = bootOnly(5)
	cfg.Segments = append(cfg.Segments, cfg.Segments[0])
	_, err = Run(cfg)
	assert.ErrorIs(t, err, ErrDuplicateStart)
}

func TestRunWithCheckedArithmetic(t *testing.T) {
	cfg := bootOnly(10)
	cfg.Segments = append(cfg.Segments, HostSegment{Start: 4, HostTSC: 77_777, HostFrequency: 2_100_000_000})
	cfg.Arith = tscmath.Checked{Primary: tscmath.Native{}, Secondary: tscmath.Reference{}}
	checked, err := Run(cfg)
	require.NoError(t, err)
	cfg.Arith = nil
	native, err := Run(cfg)
	require.NoError(t, err)
	assert.Equal(t, native, checked)
}

func TestRunFormats(t *testing.T) {
	obs := newRecorder()
	cfg := bootOnly(10)
	cfg.Segments = append(cfg.Segments, HostSegment{Start: 5, HostTSC: 1, HostFrequency: 1_000})
	cfg.Observer = obs
	formats := []tscmath.Format{tscmath.FormatAMD, tscmath.FormatIntel, {IntBits: 24, FracBits: 40}}
	results := RunFormats(cfg, formats)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, formats[i], r.Format)
	}
	// 1 GHz guest on a 1 kHz host needs a ratio of 1e6
	assert.ErrorIs(t, results[0].Err, tscmath.ErrRatioOverflow)
	assert.ErrorIs(t, results[1].Err, tscmath.ErrRatioOverflow)
	assert.NoError(t, results[2].Err)
	assert.Len(t, results[2].Result.Samples, 12)
	assert.Len(t, obs.migrations[formats[2]], 1)
	assert.Len(t, obs.errs[tscmath.FormatAMD], 1)
}
