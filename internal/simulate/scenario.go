package simulate

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"os"

	"tscsim/internal/freq"
	"tscsim/internal/tscmath"
	"tscsim/internal/util"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Scenario is the on-disk description of a simulation. Numbers are kept as
// strings so that TSC values may be written in hex and frequencies as
// expressions, e.g.:
//
//	duration: 20
//	guest_frequency: 2.5*GHz
//	unit: hz
//	formats: [amd, intel]
//	hosts:
//	  - start: 0
//	    tsc: 0x3b9aca00
//	    frequency: 1*GHz
//	  - start: 10
//	    tsc: 5000000000
//	    frequency: 3*GHz
type Scenario struct {
	Duration       uint64         `yaml:"duration"`
	GuestFrequency string         `yaml:"guest_frequency"`
	Unit           string         `yaml:"unit"`
	Formats        []string       `yaml:"formats"`
	Hosts          []ScenarioHost `yaml:"hosts"`
}

// ScenarioHost is one host entry in a scenario file.
type ScenarioHost struct {
	Start     uint64 `yaml:"start"`
	TSC       string `yaml:"tsc"`
	Frequency string `yaml:"frequency"`
}

// LoadScenario reads and parses a YAML scenario file.
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return Scenario{}, errors.Wrapf(err, "failed to read scenario file %s", path)
	}
	scenario, err := ParseScenario(data)
	if err != nil {
		return Scenario{}, errors.Wrapf(err, "invalid scenario file %s", path)
	}
	return scenario, nil
}

// ParseScenario parses YAML scenario content.
func ParseScenario(data []byte) (Scenario, error) {
	var scenario Scenario
	if err := yaml.UnmarshalStrict(data, &scenario); err != nil {
		return Scenario{}, errors.Wrap(err, "failed to parse scenario")
	}
	return scenario, nil
}

// Config converts the scenario into a simulation Config and the list of
// formats to run it with. An empty format list means AMD only.
func (s Scenario) Config() (Config, []tscmath.Format, error) {
	unit := freq.Hz
	if s.Unit != "" {
		var err error
		if unit, err = freq.ParseUnit(s.Unit); err != nil {
			return Config{}, nil, err
		}
	}
	if s.GuestFrequency == "" {
		return Config{}, nil, errors.New("guest_frequency is required")
	}
	guestFreq, err := freq.Parse(s.GuestFrequency, unit)
	if err != nil {
		return Config{}, nil, errors.Wrap(err, "guest_frequency")
	}
	formats := []tscmath.Format{tscmath.FormatAMD}
	if len(s.Formats) > 0 {
		formats = formats[:0]
		for _, name := range s.Formats {
			f, err := tscmath.ParseFormat(name)
			if err != nil {
				return Config{}, nil, errors.Wrapf(err, "format %q", name)
			}
			formats = append(formats, f)
		}
	}
	segments := make([]HostSegment, 0, len(s.Hosts))
	for i, h := range s.Hosts {
		hostTSC, err := util.ParseUint64(h.TSC)
		if err != nil {
			return Config{}, nil, errors.Wrapf(err, "host %d tsc", i)
		}
		hostFreq, err := freq.Parse(h.Frequency, unit)
		if err != nil {
			return Config{}, nil, errors.Wrapf(err, "host %d frequency", i)
		}
		segments = append(segments, HostSegment{Start: h.Start, HostTSC: hostTSC, HostFrequency: hostFreq})
	}
	if err := ValidateSegments(segments, s.Duration); err != nil {
		return Config{}, nil, fmt.Errorf("hosts: %w", err)
	}
	return Config{
		Duration:       s.Duration,
		GuestFrequency: guestFreq,
		Unit:           unit,
		Format:         formats[0],
		Segments:       segments,
	}, formats, nil
}
