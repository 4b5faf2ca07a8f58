package report

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"tscsim/internal/simulate"
	"tscsim/internal/tscmath"
	"tscsim/internal/util"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// NumberStyle selects how counter values are written into tables.
type NumberStyle int

const (
	StyleDecimal NumberStyle = iota // 1000000000
	StyleGrouped                    // 1,000,000,000
	StyleHex                        // 0x3b9aca00
)

var groupingPrinter = message.NewPrinter(language.English)

// Uint formats an unsigned value.
func (s NumberStyle) Uint(v uint64) string {
	switch s {
	case StyleGrouped:
		return groupingPrinter.Sprintf("%d", v)
	}
	return util.FormatUint64(v, s == StyleHex)
}

// Int formats a signed value. Hex output keeps the sign in front of the prefix.
func (s NumberStyle) Int(v int64) string {
	if s == StyleHex && v < 0 {
		return "-" + s.Uint(uint64(-v))
	}
	switch s {
	case StyleGrouped:
		return groupingPrinter.Sprintf("%d", v)
	case StyleHex:
		return fmt.Sprintf("%#x", v)
	}
	return strconv.FormatInt(v, 10)
}

const (
	ScenarioTableName = "Scenario"
	HostsTableName    = "Hosts"
	SummaryTableName  = "Summary"
)

// ScenarioTables describes the inputs of a simulation: the guest and the
// ordered list of hosts it runs on.
func ScenarioTables(cfg simulate.Config, formats []tscmath.Format, style NumberStyle) []TableValues {
	formatNames := make([]string, len(formats))
	for i, f := range formats {
		formatNames[i] = f.Name()
	}
	scenario := TableValues{
		Name: ScenarioTableName,
		Fields: []Field{
			{Name: "Duration", Values: []string{fmt.Sprintf("%d s", cfg.Duration)}},
			{Name: "Guest Frequency", Values: []string{fmt.Sprintf("%s %s", style.Uint(cfg.GuestFrequency), unitName(cfg))}},
			{Name: "Formats", Values: []string{strings.Join(formatNames, ", ")}},
		},
	}
	hosts := TableValues{
		Name:    HostsTableName,
		HasRows: true,
		Fields: []Field{
			{Name: "Host"},
			{Name: "Start (s)"},
			{Name: "Host TSC"},
			{Name: "Frequency (" + unitName(cfg) + ")"},
		},
	}
	for i, seg := range cfg.Segments {
		hosts.Fields[0].Values = append(hosts.Fields[0].Values, strconv.Itoa(i))
		hosts.Fields[1].Values = append(hosts.Fields[1].Values, strconv.FormatUint(seg.Start, 10))
		hosts.Fields[2].Values = append(hosts.Fields[2].Values, style.Uint(seg.HostTSC))
		hosts.Fields[3].Values = append(hosts.Fields[3].Values, style.Uint(seg.HostFrequency))
	}
	return []TableValues{scenario, hosts}
}

func unitName(cfg simulate.Config) string {
	if cfg.Unit == 0 {
		return "Hz"
	}
	return cfg.Unit.String()
}

// SimulationTables renders one sample table per format, followed by its
// migrations and, if the run failed, the failing step. A summary table
// comparing the formats comes first when there is more than one.
func SimulationTables(results []simulate.FormatResult, style NumberStyle) []TableValues {
	var tables []TableValues
	if len(results) > 1 {
		tables = append(tables, summaryTable(results, style))
	}
	for _, r := range results {
		if r.Result != nil {
			tables = append(tables, samplesTable(r.Format, r.Result.Samples, style))
			if len(r.Result.Migrations) > 0 {
				tables = append(tables, migrationsTable(r.Format, r.Result.Migrations, style))
			}
		}
		if r.Err != nil {
			tables = append(tables, errorTable(r.Format, r.Err, style))
		}
	}
	return tables
}

func samplesTable(f tscmath.Format, samples []simulate.Sample, style NumberStyle) TableValues {
	tv := TableValues{
		Name:        fmt.Sprintf("Guest TSC (%s)", f.Name()),
		HasRows:     true,
		NoDataFound: "No samples before the first failure.",
		Fields: []Field{
			{Name: "Time (s)"},
			{Name: "Host"},
			{Name: "Guest TSC"},
			{Name: "Host TSC"},
		},
	}
	for _, s := range samples {
		tv.Fields[0].Values = append(tv.Fields[0].Values, strconv.FormatUint(s.Time, 10))
		tv.Fields[1].Values = append(tv.Fields[1].Values, strconv.Itoa(s.Segment))
		tv.Fields[2].Values = append(tv.Fields[2].Values, style.Uint(s.GuestTSC))
		tv.Fields[3].Values = append(tv.Fields[3].Values, style.Uint(s.HostTSC))
	}
	return tv
}

func migrationsTable(f tscmath.Format, migrations []simulate.Migration, style NumberStyle) TableValues {
	tv := TableValues{
		Name:    fmt.Sprintf("Migrations (%s)", f.Name()),
		HasRows: true,
		Fields: []Field{
			{Name: "Time (s)"},
			{Name: "From"},
			{Name: "To"},
			{Name: "Source Host TSC"},
			{Name: "Destination Host TSC"},
			{Name: "Guest TSC"},
		},
	}
	for _, m := range migrations {
		tv.Fields[0].Values = append(tv.Fields[0].Values, strconv.FormatUint(m.Time, 10))
		tv.Fields[1].Values = append(tv.Fields[1].Values, strconv.Itoa(m.Segment-1))
		tv.Fields[2].Values = append(tv.Fields[2].Values, strconv.Itoa(m.Segment))
		tv.Fields[3].Values = append(tv.Fields[3].Values, style.Uint(m.SourceHostTSC))
		tv.Fields[4].Values = append(tv.Fields[4].Values, style.Uint(m.DestHostTSC))
		tv.Fields[5].Values = append(tv.Fields[5].Values, style.Uint(m.GuestTSC))
	}
	return tv
}

func errorTable(f tscmath.Format, err error, style NumberStyle) TableValues {
	tv := TableValues{Name: fmt.Sprintf("Simulation Error (%s)", f.Name())}
	var stepErr *simulate.StepError
	if errors.As(err, &stepErr) {
		tv.Fields = append(tv.Fields,
			Field{Name: "Time (s)", Values: []string{strconv.FormatUint(stepErr.Time, 10)}},
			Field{Name: "Host", Values: []string{strconv.Itoa(stepErr.Segment)}},
			Field{Name: "Host TSC", Values: []string{style.Uint(stepErr.HostTSC)}},
		)
	}
	tv.Fields = append(tv.Fields,
		Field{Name: "Kind", Values: []string{tscmath.ErrorKind(err)}},
		Field{Name: "Error", Values: []string{err.Error()}},
	)
	return tv
}

func summaryTable(results []simulate.FormatResult, style NumberStyle) TableValues {
	tv := TableValues{
		Name:    SummaryTableName,
		HasRows: true,
		Fields: []Field{
			{Name: "Format"},
			{Name: "Status"},
			{Name: "Samples"},
			{Name: "Migrations"},
			{Name: "Last Guest TSC"},
		},
	}
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = tscmath.ErrorKind(r.Err)
		}
		var samples, migrations int
		last := "-"
		if r.Result != nil {
			samples = len(r.Result.Samples)
			migrations = len(r.Result.Migrations)
			if samples > 0 {
				last = style.Uint(r.Result.Samples[samples-1].GuestTSC)
			}
		}
		tv.Fields[0].Values = append(tv.Fields[0].Values, r.Format.Name())
		tv.Fields[1].Values = append(tv.Fields[1].Values, status)
		tv.Fields[2].Values = append(tv.Fields[2].Values, strconv.Itoa(samples))
		tv.Fields[3].Values = append(tv.Fields[3].Values, strconv.Itoa(migrations))
		tv.Fields[4].Values = append(tv.Fields[4].Values, last)
	}
	return tv
}
