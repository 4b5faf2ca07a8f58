package simulate

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"tscsim/internal/simulate"
	"tscsim/internal/tscmath"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	Cmd.Flags().VisitAll(func(f *pflag.Flag) {
		// format and migrate accumulate values, they are reset below
		if f.Name != "format" && f.Name != "migrate" {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
	flagMigrate = nil
	flagFormat.Reset()
	var buf bytes.Buffer
	Cmd.SetOut(&buf)
	Cmd.SetErr(io.Discard)
	Cmd.SetArgs(args)
	err := Cmd.Execute()
	return buf.String(), err
}

func executeJson(t *testing.T, args ...string) (map[string][]map[string]string, error) {
	t.Helper()
	out, err := execute(t, append(args, "--output", "json")...)
	if out == "" {
		return nil, err
	}
	var decoded map[string][]map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	return decoded, err
}

func column(records []map[string]string, name string) []string {
	values := make([]string, len(records))
	for i, r := range records {
		values[i] = r[name]
	}
	return values
}

func TestSimulateDefaults(t *testing.T) {
	decoded, err := executeJson(t)
	require.NoError(t, err)
	samples := decoded["Guest TSC (amd)"]
	require.Len(t, samples, 21)
	assert.Equal(t, map[string]string{"Time (s)": "0", "Host": "0", "Guest TSC": "0", "Host TSC": "1000000000"}, samples[0])
	assert.Equal(t, map[string]string{"Time (s)": "20", "Host": "0", "Guest TSC": "20000000000", "Host TSC": "21000000000"}, samples[20])
	assert.Equal(t, "20 s", decoded["Scenario"][0]["Duration"])
	assert.Len(t, decoded["Hosts"], 1)
	assert.NotContains(t, decoded, "Migrations (amd)")
}

func TestSimulateMigrations(t *testing.T) {
	decoded, err := executeJson(t, "-d", "12", "--migrate", "10 0x12a05f200 3*GHz", "--migrate", "5 0 2*GHz")
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "5", "10"}, column(decoded["Hosts"], "Start (s)"))

	samples := decoded["Guest TSC (amd)"]
	require.Len(t, samples, 15)
	assert.Equal(t, []string{"0", "0", "0", "0", "0", "0", "1", "1", "1", "1", "1", "1", "2", "2", "2"}, column(samples, "Host"))
	guest := column(samples, "Guest TSC")
	assert.Equal(t, guest[5], guest[6], "guest TSC continuous at the first migration")
	assert.Equal(t, guest[11], guest[12], "guest TSC continuous at the second migration")
	assert.Equal(t, "10000000000", guest[12])
	assert.Equal(t, "11000000000", guest[13])
	// 1/3 is truncated in 8.32, the guest falls behind by a tick
	assert.Equal(t, "11999999999", guest[14])

	migrations := decoded["Migrations (amd)"]
	require.Len(t, migrations, 2)
	assert.Equal(t, "5000000000", migrations[1]["Destination Host TSC"])
	assert.Equal(t, "10000000000", migrations[1]["Guest TSC"])
}

func TestSimulateMultipleFormats(t *testing.T) {
	decoded, err := executeJson(t, "-d", "6", "--migrate", "3 0 1000", "--format", "amd,intel", "--format", "24.40")
	require.Error(t, err)
	assert.ErrorIs(t, err, tscmath.ErrRatioOverflow)
	require.NotNil(t, decoded)
	summary := decoded["Summary"]
	assert.Equal(t, []string{"amd", "intel", "24.40"}, column(summary, "Format"))
	assert.Equal(t, []string{"ratio_overflow", "ratio_overflow", "ok"}, column(summary, "Status"))
	assert.Len(t, decoded["Simulation Error (amd)"], 1)
	assert.Len(t, decoded["Guest TSC (24.40)"], 8)
}

func TestSimulateHexAndImpl(t *testing.T) {
	decoded, err := executeJson(t, "-d", "1", "-i", "0", "--hex", "--impl", "all")
	require.NoError(t, err)
	assert.Equal(t, []string{"0x0", "0x3b9aca00"}, column(decoded["Guest TSC (amd)"], "Guest TSC"))
}

func TestSimulateUnit(t *testing.T) {
	decoded, err := executeJson(t, "-d", "1", "-i", "0", "--unit", "khz", "-f", "2000000", "-g", "1000000")
	require.NoError(t, err)
	samples := decoded["Guest TSC (amd)"]
	assert.Equal(t, []string{"0", "2000000000"}, column(samples, "Host TSC"))
	assert.Equal(t, []string{"0", "1000000000"}, column(samples, "Guest TSC"))
	assert.Equal(t, "1000000 kHz", decoded["Scenario"][0]["Guest Frequency"])
}

const scenarioYaml = `
duration: 4
guest_frequency: 1*GHz
formats: [intel]
hosts:
  - start: 0
    tsc: 0
    frequency: 1*GHz
  - start: 2
    tsc: 0x100000000
    frequency: 2*GHz
`

func writeScenario(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenarioYaml), 0600))
	return path
}

func TestSimulateScenario(t *testing.T) {
	path := writeScenario(t)
	decoded, err := executeJson(t, "--scenario", path)
	require.NoError(t, err)
	samples := decoded["Guest TSC (intel)"]
	require.Len(t, samples, 6)
	assert.Equal(t, "4000000000", samples[5]["Guest TSC"])

	decoded, err = executeJson(t, "--scenario", path, "--format", "amd")
	require.NoError(t, err)
	assert.Contains(t, decoded, "Guest TSC (amd)")
	assert.NotContains(t, decoded, "Guest TSC (intel)")
}

func TestSimulateOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tsc.xlsx")
	out, err := execute(t, "-d", "2", "--output", "xlsx", "--output-file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Simulation written to")
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	value, err := f.GetCellValue("Report", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Scenario", value)
}

func TestSimulateFlagValidation(t *testing.T) {
	path := writeScenario(t)
	invalid := [][]string{
		{"--scenario", path, "-d", "5"},
		{"--scenario", path, "--migrate", "1 1 1"},
		{"--scenario", filepath.Join(t.TempDir(), "missing.yaml")},
		{"--output", "xlsx"},
		{"--output", "html"},
		{"--impl", "asm"},
		{"--unit", "thz"},
		{"--format", "0.0"},
	}
	for _, args := range invalid {
		_, err := execute(t, args...)
		assert.Error(t, err, args)
	}
}

func TestSimulateInvalidScenario(t *testing.T) {
	_, err := execute(t, "--migrate", "5 1 1", "--migrate", "5 2 2")
	assert.ErrorIs(t, err, simulate.ErrDuplicateStart)
	_, err = execute(t, "-d", "3", "--migrate", "5 1 1")
	assert.ErrorIs(t, err, simulate.ErrSegmentAfterEnd)
	_, err = execute(t, "--migrate", "5 1")
	assert.Error(t, err)
	_, err = execute(t, "-g", "fast")
	assert.Error(t, err)
}

func TestSimulatePrometheusServer(t *testing.T) {
	waited := false
	saved := waitForShutdown
	waitForShutdown = func(ctx context.Context) { waited = true }
	defer func() { waitForShutdown = saved }()
	_, err := execute(t, "-d", "2", "--prometheus-server", "127.0.0.1:0")
	require.NoError(t, err)
	assert.True(t, waited)
}
