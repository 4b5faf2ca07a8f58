package report

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var testTables = []TableValues{
	{
		Name: "Scenario",
		Fields: []Field{
			{Name: "Duration", Values: []string{"2 s"}},
			{Name: "Guest Frequency", Values: []string{"1000 Hz"}},
		},
	},
	{
		Name:    "Guest TSC (amd)",
		HasRows: true,
		Fields: []Field{
			{Name: "Time (s)", Values: []string{"0", "1"}},
			{Name: "Guest TSC", Values: []string{"0", "1000"}},
		},
	},
	{
		Name:        "Migrations (amd)",
		HasRows:     true,
		NoDataFound: "No migrations.",
		Fields:      []Field{{Name: "Time (s)"}},
	},
}

func TestCreateText(t *testing.T) {
	out, err := Create(FormatTxt, testTables)
	require.NoError(t, err)
	expected := "Scenario\n" +
		"========\n" +
		"Duration:        2 s\n" +
		"Guest Frequency: 1000 Hz\n" +
		"\n" +
		"Guest TSC (amd)\n" +
		"===============\n" +
		"Time (s)   Guest TSC\n" +
		"--------   ---------\n" +
		"       0           0\n" +
		"       1        1000\n" +
		"\n" +
		"Migrations (amd)\n" +
		"================\n" +
		"No migrations.\n" +
		"\n"
	assert.Equal(t, expected, string(out))
}

func TestCreateJson(t *testing.T) {
	out, err := Create(FormatJson, testTables)
	require.NoError(t, err)
	var decoded map[string][]map[string]string
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, []map[string]string{{"Duration": "2 s", "Guest Frequency": "1000 Hz"}}, decoded["Scenario"])
	assert.Equal(t, []map[string]string{
		{"Time (s)": "0", "Guest TSC": "0"},
		{"Time (s)": "1", "Guest TSC": "1000"},
	}, decoded["Guest TSC (amd)"])
	assert.Empty(t, decoded["Migrations (amd)"])
}

func TestCreateCsv(t *testing.T) {
	out, err := Create(FormatCsv, testTables)
	require.NoError(t, err)
	r := csv.NewReader(bytes.NewReader(out))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	require.NoError(t, err)
	// empty separator records are skipped by the reader
	assert.Equal(t, [][]string{
		{"Scenario"},
		{"Duration", "Guest Frequency"},
		{"2 s", "1000 Hz"},
		{"Guest TSC (amd)"},
		{"Time (s)", "Guest TSC"},
		{"0", "0"},
		{"1", "1000"},
		{"Migrations (amd)"},
		{"Time (s)"},
	}, records)
}

func TestCreateXlsx(t *testing.T) {
	out, err := Create(FormatXlsx, testTables)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()
	value, err := f.GetCellValue(XlsxPrimarySheetName, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Scenario", value)
	value, err = f.GetCellValue(XlsxPrimarySheetName, "B2")
	require.NoError(t, err)
	assert.Equal(t, "2 s", value)
	// table name, two fields, blank row, then the rows table
	value, err = f.GetCellValue(XlsxPrimarySheetName, "A5")
	require.NoError(t, err)
	assert.Equal(t, "Guest TSC (amd)", value)
	value, err = f.GetCellValue(XlsxPrimarySheetName, "C8")
	require.NoError(t, err)
	assert.Equal(t, "1000", value)
}

func TestCreateRejectsRaggedTables(t *testing.T) {
	ragged := []TableValues{{
		Name:    "bad",
		HasRows: true,
		Fields: []Field{
			{Name: "a", Values: []string{"1", "2"}},
			{Name: "b", Values: []string{"1"}},
		},
	}}
	_, err := Create(FormatTxt, ragged)
	assert.Error(t, err)
	_, err = Create(FormatTxt, []TableValues{{Fields: []Field{{Name: "a"}}}})
	assert.Error(t, err)
}

func TestCreateUnknownFormatPanics(t *testing.T) {
	assert.Panics(t, func() { _, _ = Create("html", testTables) })
}

func TestGetValueForCell(t *testing.T) {
	assert.Equal(t, int64(42), getValueForCell("42"))
	assert.Equal(t, int64(-7), getValueForCell("-7"))
	assert.Equal(t, "18446744073709551615", getValueForCell("18446744073709551615"))
	assert.Equal(t, "9007199254740993", getValueForCell("9007199254740993"))
	assert.Equal(t, "0x10", getValueForCell("0x10"))
	assert.Equal(t, "1,000", getValueForCell("1,000"))
}

func TestFindFieldIndex(t *testing.T) {
	idx, err := FindFieldIndex(testTables[1], "Guest TSC")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	_, err = FindFieldIndex(testTables[1], "Host TSC")
	assert.Error(t, err)
}
