// Package report renders tables of simulation and calculation results as txt, json, csv or xlsx.
package report

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"strings"
)

const (
	FormatTxt  = "txt"
	FormatJson = "json"
	FormatCsv  = "csv"
	FormatXlsx = "xlsx"
)

const noDataFound = "No data found."

var FormatOptions = []string{FormatTxt, FormatJson, FormatCsv, FormatXlsx}

// Create generates a report in the specified format from the provided tables.
// Every table is validated first: field names must be set and all fields of a
// table must hold the same number of values.
// If the format is not supported, the function panics with an error message.
func Create(format string, allTableValues []TableValues) (out []byte, err error) {
	for _, tableValues := range allTableValues {
		if err = validateTableValues(tableValues); err != nil {
			return
		}
	}
	switch format {
	case FormatTxt:
		return createTextReport(allTableValues)
	case FormatJson:
		return createJsonReport(allTableValues)
	case FormatCsv:
		return createCsvReport(allTableValues)
	case FormatXlsx:
		return createXlsxReport(allTableValues)
	}
	panic(fmt.Sprintf("expected one of %s, got %s", strings.Join(FormatOptions, ", "), format))
}
