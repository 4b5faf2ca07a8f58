package report

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"strings"
)

func createTextReport(allTableValues []TableValues) (out []byte, err error) {
	var sb strings.Builder
	for _, tableValues := range allTableValues {
		sb.WriteString(tableValues.Name + "\n")
		sb.WriteString(strings.Repeat("=", len(tableValues.Name)) + "\n")
		if len(tableValues.Fields) == 0 || len(tableValues.Fields[0].Values) == 0 {
			msg := noDataFound
			if tableValues.NoDataFound != "" {
				msg = tableValues.NoDataFound
			}
			sb.WriteString(msg + "\n\n")
			continue
		}
		sb.WriteString(renderTextTable(tableValues))
		sb.WriteString("\n")
	}
	out = []byte(sb.String())
	return
}

func renderTextTable(tableValues TableValues) string {
	var sb strings.Builder
	if !tableValues.HasRows {
		// get the longest field name to format the table nicely
		maxFieldNameLen := 0
		for _, field := range tableValues.Fields {
			maxFieldNameLen = max(maxFieldNameLen, len(field.Name))
		}
		for _, field := range tableValues.Fields {
			var value string
			if len(field.Values) > 0 {
				value = field.Values[0]
			}
			sb.WriteString(fmt.Sprintf("%s%-*s %s\n", field.Name, maxFieldNameLen-len(field.Name)+1, ":", value))
		}
		return sb.String()
	}
	// numbers line up on the right, the column is as wide as its longest entry
	const columnSpacing = 3
	widths := make([]int, len(tableValues.Fields))
	for i, field := range tableValues.Fields {
		widths[i] = len(field.Name)
		for _, val := range field.Values {
			widths[i] = max(widths[i], len(val))
		}
	}
	writeRow := func(cell func(i int) string) {
		var line strings.Builder
		for i := range tableValues.Fields {
			if i > 0 {
				line.WriteString(strings.Repeat(" ", columnSpacing))
			}
			line.WriteString(fmt.Sprintf("%*s", widths[i], cell(i)))
		}
		sb.WriteString(strings.TrimRight(line.String(), " ") + "\n")
	}
	writeRow(func(i int) string { return tableValues.Fields[i].Name })
	writeRow(func(i int) string { return strings.Repeat("-", len(tableValues.Fields[i].Name)) })
	for row := range len(tableValues.Fields[0].Values) {
		writeRow(func(i int) string { return tableValues.Fields[i].Values[row] })
	}
	return sb.String()
}
