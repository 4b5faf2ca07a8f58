package report

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// createCsvReport writes every table as a block of records: a row holding the
// table name, a header row of field names, then one row per value. Blocks are
// separated by an empty record.
func createCsvReport(allTableValues []TableValues) (out []byte, err error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for i, tableValues := range allTableValues {
		if i > 0 {
			if err = w.Write([]string{}); err != nil {
				return
			}
		}
		if err = w.Write([]string{tableValues.Name}); err != nil {
			return
		}
		header := make([]string, len(tableValues.Fields))
		for j, field := range tableValues.Fields {
			header[j] = field.Name
		}
		if err = w.Write(header); err != nil {
			return
		}
		if len(tableValues.Fields) == 0 {
			continue
		}
		for row := range len(tableValues.Fields[0].Values) {
			record := make([]string, len(tableValues.Fields))
			for j, field := range tableValues.Fields {
				record[j] = field.Values[row]
			}
			if err = w.Write(record); err != nil {
				return
			}
		}
	}
	w.Flush()
	if err = w.Error(); err != nil {
		err = fmt.Errorf("failed to write csv report: %v", err)
		return
	}
	out = buf.Bytes()
	return
}
