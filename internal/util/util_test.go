package util

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestIsValidHex(t *testing.T) {
	tests := []struct {
		hexStr   string
		expected bool
	}{
		{"0x1a2b3c", true},  // Valid hex with "0x" prefix
		{"0X1A2B3C", true},  // Valid hex with "0X" prefix
		{"1a2b3c", true},    // Valid hex without prefix
		{"0x", false},       // Invalid hex, only prefix
		{"", false},         // Empty string
		{"0xGHIJKL", false}, // Invalid hex with non-hex characters
		{" 12345 ", false},  // Invalid hex with spaces
	}

	for _, test := range tests {
		result := IsValidHex(test.hexStr)
		if result != test.expected {
			t.Errorf("expected %v, got %v for hex string %s", test.expected, result, test.hexStr)
		}
	}
}

func TestParseUint64(t *testing.T) {
	tests := []struct {
		input    string
		expected uint64
		err      bool
	}{
		{"1000000000", 1_000_000_000, false},
		{" 42 ", 42, false},
		{"1_000_000", 1_000_000, false},
		{"010", 10, false}, // leading zero is not octal
		{"0x3b9aca00", 1_000_000_000, false},
		{"0X3B9ACA00", 1_000_000_000, false},
		{"0xffffffffffffffff", math.MaxUint64, false},
		{"18446744073709551616", 0, true},
		{"0x", 0, true},
		{"0xZZ", 0, true},
		{"-1", 0, true},
		{"", 0, true},
	}
	for _, test := range tests {
		result, err := ParseUint64(test.input)
		if test.err {
			if err == nil {
				t.Errorf("expected error for %q, got %d", test.input, result)
			}
			continue
		}
		if err != nil {
			t.Errorf("unexpected error for %q: %v", test.input, err)
			continue
		}
		if result != test.expected {
			t.Errorf("expected %d, got %d for %q", test.expected, result, test.input)
		}
	}
}

func TestFormatUint64(t *testing.T) {
	if got := FormatUint64(255, true); got != "0xff" {
		t.Errorf("expected 0xff, got %s", got)
	}
	if got := FormatUint64(255, false); got != "255" {
		t.Errorf("expected 255, got %s", got)
	}
}

func TestFileAndDirectoryExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "scenario.yaml")
	if err := os.WriteFile(file, []byte("duration: 1\n"), 0600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	exists, err := FileExists(file)
	if err != nil || !exists {
		t.Errorf("expected file to exist, got exists=%v err=%v", exists, err)
	}
	exists, err = FileExists(filepath.Join(dir, "missing.yaml"))
	if err != nil || exists {
		t.Errorf("expected missing file, got exists=%v err=%v", exists, err)
	}
	if _, err = FileExists(dir); err == nil {
		t.Errorf("expected error for directory passed to FileExists")
	}

	exists, err = DirectoryExists(dir)
	if err != nil || !exists {
		t.Errorf("expected directory to exist, got exists=%v err=%v", exists, err)
	}
	if _, err = DirectoryExists(file); err == nil {
		t.Errorf("expected error for file passed to DirectoryExists")
	}
}
