// Package common defines data structures and functions that are used by multiple
// application commands, e.g., calc and simulate.
package common

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"tscsim/internal/report"
	"tscsim/internal/tscmath"
	"tscsim/internal/util"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

var AppName = filepath.Base(os.Args[0])

// AppContext represents the application context that can be accessed from all commands.
type AppContext struct {
	Timestamp   string // Timestamp is the time the application started.
	LogFilePath string // LogFilePath is the path to the log file, empty when not logging to a file.
	Version     string // Version is the version of the application.
	Debug       bool   // Debug is true when debug logging is enabled.
}

type Flag struct {
	Name string
	Help string
}
type FlagGroup struct {
	GroupName string
	Flags     []Flag
}

// flags shared by the calc and simulate commands
const (
	FlagFormatName = "format"
	FlagImplName   = "impl"
	FlagHexName    = "hex"
	FlagUnitName   = "unit"
)

// UsageFunc returns a cobra usage function that prints the command's flags
// organized in the given groups.
func UsageFunc(getFlagGroups func() []FlagGroup) func(cmd *cobra.Command) error {
	return func(cmd *cobra.Command) error {
		cmd.Printf("Usage: %s [flags]\n\n", cmd.UseLine())
		if cmd.Example != "" {
			cmd.Printf("Examples:\n%s\n\n", cmd.Example)
		}
		cmd.Println("Flags:")
		for _, group := range getFlagGroups() {
			cmd.Printf("  %s:\n", group.GroupName)
			for _, flag := range group.Flags {
				flagDefault := ""
				if pf := cmd.Flags().Lookup(flag.Name); pf != nil && pf.DefValue != "" && pf.DefValue != "[]" {
					flagDefault = fmt.Sprintf(" (default: %s)", pf.DefValue)
				}
				cmd.Printf("    --%-20s %s%s\n", flag.Name, flag.Help, flagDefault)
			}
		}
		if cmd.HasParent() {
			cmd.Println("\nGlobal Flags:")
			cmd.Root().PersistentFlags().VisitAll(func(pf *pflag.Flag) {
				flagDefault := ""
				if pf.DefValue != "" {
					flagDefault = fmt.Sprintf(" (default: %s)", pf.DefValue)
				}
				cmd.Printf("  --%-20s %s%s\n", pf.Name, pf.Usage, flagDefault)
			})
		}
		return nil
	}
}

// FlagValidationError is used to report an error with a flag
func FlagValidationError(cmd *cobra.Command, msg string) error {
	err := errors.New(msg)
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	fmt.Fprintf(os.Stderr, "See '%s --help' for usage details.\n", cmd.CommandPath())
	cmd.SilenceUsage = true
	return err
}

// ValidateOption returns an error naming the accepted options when value is
// not one of them.
func ValidateOption(flagName, value string, options []string) error {
	if !mapset.NewThreadUnsafeSet(options...).Contains(value) {
		return fmt.Errorf("--%s must be one of: %s", flagName, strings.Join(options, ", "))
	}
	return nil
}

// FormatListValue is a repeatable pflag.Value collecting fixed-point formats.
// Each occurrence may hold a comma-separated list of amd, intel, N.M or M.
type FormatListValue struct {
	Formats  []tscmath.Format
	changed  bool
	defaults []tscmath.Format
}

// NewFormatListValue returns a FormatListValue holding defaults until the
// flag is first set.
func NewFormatListValue(defaults ...tscmath.Format) *FormatListValue {
	return &FormatListValue{Formats: defaults, defaults: defaults}
}

func (v *FormatListValue) String() string {
	names := make([]string, len(v.Formats))
	for i, f := range v.Formats {
		names[i] = f.Name()
	}
	return strings.Join(names, ",")
}

func (v *FormatListValue) Set(s string) error {
	var parsed []tscmath.Format
	for _, name := range strings.Split(s, ",") {
		f, err := tscmath.ParseFormat(name)
		if err != nil {
			return err
		}
		parsed = append(parsed, f)
	}
	if !v.changed {
		v.Formats = nil
		v.changed = true
	}
	for _, f := range parsed {
		if !containsFormat(v.Formats, f) {
			v.Formats = append(v.Formats, f)
		}
	}
	return nil
}

func (v *FormatListValue) Type() string {
	return "format"
}

// Reset restores the defaults, e.g. between command invocations in tests.
func (v *FormatListValue) Reset() {
	v.Formats = v.defaults
	v.changed = false
}

func containsFormat(formats []tscmath.Format, f tscmath.Format) bool {
	for _, existing := range formats {
		if existing == f {
			return true
		}
	}
	return false
}

// NumberStyle picks hex when requested, digit grouping when out is a
// terminal and plain decimal otherwise, so that piped output stays easy to
// parse.
func NumberStyle(hex bool, out *os.File) report.NumberStyle {
	if hex {
		return report.StyleHex
	}
	if out != nil && term.IsTerminal(int(out.Fd())) {
		return report.StyleGrouped
	}
	return report.StyleDecimal
}

// WriteOutput writes out to path, or to stdout when path is empty.
func WriteOutput(cmd *cobra.Command, out []byte, path string) error {
	if path == "" {
		_, err := cmd.OutOrStdout().Write(out)
		return err
	}
	if exists, _ := util.DirectoryExists(filepath.Dir(path)); !exists {
		err := fmt.Errorf("output directory %s does not exist", filepath.Dir(path))
		slog.Error(err.Error())
		return err
	}
	err := os.WriteFile(path, out, 0644) // #nosec G306
	if err != nil {
		err = fmt.Errorf("failed to write output file: %v", err)
		slog.Error(err.Error())
		return err
	}
	slog.Info("wrote output file", slog.String("path", path))
	return nil
}
