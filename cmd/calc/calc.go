// Package calc is a subcommand of the root command. It computes a single
// TSC scaling value: a frequency multiplier, a scaled counter, an offset, a
// guest TSC, or a nanosecond/TSC conversion.
package calc

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"

	"tscsim/internal/common"
	"tscsim/internal/freq"
	"tscsim/internal/report"
	"tscsim/internal/tscmath"
	"tscsim/internal/util"

	"github.com/spf13/cobra"
)

const cmdName = "calc"

var examples = []string{
	fmt.Sprintf("  Frequency multiplier, AMD format:         $ %s %s freq -g 2.5*GHz -f 3*GHz", common.AppName, cmdName),
	fmt.Sprintf("  Frequency multiplier, custom format:      $ %s %s freq -g 1000 -f 3000 --int-bits 1 --frac-bits 63", common.AppName, cmdName),
	fmt.Sprintf("  Offset at boot, checked against bignum:   $ %s %s offset -i 0x3b9aca00 -g 1500 -f 1000 --impl all", common.AppName, cmdName),
	fmt.Sprintf("  Guest TSC after a migration:              $ %s %s guest-tsc -i 1000 -t 5000 -c 3000 --format intel --hex", common.AppName, cmdName),
	fmt.Sprintf("  TSC to nanoseconds:                       $ %s %s hrtime -t 3000000000 -f 1*GHz", common.AppName, cmdName),
}

var Cmd = &cobra.Command{
	Use:           cmdName,
	Short:         "Calculate a single TSC scaling value",
	Example:       strings.Join(examples, "\n"),
	GroupID:       "primary",
	Args:          cobra.NoArgs,
	SilenceErrors: true,
}

var (
	flagHostFreq        string
	flagGuestFreq       string
	flagInitialHostTSC  string
	flagInitialGuestTSC string
	flagHostTSC         string
	flagTSC             string
	flagHRTime          string
	flagMultiplier      string
	flagFormat          string
	flagIntBits         uint8
	flagFracBits        uint8
	flagImpl            string
	flagHex             bool
	flagUnit            string
	flagOutput          string
)

const (
	flagHostFreqName        = "host-freq"
	flagGuestFreqName       = "guest-freq"
	flagInitialHostTSCName  = "initial-host-tsc"
	flagInitialGuestTSCName = "initial-guest-tsc"
	flagHostTSCName         = "host-tsc"
	flagTSCName             = "tsc"
	flagHRTimeName          = "hrtime"
	flagMultiplierName      = "multiplier"
	flagIntBitsName         = "int-bits"
	flagFracBitsName        = "frac-bits"
	flagOutputName          = "output"
)

const defaultFrequency = "1000000000"

var outputOptions = []string{report.FormatTxt, report.FormatJson}

// subcommand describes one calc subcommand and the flags it accepts.
type subcommand struct {
	name    string
	short   string
	flags   []common.Flag
	format  bool // accepts the fixed-point format flags
	run     func(cmd *cobra.Command) (report.TableValues, error)
	require []string
}

var subcommands = []subcommand{
	{
		name:  "freq",
		short: "Compute the frequency multiplier for a guest and a host",
		flags: []common.Flag{
			{Name: flagGuestFreqName, Help: "guest frequency, e.g. 2500000000 or 2.5*GHz"},
			{Name: flagHostFreqName, Help: "host frequency"},
		},
		format: true,
		run:    runFreq,
	},
	{
		name:  "scale",
		short: "Apply a fixed-point multiplier to a TSC value",
		flags: []common.Flag{
			{Name: flagTSCName, Help: "TSC value, decimal or 0x hex"},
			{Name: flagMultiplierName, Help: "fixed-point multiplier, decimal or 0x hex"},
		},
		format:  true,
		run:     runScale,
		require: []string{flagTSCName, flagMultiplierName},
	},
	{
		name:  "offset",
		short: "Compute the TSC offset that anchors a guest to a host",
		flags: []common.Flag{
			{Name: flagInitialHostTSCName, Help: "host TSC at boot or migration"},
			{Name: flagInitialGuestTSCName, Help: "guest TSC at the same instant"},
			{Name: flagGuestFreqName, Help: "guest frequency"},
			{Name: flagHostFreqName, Help: "host frequency"},
		},
		format:  true,
		run:     runOffset,
		require: []string{flagInitialHostTSCName},
	},
	{
		name:  "guest-tsc",
		short: "Compute a guest's TSC value at a given host TSC",
		flags: []common.Flag{
			{Name: flagInitialHostTSCName, Help: "host TSC at boot or migration"},
			{Name: flagInitialGuestTSCName, Help: "guest TSC at the same instant"},
			{Name: flagHostTSCName, Help: "current host TSC"},
			{Name: flagGuestFreqName, Help: "guest frequency"},
			{Name: flagHostFreqName, Help: "host frequency"},
		},
		format:  true,
		run:     runGuestTSC,
		require: []string{flagInitialHostTSCName, flagHostTSCName},
	},
	{
		name:  "hrtime",
		short: "Convert a TSC value to nanoseconds, whole seconds only",
		flags: []common.Flag{
			{Name: flagTSCName, Help: "TSC value"},
			{Name: flagHostFreqName, Help: "TSC frequency"},
		},
		run:     runHRTime,
		require: []string{flagTSCName},
	},
	{
		name:  "tsc",
		short: "Convert nanoseconds to a TSC value, whole seconds only",
		flags: []common.Flag{
			{Name: flagHRTimeName, Help: "time in nanoseconds"},
			{Name: flagHostFreqName, Help: "TSC frequency"},
		},
		run:     runTSC,
		require: []string{flagHRTimeName},
	},
}

func init() {
	for _, sc := range subcommands {
		Cmd.AddCommand(newSubcommand(sc))
	}
}

func newSubcommand(sc subcommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:           sc.name,
		Short:         sc.short,
		Args:          cobra.NoArgs,
		PreRunE:       validateFlags,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCmd(cmd, sc.run)
		},
	}
	for _, flag := range sc.flags {
		addFlag(cmd, flag.Name)
	}
	if sc.format {
		cmd.Flags().StringVar(&flagFormat, common.FlagFormatName, tscmath.FormatNameAMD, "")
		cmd.Flags().Uint8Var(&flagIntBits, flagIntBitsName, 0, "")
		cmd.Flags().Uint8Var(&flagFracBits, flagFracBitsName, 0, "")
		cmd.Flags().StringVar(&flagImpl, common.FlagImplName, tscmath.ImplNative, "")
	}
	cmd.Flags().StringVar(&flagUnit, common.FlagUnitName, "hz", "")
	cmd.Flags().BoolVar(&flagHex, common.FlagHexName, false, "")
	cmd.Flags().StringVar(&flagOutput, flagOutputName, report.FormatTxt, "")
	for _, name := range sc.require {
		_ = cmd.MarkFlagRequired(name)
	}
	cmd.SetUsageFunc(common.UsageFunc(func() []common.FlagGroup { return getFlagGroups(sc) }))
	return cmd
}

func addFlag(cmd *cobra.Command, name string) {
	switch name {
	case flagHostFreqName:
		cmd.Flags().StringVarP(&flagHostFreq, name, "f", defaultFrequency, "")
	case flagGuestFreqName:
		cmd.Flags().StringVarP(&flagGuestFreq, name, "g", defaultFrequency, "")
	case flagInitialHostTSCName:
		cmd.Flags().StringVarP(&flagInitialHostTSC, name, "i", "", "")
	case flagInitialGuestTSCName:
		cmd.Flags().StringVarP(&flagInitialGuestTSC, name, "t", "0", "")
	case flagHostTSCName:
		cmd.Flags().StringVarP(&flagHostTSC, name, "c", "", "")
	case flagTSCName:
		cmd.Flags().StringVarP(&flagTSC, name, "t", "", "")
	case flagHRTimeName:
		cmd.Flags().StringVarP(&flagHRTime, name, "t", "", "")
	case flagMultiplierName:
		cmd.Flags().StringVarP(&flagMultiplier, name, "m", "", "")
	default:
		panic("unknown calc flag: " + name)
	}
}

func getFlagGroups(sc subcommand) []common.FlagGroup {
	groups := []common.FlagGroup{{GroupName: "Input Options", Flags: sc.flags}}
	groups[0].Flags = append(groups[0].Flags, common.Flag{
		Name: common.FlagUnitName,
		Help: fmt.Sprintf("unit of plain frequency values, one of: %s", strings.Join(freq.UnitOptions, ", ")),
	})
	if sc.format {
		groups = append(groups, common.FlagGroup{
			GroupName: "Arithmetic Options",
			Flags: []common.Flag{
				{Name: common.FlagFormatName, Help: "fixed-point format: amd (8.32), intel (16.48) or N.M"},
				{Name: flagIntBitsName, Help: "integer bits, overrides --format (default: 64 - frac-bits)"},
				{Name: flagFracBitsName, Help: "fractional bits, overrides --format"},
				{Name: common.FlagImplName, Help: fmt.Sprintf("arithmetic implementation, one of: %s", strings.Join(tscmath.ImplOptions, ", "))},
			},
		})
	}
	groups = append(groups, common.FlagGroup{
		GroupName: "Output Options",
		Flags: []common.Flag{
			{Name: common.FlagHexName, Help: "print TSC values as hexadecimal"},
			{Name: flagOutputName, Help: fmt.Sprintf("output format, one of: %s", strings.Join(outputOptions, ", "))},
		},
	})
	return groups
}

func validateFlags(cmd *cobra.Command, args []string) error {
	if err := common.ValidateOption(flagOutputName, flagOutput, outputOptions); err != nil {
		return common.FlagValidationError(cmd, err.Error())
	}
	if _, err := freq.ParseUnit(flagUnit); err != nil {
		return common.FlagValidationError(cmd, err.Error())
	}
	if cmd.Flags().Lookup(common.FlagImplName) != nil {
		if err := common.ValidateOption(common.FlagImplName, flagImpl, tscmath.ImplOptions); err != nil {
			return common.FlagValidationError(cmd, err.Error())
		}
		if _, err := resolveFormat(cmd); err != nil {
			return common.FlagValidationError(cmd, err.Error())
		}
	}
	return nil
}

// resolveFormat applies --format, then lets --frac-bits and --int-bits
// override it. --int-bits without --frac-bits keeps the format's fraction.
func resolveFormat(cmd *cobra.Command) (tscmath.Format, error) {
	f, err := tscmath.ParseFormat(flagFormat)
	if err != nil {
		return tscmath.Format{}, err
	}
	fracChanged := cmd.Flags().Changed(flagFracBitsName)
	intChanged := cmd.Flags().Changed(flagIntBitsName)
	switch {
	case fracChanged && intChanged:
		return tscmath.ResolveFormat(flagFracBits, &flagIntBits)
	case fracChanged:
		return tscmath.ResolveFormat(flagFracBits, nil)
	case intChanged:
		return tscmath.ResolveFormat(f.FracBits, &flagIntBits)
	}
	return f, nil
}

func runCmd(cmd *cobra.Command, run func(cmd *cobra.Command) (report.TableValues, error)) error {
	cmd.SilenceUsage = true
	tableValues, err := run(cmd)
	if err != nil {
		slog.Error("calculation failed", slog.String("command", cmd.Name()), slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	out, err := report.Create(flagOutput, []report.TableValues{tableValues})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return common.WriteOutput(cmd, out, "")
}

func numberStyle() report.NumberStyle {
	return common.NumberStyle(flagHex, os.Stdout)
}

func calculator() tscmath.Calculator {
	arith, err := tscmath.ImplByName(flagImpl)
	if err != nil {
		// validated in validateFlags
		panic(err)
	}
	return tscmath.Calculator{Arith: arith}
}

func parseFrequency(name, value string) (uint64, error) {
	unit, err := freq.ParseUnit(flagUnit)
	if err != nil {
		return 0, err
	}
	v, err := freq.Parse(value, unit)
	if err != nil {
		return 0, fmt.Errorf("--%s: %w", name, err)
	}
	return v, nil
}

func parseCounter(name, value string) (uint64, error) {
	v, err := util.ParseUint64(value)
	if err != nil {
		return 0, fmt.Errorf("--%s: invalid value %q", name, value)
	}
	return v, nil
}

func frequencies() (guestFreq, hostFreq uint64, err error) {
	if guestFreq, err = parseFrequency(flagGuestFreqName, flagGuestFreq); err != nil {
		return
	}
	hostFreq, err = parseFrequency(flagHostFreqName, flagHostFreq)
	return
}

// ratio renders a fixed-point multiplier as a decimal fraction.
func ratio(multiplier uint64, f tscmath.Format) string {
	return fmt.Sprintf("%.12g", float64(multiplier)/math.Exp2(float64(f.FracBits)))
}

func runFreq(cmd *cobra.Command) (report.TableValues, error) {
	f, err := resolveFormat(cmd)
	if err != nil {
		return report.TableValues{}, err
	}
	guestFreq, hostFreq, err := frequencies()
	if err != nil {
		return report.TableValues{}, err
	}
	multiplier, err := calculator().Multiplier(guestFreq, hostFreq, f)
	if err != nil {
		return report.TableValues{}, err
	}
	style := numberStyle()
	return report.TableValues{
		Name: "Frequency Multiplier",
		Fields: []report.Field{
			{Name: "Format", Values: []string{f.String()}},
			{Name: "Guest Frequency", Values: []string{style.Uint(guestFreq)}},
			{Name: "Host Frequency", Values: []string{style.Uint(hostFreq)}},
			{Name: "Multiplier", Values: []string{style.Uint(multiplier)}},
			{Name: "Ratio", Values: []string{ratio(multiplier, f)}},
		},
	}, nil
}

func runScale(cmd *cobra.Command) (report.TableValues, error) {
	f, err := resolveFormat(cmd)
	if err != nil {
		return report.TableValues{}, err
	}
	counter, err := parseCounter(flagTSCName, flagTSC)
	if err != nil {
		return report.TableValues{}, err
	}
	multiplier, err := parseCounter(flagMultiplierName, flagMultiplier)
	if err != nil {
		return report.TableValues{}, err
	}
	scaled, err := calculator().Scale(counter, multiplier, f.FracBits)
	if err != nil {
		return report.TableValues{}, err
	}
	style := numberStyle()
	return report.TableValues{
		Name: "Scaled TSC",
		Fields: []report.Field{
			{Name: "Format", Values: []string{f.String()}},
			{Name: "TSC", Values: []string{style.Uint(counter)}},
			{Name: "Multiplier", Values: []string{style.Uint(multiplier)}},
			{Name: "Ratio", Values: []string{ratio(multiplier, f)}},
			{Name: "Scaled TSC", Values: []string{style.Uint(scaled)}},
		},
	}, nil
}

// anchor parses the host/guest TSC pair and frequencies shared by offset and guest-tsc
func anchor() (initialHost, initialGuest, guestFreq, hostFreq uint64, err error) {
	if initialHost, err = parseCounter(flagInitialHostTSCName, flagInitialHostTSC); err != nil {
		return
	}
	if initialGuest, err = parseCounter(flagInitialGuestTSCName, flagInitialGuestTSC); err != nil {
		return
	}
	guestFreq, hostFreq, err = frequencies()
	return
}

func runOffset(cmd *cobra.Command) (report.TableValues, error) {
	f, err := resolveFormat(cmd)
	if err != nil {
		return report.TableValues{}, err
	}
	initialHost, initialGuest, guestFreq, hostFreq, err := anchor()
	if err != nil {
		return report.TableValues{}, err
	}
	calc := calculator()
	multiplier, err := calc.Multiplier(guestFreq, hostFreq, f)
	if err != nil {
		return report.TableValues{}, err
	}
	offset, err := calc.Offset(initialHost, initialGuest, multiplier, f)
	if err != nil {
		return report.TableValues{}, err
	}
	style := numberStyle()
	return report.TableValues{
		Name: "TSC Offset",
		Fields: []report.Field{
			{Name: "Format", Values: []string{f.String()}},
			{Name: "Initial Host TSC", Values: []string{style.Uint(initialHost)}},
			{Name: "Initial Guest TSC", Values: []string{style.Uint(initialGuest)}},
			{Name: "Multiplier", Values: []string{style.Uint(multiplier)}},
			{Name: "Offset", Values: []string{style.Int(offset)}},
		},
	}, nil
}

func runGuestTSC(cmd *cobra.Command) (report.TableValues, error) {
	f, err := resolveFormat(cmd)
	if err != nil {
		return report.TableValues{}, err
	}
	initialHost, initialGuest, guestFreq, hostFreq, err := anchor()
	if err != nil {
		return report.TableValues{}, err
	}
	hostTSC, err := parseCounter(flagHostTSCName, flagHostTSC)
	if err != nil {
		return report.TableValues{}, err
	}
	guestTSC, err := calculator().GuestTSC(initialHost, initialGuest, hostFreq, guestFreq, hostTSC, f)
	if err != nil {
		return report.TableValues{}, err
	}
	style := numberStyle()
	return report.TableValues{
		Name: "Guest TSC",
		Fields: []report.Field{
			{Name: "Format", Values: []string{f.String()}},
			{Name: "Host TSC", Values: []string{style.Uint(hostTSC)}},
			{Name: "Guest TSC", Values: []string{style.Uint(guestTSC)}},
		},
	}, nil
}

func ticksPerSecond() (uint64, error) {
	hostFreq, err := parseFrequency(flagHostFreqName, flagHostFreq)
	if err != nil {
		return 0, err
	}
	unit, _ := freq.ParseUnit(flagUnit)
	return unit.TicksPerSecond(hostFreq)
}

func runHRTime(cmd *cobra.Command) (report.TableValues, error) {
	tsc, err := parseCounter(flagTSCName, flagTSC)
	if err != nil {
		return report.TableValues{}, err
	}
	freqHz, err := ticksPerSecond()
	if err != nil {
		return report.TableValues{}, err
	}
	ns, err := tscmath.HRTime(tsc, freqHz)
	if err != nil {
		return report.TableValues{}, err
	}
	style := numberStyle()
	return report.TableValues{
		Name: "HRTime",
		Fields: []report.Field{
			{Name: "TSC", Values: []string{style.Uint(tsc)}},
			{Name: "Frequency (Hz)", Values: []string{style.Uint(freqHz)}},
			{Name: "HRTime (ns)", Values: []string{style.Uint(ns)}},
		},
	}, nil
}

func runTSC(cmd *cobra.Command) (report.TableValues, error) {
	ns, err := parseCounter(flagHRTimeName, flagHRTime)
	if err != nil {
		return report.TableValues{}, err
	}
	freqHz, err := ticksPerSecond()
	if err != nil {
		return report.TableValues{}, err
	}
	tsc, err := tscmath.TSCFromHRTime(ns, freqHz)
	if err != nil {
		return report.TableValues{}, err
	}
	style := numberStyle()
	return report.TableValues{
		Name: "TSC",
		Fields: []report.Field{
			{Name: "HRTime (ns)", Values: []string{style.Uint(ns)}},
			{Name: "Frequency (Hz)", Values: []string{style.Uint(freqHz)}},
			{Name: "TSC", Values: []string{style.Uint(tsc)}},
		},
	}, nil
}
