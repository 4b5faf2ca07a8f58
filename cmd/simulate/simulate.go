// Package simulate is a subcommand of the root command. It replays a guest's
// TSC over boot and a series of live migrations and prints the guest and host
// TSC at every simulated second.
package simulate

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"tscsim/internal/common"
	"tscsim/internal/freq"
	"tscsim/internal/metrics"
	"tscsim/internal/report"
	"tscsim/internal/simulate"
	"tscsim/internal/tscmath"
	"tscsim/internal/util"

	"github.com/spf13/cobra"
)

const cmdName = "simulate"

var examples = []string{
	fmt.Sprintf("  Boot only, defaults:                        $ %s %s", common.AppName, cmdName),
	fmt.Sprintf("  Boot, then migrate to a 3 GHz host at 10s:  $ %s %s -g 2.5*GHz --migrate \"10 0x12a05f200 3*GHz\"", common.AppName, cmdName),
	fmt.Sprintf("  Compare AMD and Intel formats:              $ %s %s --migrate \"5 0 1*MHz\" --format amd,intel", common.AppName, cmdName),
	fmt.Sprintf("  Scenario file to a spreadsheet:             $ %s %s --scenario scenario.yaml --output xlsx --output-file tsc.xlsx", common.AppName, cmdName),
	fmt.Sprintf("  Expose the run to Prometheus:               $ %s %s --prometheus-server :9090", common.AppName, cmdName),
}

var Cmd = &cobra.Command{
	Use:           cmdName,
	Short:         "Simulate the host and guest TSC values over time",
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	PreRunE:       validateFlags,
	GroupID:       "primary",
	Args:          cobra.NoArgs,
	SilenceErrors: true,
}

var (
	flagDuration         uint64
	flagInitialHostTSC   string
	flagHostFreq         string
	flagGuestFreq        string
	flagMigrate          []string
	flagScenario         string
	flagFormat           = common.NewFormatListValue(tscmath.FormatAMD)
	flagImpl             string
	flagUnit             string
	flagHex              bool
	flagOutput           string
	flagOutputFile       string
	flagPrometheusServer string
)

const (
	flagDurationName         = "duration"
	flagInitialHostTSCName   = "initial-host-tsc"
	flagHostFreqName         = "host-freq"
	flagGuestFreqName        = "guest-freq"
	flagMigrateName          = "migrate"
	flagScenarioName         = "scenario"
	flagOutputName           = "output"
	flagOutputFileName       = "output-file"
	flagPrometheusServerName = "prometheus-server"
)

// flags describing the hosts and guest directly, not allowed with --scenario
var hostFlagNames = []string{flagDurationName, flagInitialHostTSCName, flagHostFreqName, flagGuestFreqName, flagMigrateName, common.FlagUnitName}

func init() {
	Cmd.Flags().Uint64VarP(&flagDuration, flagDurationName, "d", 20, "")
	Cmd.Flags().StringVarP(&flagInitialHostTSC, flagInitialHostTSCName, "i", "1000000000", "")
	Cmd.Flags().StringVarP(&flagHostFreq, flagHostFreqName, "f", "1000000000", "")
	Cmd.Flags().StringVarP(&flagGuestFreq, flagGuestFreqName, "g", "1000000000", "")
	Cmd.Flags().StringArrayVar(&flagMigrate, flagMigrateName, nil, "")
	Cmd.Flags().StringVar(&flagScenario, flagScenarioName, "", "")
	Cmd.Flags().StringVar(&flagUnit, common.FlagUnitName, "hz", "")
	Cmd.Flags().Var(flagFormat, common.FlagFormatName, "")
	Cmd.Flags().StringVar(&flagImpl, common.FlagImplName, tscmath.ImplNative, "")
	Cmd.Flags().BoolVar(&flagHex, common.FlagHexName, false, "")
	Cmd.Flags().StringVar(&flagOutput, flagOutputName, report.FormatTxt, "")
	Cmd.Flags().StringVar(&flagOutputFile, flagOutputFileName, "", "")
	Cmd.Flags().StringVar(&flagPrometheusServer, flagPrometheusServerName, "", "")

	Cmd.SetUsageFunc(common.UsageFunc(getFlagGroups))
}

func getFlagGroups() []common.FlagGroup {
	var groups []common.FlagGroup
	groups = append(groups, common.FlagGroup{
		GroupName: "Scenario Options",
		Flags: []common.Flag{
			{Name: flagDurationName, Help: "number of simulated seconds"},
			{Name: flagInitialHostTSCName, Help: "boot host TSC, decimal or 0x hex"},
			{Name: flagHostFreqName, Help: "boot host frequency, e.g. 1000000000 or 2.5*GHz"},
			{Name: flagGuestFreqName, Help: "guest frequency"},
			{Name: flagMigrateName, Help: "migrate at t seconds: \"<t> <host_tsc> <host_freq>\", may be repeated"},
			{Name: common.FlagUnitName, Help: fmt.Sprintf("unit of plain frequency values, one of: %s", strings.Join(freq.UnitOptions, ", "))},
			{Name: flagScenarioName, Help: "YAML scenario file, replaces the options above"},
		},
	})
	groups = append(groups, common.FlagGroup{
		GroupName: "Arithmetic Options",
		Flags: []common.Flag{
			{Name: common.FlagFormatName, Help: "fixed-point format(s): amd (8.32), intel (16.48) or N.M, may be repeated"},
			{Name: common.FlagImplName, Help: fmt.Sprintf("arithmetic implementation, one of: %s", strings.Join(tscmath.ImplOptions, ", "))},
		},
	})
	groups = append(groups, common.FlagGroup{
		GroupName: "Output Options",
		Flags: []common.Flag{
			{Name: common.FlagHexName, Help: "print TSC values as hexadecimal"},
			{Name: flagOutputName, Help: fmt.Sprintf("output format, one of: %s", strings.Join(report.FormatOptions, ", "))},
			{Name: flagOutputFileName, Help: "write the output to this file instead of stdout"},
			{Name: flagPrometheusServerName, Help: "serve metrics on this address, e.g. :9090, until interrupted"},
		},
	})
	return groups
}

func validateFlags(cmd *cobra.Command, args []string) error {
	if flagScenario != "" {
		for _, name := range hostFlagNames {
			if cmd.Flags().Changed(name) {
				return common.FlagValidationError(cmd, fmt.Sprintf("--%s cannot be used with --%s", name, flagScenarioName))
			}
		}
		exists, err := util.FileExists(flagScenario)
		if err != nil || !exists {
			return common.FlagValidationError(cmd, fmt.Sprintf("scenario file %s does not exist", flagScenario))
		}
	}
	if _, err := freq.ParseUnit(flagUnit); err != nil {
		return common.FlagValidationError(cmd, err.Error())
	}
	if err := common.ValidateOption(common.FlagImplName, flagImpl, tscmath.ImplOptions); err != nil {
		return common.FlagValidationError(cmd, err.Error())
	}
	if err := common.ValidateOption(flagOutputName, flagOutput, report.FormatOptions); err != nil {
		return common.FlagValidationError(cmd, err.Error())
	}
	if flagOutput == report.FormatXlsx && flagOutputFile == "" {
		return common.FlagValidationError(cmd, fmt.Sprintf("--%s %s requires --%s", flagOutputName, report.FormatXlsx, flagOutputFileName))
	}
	if flagOutputFile != "" {
		path, err := util.AbsPath(flagOutputFile)
		if err != nil {
			return common.FlagValidationError(cmd, err.Error())
		}
		flagOutputFile = path
	}
	return nil
}

// buildConfig assembles the simulation from either the scenario file or the
// host flags. Migrations given on the command line are ordered by time.
func buildConfig(cmd *cobra.Command) (simulate.Config, []tscmath.Format, error) {
	if flagScenario != "" {
		scenario, err := simulate.LoadScenario(flagScenario)
		if err != nil {
			return simulate.Config{}, nil, err
		}
		cfg, formats, err := scenario.Config()
		if err != nil {
			return simulate.Config{}, nil, err
		}
		if cmd.Flags().Changed(common.FlagFormatName) {
			formats = flagFormat.Formats
		}
		return cfg, formats, nil
	}
	unit, err := freq.ParseUnit(flagUnit)
	if err != nil {
		return simulate.Config{}, nil, err
	}
	guestFreq, err := freq.Parse(flagGuestFreq, unit)
	if err != nil {
		return simulate.Config{}, nil, fmt.Errorf("--%s: %w", flagGuestFreqName, err)
	}
	hostFreq, err := freq.Parse(flagHostFreq, unit)
	if err != nil {
		return simulate.Config{}, nil, fmt.Errorf("--%s: %w", flagHostFreqName, err)
	}
	hostTSC, err := util.ParseUint64(flagInitialHostTSC)
	if err != nil {
		return simulate.Config{}, nil, fmt.Errorf("--%s: invalid value %q", flagInitialHostTSCName, flagInitialHostTSC)
	}
	segments := []simulate.HostSegment{{Start: 0, HostTSC: hostTSC, HostFrequency: hostFreq}}
	var migrations []simulate.HostSegment
	for _, m := range flagMigrate {
		seg, err := simulate.ParseMigration(m, unit)
		if err != nil {
			return simulate.Config{}, nil, fmt.Errorf("--%s: %w", flagMigrateName, err)
		}
		migrations = append(migrations, seg)
	}
	slices.SortStableFunc(migrations, func(a, b simulate.HostSegment) int { return cmp.Compare(a.Start, b.Start) })
	segments = append(segments, migrations...)
	if err := simulate.ValidateSegments(segments, flagDuration); err != nil {
		return simulate.Config{}, nil, err
	}
	return simulate.Config{
		Duration:       flagDuration,
		GuestFrequency: guestFreq,
		Unit:           unit,
		Format:         flagFormat.Formats[0],
		Segments:       segments,
	}, flagFormat.Formats, nil
}

func runCmd(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	cfg, formats, err := buildConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		return err
	}
	if cfg.Arith, err = tscmath.ImplByName(flagImpl); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	var exporter *metrics.Exporter
	if flagPrometheusServer != "" {
		exporter = metrics.NewExporter()
		cfg.Observer = exporter
	}
	slog.Info("running simulation", slog.Uint64("duration", cfg.Duration), slog.Int("hosts", len(cfg.Segments)), slog.String("formats", flagFormat.String()), slog.String("impl", flagImpl))
	results := simulate.RunFormats(cfg, formats)

	style := common.NumberStyle(flagHex, os.Stdout)
	if flagOutputFile != "" {
		style = common.NumberStyle(flagHex, nil)
	}
	tables := report.ScenarioTables(cfg, formats, style)
	tables = append(tables, report.SimulationTables(results, style)...)
	out, err := report.Create(flagOutput, tables)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create output: %v\n", err)
		slog.Error(err.Error())
		return err
	}
	if err := common.WriteOutput(cmd, out, flagOutputFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	if flagOutputFile != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Simulation written to %s\n", flagOutputFile)
	}
	var failed []error
	for _, r := range results {
		if r.Err != nil {
			slog.Error("simulation failed", slog.String("format", r.Format.String()), slog.String("error", r.Err.Error()))
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", r.Format.Name(), r.Err)
			failed = append(failed, fmt.Errorf("%s: %w", r.Format.Name(), r.Err))
		}
	}
	if exporter != nil {
		serveMetrics(cmd.Context(), exporter)
	}
	return errors.Join(failed...)
}

// waitForShutdown blocks until ctx is done. Tests replace it.
var waitForShutdown = func(ctx context.Context) {
	<-ctx.Done()
}

func serveMetrics(parent context.Context, exporter *metrics.Exporter) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	server := exporter.Serve(flagPrometheusServer)
	fmt.Fprintf(os.Stderr, "Serving metrics on %s/metrics, press Ctrl-C to stop\n", flagPrometheusServer)
	waitForShutdown(ctx)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shut down metrics server", slog.String("error", err.Error()))
	}
}
