package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/streetsim/streetsim/sim"
	"github.com/streetsim/streetsim/sim/geo"
	"github.com/streetsim/streetsim/sim/scenario"
	"github.com/streetsim/streetsim/sim/trace"
)

var (
	// CLI flags for the run command
	scenarioPath string  // Scenario YAML file
	outPath      string  // Where the serialized simulation goes ("-" for stdout)
	logLevel     string  // Log verbosity level
	seed         int64   // Overrides the scenario seed when set
	timelimit    float64 // Overrides the scenario timelimit when set
	errorPolicy  string  // Overrides the scenario error policy when set
	cachePath    string  // Geocoding cache database ("" disables caching)
	metricsPath  string  // Prometheus text-format dump of the run metrics
	traceLevel   string  // Event trace verbosity: none, events, errors
	tracePath    string  // Where the event trace JSON goes
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "streetsim",
	Short: "Discrete-event agent simulator over street graphs",
}

// runOptions is the resolved form of the run flags.
type runOptions struct {
	Scenario    string
	Out         string
	Seed        *int64
	Timelimit   *float64
	ErrorPolicy string
	CachePath   string
	MetricsPath string
	TraceLevel  string
	TracePath   string
}

// runCmd executes a scenario and writes the serialized simulation
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scenario",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		opts := runOptions{
			Scenario:    scenarioPath,
			Out:         outPath,
			ErrorPolicy: errorPolicy,
			CachePath:   cachePath,
			MetricsPath: metricsPath,
			TraceLevel:  traceLevel,
			TracePath:   tracePath,
		}
		if cmd.Flags().Changed("seed") {
			opts.Seed = &seed
		}
		if cmd.Flags().Changed("timelimit") {
			opts.Timelimit = &timelimit
		}

		startTime := time.Now()
		if err := runScenario(cmd.Context(), opts, os.Stdout); err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		logrus.Infof("Simulation complete in %v.", time.Since(startTime))
	},
}

// runScenario loads, assembles and simulates a scenario, then writes the
// result to opts.Out (stdout when "-").
func runScenario(ctx context.Context, opts runOptions, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !trace.IsValidTraceLevel(opts.TraceLevel) {
		return fmt.Errorf("unknown trace level %q", opts.TraceLevel)
	}
	sc, err := scenario.LoadFile(opts.Scenario)
	if err != nil {
		return err
	}
	if opts.Seed != nil {
		sc.Seed = *opts.Seed
	}
	if opts.Timelimit != nil {
		sc.Timelimit = *opts.Timelimit
	}
	if opts.ErrorPolicy != "" {
		sc.ErrorPolicy = opts.ErrorPolicy
	}

	res, closeRes, err := newResolver(ctx, opts.CachePath)
	if err != nil {
		return err
	}
	defer closeRes()

	asm, err := sc.Assemble(ctx, filepath.Dir(opts.Scenario), res)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	cfg := asm.Config
	cfg.Registerer = reg
	var st *trace.SimulationTrace
	if lvl := trace.TraceLevel(opts.TraceLevel); lvl != "" && lvl != trace.TraceLevelNone {
		st = trace.NewSimulationTrace(trace.TraceConfig{Level: lvl})
		cfg.Trace = st
	}
	logrus.Infof("Starting simulation: %d agents, timelimit=%v, seed=%d, error_policy=%q",
		len(asm.Agents), cfg.Timelimit, cfg.Seed, cfg.ErrorPolicy)

	s, err := sim.NewSimulator(asm.Graph, asm.Agents, cfg)
	if err != nil {
		return err
	}
	if err := s.Run(ctx); err != nil {
		return err
	}
	if n := len(s.Diagnostics()); n > 0 {
		logrus.Warnf("%d events failed and were isolated", n)
	}

	result, err := s.Result()
	if err != nil {
		return err
	}
	if err := writeOutput(opts.Out, stdout, result.Encode); err != nil {
		return err
	}

	if st != nil {
		summary := trace.Summarize(st)
		logrus.Infof("Trace: %d events (%d failed) over %d agents, t=[%v, %v], labels=%v",
			summary.TotalEvents, summary.FailedEvents, summary.UniqueAgents,
			summary.FirstTime, summary.LastTime, summary.LabelCounts)
		if opts.TracePath != "" {
			err := writeOutput(opts.TracePath, stdout, func(w io.Writer) error {
				return json.NewEncoder(w).Encode(st)
			})
			if err != nil {
				return fmt.Errorf("failed to write trace: %w", err)
			}
		}
	}

	if opts.MetricsPath != "" {
		if err := prometheus.WriteToTextfile(opts.MetricsPath, reg); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
		logrus.Infof("Metrics written to: %s", opts.MetricsPath)
	}
	return nil
}

// writeOutput calls encode on stdout for "-" and on a created file otherwise.
func writeOutput(path string, stdout io.Writer, encode func(io.Writer) error) error {
	if path == "-" || path == "" {
		return encode(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := encode(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logrus.Infof("Output written to: %s", path)
	return nil
}

// newResolver returns the geocoder, backed by the cache at path when set.
func newResolver(ctx context.Context, path string) (*geo.Resolver, func(), error) {
	if path == "" {
		return geo.NewResolver(nil), func() {}, nil
	}
	cache, err := geo.OpenCache(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open geocoding cache: %w", err)
	}
	logrus.Debugf("Geocoding cache: %s", cache.Path())
	return geo.NewResolver(cache), func() { _ = cache.Close() }, nil
}

func setupLogging() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&cachePath, "cache", "", "SQLite file caching geocoding results (empty disables the cache)")

	runCmd.Flags().StringVar(&scenarioPath, "scenario", "", "Path to the scenario YAML file")
	runCmd.Flags().StringVar(&outPath, "out", "-", "Output file for the serialized simulation (- for stdout)")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "Override the scenario seed")
	runCmd.Flags().Float64Var(&timelimit, "timelimit", 0, "Override the scenario timelimit")
	runCmd.Flags().StringVar(&errorPolicy, "error-policy", "", "Override the scenario error policy (isolate, abort)")
	runCmd.Flags().StringVar(&metricsPath, "metrics-file", "", "Write run metrics in Prometheus text format to this file")
	runCmd.Flags().StringVar(&traceLevel, "trace-level", "none", "Event trace verbosity (none, events, errors)")
	runCmd.Flags().StringVar(&tracePath, "trace-file", "", "Write the event trace as JSON to this file")
	_ = runCmd.MarkFlagRequired("scenario")

	rootCmd.AddCommand(runCmd)
}
