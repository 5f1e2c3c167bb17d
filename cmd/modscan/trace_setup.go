package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"modscan/internal/trace"
)

// traceConfig turns --trace and --trace-level into a tracer config. Naming
// an output without a level traces the merge phases.
func traceConfig(cmd *cobra.Command) (trace.Config, error) {
	flags := cmd.Root().PersistentFlags()
	output, err := flags.GetString("trace")
	if err != nil {
		return trace.Config{}, fmt.Errorf("failed to get trace flag: %w", err)
	}
	rawLevel, err := flags.GetString("trace-level")
	if err != nil {
		return trace.Config{}, fmt.Errorf("failed to get trace-level flag: %w", err)
	}
	level, err := trace.ParseLevel(rawLevel)
	if err != nil {
		return trace.Config{}, err
	}
	if level == trace.LevelOff && output != "" {
		level = trace.LevelPhase
	}
	return trace.Config{Level: level, OutputPath: output}, nil
}

// setupTracing puts the configured tracer on the command context, where
// merge and the driver pick it up. The cleanup flushes the trace output.
func setupTracing(cmd *cobra.Command) (func(), error) {
	cfg, err := traceConfig(cmd)
	if err != nil {
		return nil, err
	}
	tracer, err := trace.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	cmd.SetContext(trace.WithTracer(cmd.Context(), tracer))
	if !tracer.Enabled() {
		return func() {}, nil
	}
	return func() {
		if err := tracer.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: %s: %v\n", cfg.OutputPath, err)
		}
	}, nil
}
