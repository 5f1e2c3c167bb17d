package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"modscan/internal/config"
	"modscan/internal/driver"
	"modscan/internal/observ"
	"modscan/internal/pipeline"
	"modscan/internal/report"
	"modscan/internal/shard"
	"modscan/internal/trace"
)

type mergeOptions struct {
	config.Merge
	ConfigPath string
	UI         progressMode
	DryRun     bool
	Timings    bool
	Color      bool
}

func newMergeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge declaration shards and report privacy violations",
		Long: `merge reads every shard under --root, merges the declarations into one table,
writes the merged table and prints each private symbol used from outside
its module. The exit status is 1 when violations were found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readMergeOptions(cmd)
			if err != nil {
				return err
			}
			return runMerge(cmd, a.logger, opts)
		},
	}

	defaults := config.Default().Merge
	cmd.Flags().IntP("jobs", "j", defaults.Jobs, "number of merge workers (0 = GOMAXPROCS)")
	cmd.Flags().Bool("intra-module", defaults.IntraModule, "keep uses from a symbol's own module")
	cmd.Flags().Bool("yaml", defaults.YAML, "also write the YAML export")
	cmd.Flags().String("root", defaults.Root, "directory to search for shards")
	cmd.Flags().String("suffix", defaults.Suffix, "shard file name suffix")
	cmd.Flags().String("json-out", defaults.JSONOut, "path of the JSON export")
	cmd.Flags().String("yaml-out", defaults.YAMLOut, "path of the YAML export")
	cmd.Flags().Int("max-shard-mib", defaults.MaxShardMiB, "bound on one decompressed shard in MiB (0 = none)")
	cmd.Flags().String("config", "", "config file (default: nearest "+config.FileName+")")
	cmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
	cmd.Flags().Bool("dry-run", false, "only discover shards and print their count")
	return cmd
}

// readMergeOptions layers explicitly set flags over the config file.
func readMergeOptions(cmd *cobra.Command) (mergeOptions, error) {
	var opts mergeOptions
	flags := cmd.Flags()

	configPath, err := flags.GetString("config")
	if err != nil {
		return opts, fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, err := config.Resolve(configPath, ".")
	if err != nil {
		return opts, err
	}
	opts.Merge = cfg.Merge
	opts.ConfigPath = cfg.Path

	for name, dst := range map[string]*string{
		"root":     &opts.Root,
		"suffix":   &opts.Suffix,
		"json-out": &opts.JSONOut,
		"yaml-out": &opts.YAMLOut,
	} {
		if !flags.Changed(name) {
			continue
		}
		if *dst, err = flags.GetString(name); err != nil {
			return opts, fmt.Errorf("failed to get %s flag: %w", name, err)
		}
	}
	for name, dst := range map[string]*bool{
		"intra-module": &opts.IntraModule,
		"yaml":         &opts.YAML,
	} {
		if !flags.Changed(name) {
			continue
		}
		if *dst, err = flags.GetBool(name); err != nil {
			return opts, fmt.Errorf("failed to get %s flag: %w", name, err)
		}
	}
	for name, dst := range map[string]*int{
		"jobs":          &opts.Jobs,
		"max-shard-mib": &opts.MaxShardMiB,
	} {
		if !flags.Changed(name) {
			continue
		}
		if *dst, err = flags.GetInt(name); err != nil {
			return opts, fmt.Errorf("failed to get %s flag: %w", name, err)
		}
	}
	if err := opts.Merge.Validate(); err != nil {
		return opts, err
	}

	uiValue, err := flags.GetString("ui")
	if err != nil {
		return opts, fmt.Errorf("failed to get ui flag: %w", err)
	}
	if opts.UI, err = parseProgressMode(uiValue); err != nil {
		return opts, err
	}
	if opts.DryRun, err = flags.GetBool("dry-run"); err != nil {
		return opts, fmt.Errorf("failed to get dry-run flag: %w", err)
	}
	if opts.Timings, err = flags.GetBool("timings"); err != nil {
		return opts, fmt.Errorf("failed to get timings flag: %w", err)
	}
	if opts.Color, err = useColor(cmd, cmd.OutOrStdout()); err != nil {
		return opts, err
	}
	return opts, nil
}

func runMerge(cmd *cobra.Command, logger *zap.Logger, opts mergeOptions) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx := cmd.Context()
	tracer := trace.FromContext(ctx)
	out := cmd.OutOrStdout()
	timer := observ.NewTimer()
	if opts.ConfigPath != "" {
		logger.Debug("loaded config", zap.String("path", opts.ConfigPath))
	}

	runSpan := trace.Begin(tracer, trace.ScopeRun, "modscan merge", 0)
	defer runSpan.End("")
	ctx = trace.WithRunSpan(ctx, runSpan.ID())

	idx := timer.Begin("discover")
	paths, err := shard.Discover(opts.Root, opts.Suffix)
	if err != nil {
		return fmt.Errorf("discover shards: %w", err)
	}
	timer.End(idx, strconv.Itoa(len(paths))+" shards")
	trace.Mark(tracer, trace.ScopePhase, "discovered", strconv.Itoa(len(paths))+" shards", runSpan.ID())
	logger.Info("discovered shards", zap.String("root", opts.Root), zap.Int("shards", len(paths)))

	if opts.DryRun {
		_, err := fmt.Fprintf(out, "%d shards under %s\n", len(paths), opts.Root)
		return err
	}

	loader, err := shard.NewLoader(shard.Options{
		MaxDecodedBytes: opts.MaxShardBytes(),
		Concurrency:     opts.Jobs,
	})
	if err != nil {
		return err
	}
	defer loader.Close()

	dopts := driver.Options{Jobs: opts.Jobs, Loader: loader, Logger: logger}
	idx = timer.Begin("merge")
	var res *driver.Result
	if opts.UI.drawsOn(out) {
		res, err = runMergeWithUI(ctx, out, "merging shards", paths, dopts)
	} else {
		res, err = driver.MergeShards(ctx, paths, dopts)
	}
	if err != nil {
		return err
	}
	timer.End(idx, res.Summary)
	timer.Record("load (all workers)", res.Timings.Duration(pipeline.StageLoad), "")
	timer.Record("fold (all workers)", res.Timings.Duration(pipeline.StageMerge), "")
	if res.Timings.Has(pipeline.StageReduce) {
		timer.Record("reduce", res.Timings.Duration(pipeline.StageReduce), "")
	}
	logger.Info("merged shards",
		zap.Int("shards", res.Shards),
		zap.Int("records", res.Records),
		zap.Int("symbols", res.Table.Len()),
		zap.Int("workers", res.Workers))

	idx = timer.Begin("check")
	checkSpan := trace.Begin(tracer, trace.ScopePhase, "check", runSpan.ID())
	rep := report.Build(res.Table, report.Options{IntraModule: opts.IntraModule})
	checkSpan.Count("violations", len(rep.Violations)).Count("records", len(rep.Records)).End("")
	timer.End(idx, strconv.Itoa(len(rep.Violations))+" violations")

	idx = timer.Begin("export")
	if err := report.WriteJSON(opts.JSONOut, rep.Records); err != nil {
		return fmt.Errorf("write %s: %w", opts.JSONOut, err)
	}
	if opts.YAML {
		if err := report.WriteYAML(opts.YAMLOut, rep.Records); err != nil {
			return fmt.Errorf("write %s: %w", opts.YAMLOut, err)
		}
	}
	timer.End(idx, strconv.Itoa(len(rep.Records))+" records")
	logger.Info("wrote export",
		zap.String("json", opts.JSONOut),
		zap.Bool("yaml", opts.YAML),
		zap.Int("records", len(rep.Records)))

	if err := report.PrintViolations(out, rep.Violations, report.PrintOptions{Color: opts.Color}); err != nil {
		return err
	}
	if opts.Timings {
		fmt.Fprint(cmd.ErrOrStderr(), timer.Summary())
	}
	if len(rep.Violations) > 0 {
		logger.Info("privacy violations", zap.Int("count", len(rep.Violations)))
		return errViolations
	}
	return nil
}
