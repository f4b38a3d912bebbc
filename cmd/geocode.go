package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/UnknownOlympus/waypoint/internal/address"
	"github.com/UnknownOlympus/waypoint/internal/cache"
	"github.com/UnknownOlympus/waypoint/internal/geocoding"
	"github.com/UnknownOlympus/waypoint/internal/models"
	"github.com/UnknownOlympus/waypoint/internal/resolver"
	"github.com/UnknownOlympus/waypoint/internal/service"
	"github.com/UnknownOlympus/waypoint/internal/table"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type geocodeOptions struct {
	input          string
	output         string
	workers        int
	dropUnresolved bool
	progress       bool
}

func newGeocodeCmd(a *app) *cobra.Command {
	var opts geocodeOptions

	cmd := &cobra.Command{
		Use:   "geocode <input.csv>",
		Short: "Resolve every row of a CSV table to coordinates",
		Long: `
Reads the table, resolves each row through the cache and the geocoding
service, and writes the table back with latitude and longitude columns.
Rows that cannot be resolved keep empty coordinates unless --drop-unresolved
is given.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.input = args[0]
			if !cmd.Flags().Changed("workers") {
				opts.workers = a.cfg.Workers
			}
			opts.progress = isatty.IsTerminal(os.Stderr.Fd())

			summary, err := a.runGeocode(cmd.Context(), opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			printSummary(cmd.ErrOrStderr(), summary)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output CSV (default <input>_geocoded.csv, - for stdout)")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "number of parallel workers (default from config)")
	cmd.Flags().BoolVar(&opts.dropUnresolved, "drop-unresolved", false, "leave rows without coordinates out of the output")

	return cmd
}

// runGeocode executes one pipeline run. The monitoring server, when enabled,
// lives exactly as long as the run.
func (a *app) runGeocode(ctx context.Context, opts geocodeOptions, stdout io.Writer) (service.Summary, error) {
	tbl, err := readTable(opts.input, table.Columns{
		Primary:   a.cfg.Columns.Primary,
		Secondary: a.cfg.Columns.Secondary,
	})
	if err != nil {
		return service.Summary{}, err
	}

	opener, err := cache.NewOpener(a.cacheOptions(), a.log)
	if err != nil {
		return service.Summary{}, err
	}

	client, err := a.newClient()
	if err != nil {
		return service.Summary{}, err
	}

	builder := address.NewBuilder(a.cfg.Region)
	scheduler := service.NewChunkScheduler(a.log, opener, func(c cache.Cache) service.RowResolver {
		return resolver.New(builder, c, client, a.log, a.metrics)
	}, a.metrics)

	if opts.progress {
		bar := progressbar.NewOptions(len(tbl.Rows),
			progressbar.OptionSetDescription("Geocoding "+filepath.Base(opts.input)),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		scheduler.OnResult(func(models.Result) { _ = bar.Add(1) })
		defer func() { _ = bar.Finish() }()
	}

	a.log.InfoContext(ctx, "Geocoding started",
		"input", opts.input,
		"rows", len(tbl.Rows),
		"workers", opts.workers,
		"provider", a.cfg.Provider.Type,
		"cache", a.cfg.Cache.Backend,
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, groupCtx := errgroup.WithContext(runCtx)

	if a.cfg.Port > 0 {
		group.Go(func() error {
			return startMonitoringServer(groupCtx, a.log, a.reg, healthCheck(opener), a.cfg.Port)
		})
	}

	var results []models.Result
	group.Go(func() error {
		defer cancel()
		var runErr error
		results, runErr = scheduler.ResolveAll(groupCtx, tbl.Rows, opts.workers)
		return runErr
	})

	if err = group.Wait(); err != nil {
		return service.Summary{}, err
	}

	if ctx.Err() != nil {
		a.log.WarnContext(ctx, "Run interrupted, writing partial results")
	}

	if err = writeTable(opts, tbl, results, stdout); err != nil {
		return service.Summary{}, err
	}

	summary := service.Summarize(results)
	a.log.InfoContext(ctx, "Geocoding finished",
		"rows", summary.Total,
		"resolved", summary.Resolved,
		"unresolved", summary.Unresolved,
		"resolved_ratio", summary.ResolvedRatio(),
	)

	return summary, nil
}

func (a *app) newClient() (*geocoding.Client, error) {
	provider, err := geocoding.NewProvider(geocoding.ProviderConfig{
		Type:      geocoding.ProviderType(a.cfg.Provider.Type),
		APIKey:    a.cfg.Provider.APIKey,
		BaseURL:   a.cfg.Provider.BaseURL,
		UserAgent: a.cfg.Provider.UserAgent,
		Timeout:   a.cfg.Client.Timeout,
		Logger:    a.log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create geocoding provider: %w", err)
	}

	return geocoding.NewClient(provider, geocoding.ClientOptions{
		ProviderName: a.cfg.Provider.Type,
		MaxAttempts:  a.cfg.Client.MaxAttempts,
		Timeout:      a.cfg.Client.Timeout,
		BackoffUnit:  a.cfg.Client.BackoffUnit,
		RateLimit:    a.cfg.Provider.RateLimit,
	}, a.log, a.metrics), nil
}

func healthCheck(opener cache.Opener) func(context.Context) error {
	return func(ctx context.Context) error {
		handle, err := opener(ctx)
		if err != nil {
			return err
		}
		return handle.Close()
	}
}

func readTable(path string, cols table.Columns) (*table.Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer file.Close()

	tbl, err := table.Read(file, cols)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return tbl, nil
}

func writeTable(opts geocodeOptions, tbl *table.Table, results []models.Result, stdout io.Writer) error {
	writeOpts := table.WriteOptions{DropUnresolved: opts.dropUnresolved}

	output := opts.output
	if output == "" {
		output = outputPath(opts.input)
	}
	if output == "-" {
		return table.Write(stdout, tbl, results, writeOpts)
	}

	file, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err = table.Write(file, tbl, results, writeOpts); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to write %s: %w", output, err)
	}
	return file.Close()
}

// outputPath derives data/calls.csv -> data/calls_geocoded.csv.
func outputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "_geocoded" + ext
}

func printSummary(w io.Writer, summary service.Summary) {
	fmt.Fprintf(w, "%d rows: %d resolved, %d unresolved (%.1f%%)\n",
		summary.Total, summary.Resolved, summary.Unresolved, 100*summary.ResolvedRatio())

	outcomes := make([]string, 0, len(summary.ByOutcome))
	for outcome := range summary.ByOutcome {
		outcomes = append(outcomes, string(outcome))
	}
	sort.Strings(outcomes)
	for _, outcome := range outcomes {
		fmt.Fprintf(w, "  %-17s %d\n", outcome, summary.ByOutcome[models.Outcome(outcome)])
	}
}
