// Command geopipe fetches external geospatial datasets into canonical
// feature collections.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"geopipe/internal/cache"
	"geopipe/internal/catalog"
	"geopipe/internal/config"
	"geopipe/internal/fetch"
	"geopipe/internal/geo"
	"geopipe/internal/pipeline"
	"geopipe/internal/progress"
	"geopipe/internal/ratelimit"
	"geopipe/internal/sqlite"
)

var version = "dev"

func main() {
	var settings config.Settings
	var logger *slog.Logger

	rootCmd := &cobra.Command{
		Use:   "geopipe",
		Short: "Geospatial dataset ingestion pipeline",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			var err error
			settings, err = config.FromEnv(envFile)
			if err != nil {
				return err
			}
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: parseLevel(settings.LogLevel),
			}))
			return nil
		},
	}
	rootCmd.PersistentFlags().String("env-file", "", "path to a .env file (default: ./.env if present)")

	fetchCmd := &cobra.Command{
		Use:   "fetch <dataset>",
		Short: "Ingest one dataset and print a summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := optionsFromFlags(cmd)
			if err != nil {
				return err
			}
			jobID, _ := cmd.Flags().GetString("job")
			outPath, _ := cmd.Flags().GetString("out")

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			app, err := newApp(settings, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			coll, err := app.pipeline.Ingest(ctx, args[0], opts, jobID)
			if err != nil {
				return err
			}
			return writeResult(coll, outPath)
		},
	}
	fetchCmd.Flags().StringArray("param", nil, "URL parameter as key=value (repeatable)")
	fetchCmd.Flags().Bool("force", false, "bypass the cache read")
	fetchCmd.Flags().String("target-crs", "", "reproject to this CRS (e.g. EPSG:3857)")
	fetchCmd.Flags().String("bbox", "", "filter to minx,miny,maxx,maxy")
	fetchCmd.Flags().StringArray("filter", nil, "property predicate as key=value (repeatable)")
	fetchCmd.Flags().Int("sample", 0, "down-sample to at most N features")
	fetchCmd.Flags().String("job", "", "job id for progress tracking")
	fetchCmd.Flags().String("out", "", "write the feature collection to this file instead of a summary")

	prefetchCmd := &cobra.Command{
		Use:   "prefetch <dataset>...",
		Short: "Warm the cache for several datasets concurrently",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			app, err := newApp(settings, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			g, ctx := errgroup.WithContext(ctx)
			for _, dataset := range args {
				g.Go(func() error {
					jobID := "prefetch-" + uuid.NewString()
					coll, err := app.pipeline.Ingest(ctx, dataset, pipeline.Options{}, jobID)
					if err != nil {
						return fmt.Errorf("%s: %w", dataset, err)
					}
					fmt.Printf("%s: %d features\n", dataset, len(coll.Features))
					return nil
				})
			}
			return g.Wait()
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print a job's progress record",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, _ := cmd.Flags().GetString("job")
			if jobID == "" {
				return fmt.Errorf("--job is required")
			}

			app, err := newApp(settings, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			rec, ok := app.tracker.Get(cmd.Context(), jobID)
			if !ok {
				fmt.Printf("job %s: unknown\n", jobID)
				return nil
			}
			fmt.Printf("job %s: %s %.0f%%", rec.JobID, rec.Status, rec.Percent)
			if rec.TotalBytes > 0 {
				fmt.Printf(" (%d/%d bytes)", rec.DownloadedBytes, rec.TotalBytes)
			}
			if rec.ErrorMessage != "" {
				fmt.Printf(" error=%q", rec.ErrorMessage)
			}
			fmt.Println()
			return nil
		},
	}
	statusCmd.Flags().String("job", "", "job id")

	ratelimitCmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Print per-source rate-limit windows",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(settings, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			for _, st := range app.limiter.Status() {
				fmt.Printf("%-16s %d/%d used, window resets %s\n",
					st.Source, st.Used, st.MaxRequests, st.ResetAt.Format("15:04:05"))
			}
			return nil
		},
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Purge expired durable cache rows once",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(settings, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			app.cache.SweepDurable(cmd.Context())
			return nil
		},
	}

	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run background maintenance until interrupted",
		Long: "Runs the periodic durable-cache sweep and, when a catalog overlay is\n" +
			"configured, hot-reloads it on change.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			app, err := newApp(settings, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			sweeper, err := cache.NewSweeper(app.cache, settings.SweepInterval, logger)
			if err != nil {
				return err
			}
			sweeper.Start()
			defer func() {
				if err := sweeper.Stop(); err != nil {
					logger.Warn("sweeper shutdown", "error", err)
				}
			}()

			if settings.OverlayPath != "" {
				if err := app.catalog.Watch(ctx, settings.OverlayPath); err != nil {
					return err
				}
			}
			<-ctx.Done()
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(fetchCmd, prefetchCmd, statusCmd, ratelimitCmd, sweepCmd, daemonCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is the wired process: one sqlite store shared by all three durable
// concerns, one catalog, and the pipeline composed on top.
type app struct {
	store    *sqlite.Store
	catalog  *catalog.Catalog
	cache    *cache.Store
	limiter  *ratelimit.Limiter
	tracker  *progress.Tracker
	pipeline *pipeline.Pipeline
}

func newApp(settings config.Settings, logger *slog.Logger) (*app, error) {
	store, err := sqlite.NewStore(settings.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	cat := catalog.New(logger)
	if settings.OverlayPath != "" {
		if err := cat.LoadOverlay(settings.OverlayPath); err != nil {
			store.Close()
			return nil, err
		}
	}

	policies := make(map[string]ratelimit.Policy)
	for name, pol := range cat.Sources() {
		policies[name] = ratelimit.Policy{MaxRequests: pol.MaxRequests, Window: pol.Window}
	}

	a := &app{
		store:   store,
		catalog: cat,
		cache:   cache.NewStore(store, logger),
		limiter: ratelimit.New(policies, logger, ratelimit.WithStore(store)),
		tracker: progress.NewTracker(logger, progress.WithStore(store)),
	}
	a.pipeline = pipeline.New(pipeline.Config{
		Catalog:    cat,
		Cache:      a.cache,
		Limiter:    a.limiter,
		Tracker:    a.tracker,
		Downloader: fetch.New(settings.HTTPTimeout),
		WorkDir:    settings.DataDir,
		RowLimit:   settings.RowLimit,
		Logger:     logger,
	})
	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "close state store:", err)
	}
}

func optionsFromFlags(cmd *cobra.Command) (pipeline.Options, error) {
	opts := pipeline.Options{}

	params, _ := cmd.Flags().GetStringArray("param")
	if len(params) > 0 {
		opts.Params = make(map[string]string, len(params))
		for _, p := range params {
			k, v, ok := strings.Cut(p, "=")
			if !ok {
				return opts, fmt.Errorf("bad --param %q, want key=value", p)
			}
			opts.Params[k] = v
		}
	}

	filters, _ := cmd.Flags().GetStringArray("filter")
	if len(filters) > 0 {
		opts.PropertyFilters = make(map[string]string, len(filters))
		for _, f := range filters {
			k, v, ok := strings.Cut(f, "=")
			if !ok {
				return opts, fmt.Errorf("bad --filter %q, want key=value", f)
			}
			opts.PropertyFilters[k] = v
		}
	}

	if bbox, _ := cmd.Flags().GetString("bbox"); bbox != "" {
		parts := strings.Split(bbox, ",")
		if len(parts) != 4 {
			return opts, fmt.Errorf("bad --bbox %q, want minx,miny,maxx,maxy", bbox)
		}
		vals := make([]float64, 4)
		for i, part := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return opts, fmt.Errorf("bad --bbox component %q: %w", part, err)
			}
			vals[i] = v
		}
		opts.BBox = &geo.BBox{MinX: vals[0], MinY: vals[1], MaxX: vals[2], MaxY: vals[3]}
	}

	opts.ForceRefresh, _ = cmd.Flags().GetBool("force")
	opts.TargetCRS, _ = cmd.Flags().GetString("target-crs")
	opts.SampleLimit, _ = cmd.Flags().GetInt("sample")
	return opts, nil
}

func writeResult(coll *geo.Collection, outPath string) error {
	if outPath != "" {
		data, err := json.MarshalIndent(coll, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(outPath, data, 0o644)
	}

	fmt.Printf("%d features\n", len(coll.Features))
	if coll.Stats != nil {
		for geomType, count := range coll.Stats.GeometryTypes {
			fmt.Printf("  %s: %d\n", geomType, count)
		}
		if coll.Stats.BBox != nil {
			b := coll.Stats.BBox
			fmt.Printf("  bbox: %.6f,%.6f,%.6f,%.6f\n", b.MinX, b.MinY, b.MaxX, b.MaxY)
		}
	}
	return nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
