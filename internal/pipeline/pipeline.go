// Package pipeline orchestrates one dataset ingestion end to end:
// catalog lookup, cache check, rate limiting, download, extraction,
// parsing, reprojection, statistics, filtering, and the cache write.
//
// Concurrent requests for the same cache key are joined: one leader runs
// the download, followers block and share its result.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"geopipe/internal/archive"
	"geopipe/internal/cache"
	"geopipe/internal/callgroup"
	"geopipe/internal/catalog"
	"geopipe/internal/crs"
	"geopipe/internal/fetch"
	"geopipe/internal/geo"
	"geopipe/internal/logging"
	"geopipe/internal/parse"
	"geopipe/internal/progress"
	"geopipe/internal/ratelimit"
)

// Config wires a Pipeline. Catalog, Cache, Limiter, and Downloader are
// required; Tracker may be nil when no caller asks for job tracking.
type Config struct {
	Catalog    *catalog.Catalog
	Cache      *cache.Store
	Limiter    *ratelimit.Limiter
	Tracker    *progress.Tracker
	Downloader *fetch.Downloader
	// WorkDir is the root for per-job temp dirs.
	WorkDir string
	// RowLimit caps parsed features per run. Zero means unlimited.
	RowLimit int
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	catalog  *catalog.Catalog
	cache    *cache.Store
	limiter  *ratelimit.Limiter
	tracker  *progress.Tracker
	dl       *fetch.Downloader
	group    callgroup.Group[string, *geo.Collection]
	workDir  string
	rowLimit int
	logger   *slog.Logger
	now      func() time.Time
}

func New(cfg Config) *Pipeline {
	p := &Pipeline{
		catalog:  cfg.Catalog,
		cache:    cfg.Cache,
		limiter:  cfg.Limiter,
		tracker:  cfg.Tracker,
		dl:       cfg.Downloader,
		workDir:  cfg.WorkDir,
		rowLimit: cfg.RowLimit,
		logger:   logging.Default(cfg.Logger).With("component", "pipeline"),
		now:      cfg.Clock,
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Ingest fetches one dataset and returns its canonical feature
// collection. jobID may be empty; when set, a progress record tracks the
// run. A pure cache hit creates no job and consumes no rate-limit quota.
func (p *Pipeline) Ingest(ctx context.Context, datasetID string, opts Options, jobID string) (*geo.Collection, error) {
	desc, err := p.catalog.Get(datasetID)
	if err != nil {
		return nil, &Error{Kind: KindInvalidRequest, Dataset: datasetID, Err: err}
	}
	if err := validateParams(desc, opts.Params); err != nil {
		return nil, &Error{Kind: KindInvalidRequest, Source: desc.Source, Dataset: desc.ID, Err: err}
	}

	key := cache.Key(desc.Source, desc.ID, opts.cacheParams())

	if !opts.ForceRefresh {
		if entry := p.cache.Get(ctx, key); entry != nil {
			p.logger.Debug("cache hit", "dataset", desc.ID, "key", key)
			return entry.Payload, nil
		}
	}

	tracked := jobID != "" && p.tracker != nil
	if tracked {
		p.tracker.Create(ctx, jobID, desc.Source, desc.ID)
	}

	coll, err, shared := p.group.Do(key, func() (*geo.Collection, error) {
		return p.run(ctx, desc, opts, jobID, key)
	})
	if shared {
		p.logger.Debug("joined in-flight request", "dataset", desc.ID, "key", key)
		// Joiners get their own job record; settle it from the shared
		// result since run only touches the leader's record.
		if tracked {
			if err != nil {
				p.tracker.Fail(ctx, jobID, err.Error())
			} else {
				p.tracker.Complete(ctx, jobID)
			}
		}
	}
	return coll, err
}

func validateParams(desc catalog.Descriptor, params map[string]string) error {
	for _, name := range desc.RequiredParams {
		if params[name] == "" {
			return fmt.Errorf("missing required parameter %q", name)
		}
	}
	return nil
}

// run executes the uncached path for the leading caller. It settles the
// leader's job record and the temp dir on every exit.
func (p *Pipeline) run(ctx context.Context, desc catalog.Descriptor, opts Options, jobID, key string) (_ *geo.Collection, retErr error) {
	tracked := jobID != "" && p.tracker != nil
	if tracked {
		defer func() {
			if retErr != nil {
				p.tracker.Fail(ctx, jobID, retErr.Error())
			}
		}()
	}

	decision := p.limiter.CheckAndConsume(ctx, desc.Source)
	if !decision.Allowed {
		return nil, &Error{
			Kind: KindRateLimited, Source: desc.Source, Dataset: desc.ID,
			ResetAt: decision.ResetAt,
			Err:     fmt.Errorf("source quota exhausted, resets at %s", decision.ResetAt.Format(time.RFC3339)),
		}
	}

	dlURL, err := desc.ExpandURL(opts.Params)
	if err != nil {
		return nil, &Error{Kind: KindInvalidRequest, Source: desc.Source, Dataset: desc.ID, Err: err}
	}

	tmpDir := filepath.Join(p.workDir, "job-"+uuid.NewString())
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, &Error{Kind: KindInvalidData, Source: desc.Source, Dataset: desc.ID, Err: err}
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			p.logger.Warn("temp dir cleanup failed", "dir", tmpDir, "error", err)
		}
	}()

	p.logger.Info("ingesting", "dataset", desc.ID, "source", desc.Source, "options", opts.describe())

	if tracked {
		p.tracker.Update(ctx, jobID, progress.Update{Status: progress.StatusDownloading})
	}
	archivePath := filepath.Join(tmpDir, downloadName(dlURL, desc.Format))
	onProgress := func(downloaded, total int64) {
		if !tracked {
			return
		}
		u := progress.Update{DownloadedBytes: downloaded}
		if total > 0 {
			u.TotalBytes = total
			u.Percent = 50 * float64(downloaded) / float64(total)
		} else {
			u.Percent = 25
		}
		p.tracker.Update(ctx, jobID, u)
	}
	if err := p.dl.Download(ctx, dlURL, archivePath, onProgress); err != nil {
		return nil, &Error{Kind: KindNetwork, Source: desc.Source, Dataset: desc.ID, Err: err}
	}

	if tracked {
		p.tracker.Update(ctx, jobID, progress.Update{Status: progress.StatusExtracting, Percent: 60})
	}
	extractDir := filepath.Join(tmpDir, "extract")
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return nil, &Error{Kind: KindInvalidData, Source: desc.Source, Dataset: desc.ID, Err: err}
	}
	paths, err := archive.Extract(archivePath, extractDir)
	if err != nil {
		return nil, &Error{Kind: KindInvalidData, Source: desc.Source, Dataset: desc.ID, Err: err}
	}
	if tracked {
		p.tracker.Update(ctx, jobID, progress.Update{Status: progress.StatusProcessing, Percent: 70})
	}

	payload, err := parse.FindPayload(paths)
	if err != nil {
		return nil, &Error{Kind: KindInvalidData, Source: desc.Source, Dataset: desc.ID, Err: err}
	}
	coll, err := parse.Collect(payload, desc.Format, p.rowLimit, p.logger)
	if err != nil {
		return nil, &Error{Kind: KindInvalidData, Source: desc.Source, Dataset: desc.ID, Err: err}
	}
	if tracked {
		p.tracker.Update(ctx, jobID, progress.Update{Percent: 80})
	}

	coll.Metadata["source"] = desc.Source
	coll.Metadata["dataset"] = desc.ID
	coll.Metadata["url"] = dlURL
	coll.Metadata["fetched_at"] = p.now().UTC().Format(time.RFC3339)

	sourceCRS := crs.Normalize(desc.SourceCRS)
	if opts.TargetCRS != "" {
		targetCRS := crs.Normalize(opts.TargetCRS)
		if targetCRS != sourceCRS {
			if err := crs.Reproject(coll, sourceCRS, targetCRS); err != nil {
				return nil, &Error{Kind: KindTransform, Source: desc.Source, Dataset: desc.ID, Err: err}
			}
			coll.Metadata["source_crs"] = sourceCRS
			coll.Metadata["crs"] = targetCRS
		}
	}

	coll.Stats = geo.ComputeStats(coll, p.logger)
	if tracked {
		p.tracker.Update(ctx, jobID, progress.Update{Percent: 90})
	}

	if opts.BBox != nil {
		coll.Features = geo.FilterBBox(coll.Features, *opts.BBox, p.logger)
	}
	if len(opts.PropertyFilters) > 0 {
		coll.Features, err = geo.FilterProperties(coll.Features, opts.PropertyFilters)
		if err != nil {
			return nil, &Error{Kind: KindInvalidRequest, Source: desc.Source, Dataset: desc.ID, Err: err}
		}
	}
	if opts.SampleLimit > 0 {
		coll.Features = geo.Sample(coll.Features, opts.SampleLimit)
	}

	p.cache.Set(ctx, key, coll, desc.Source, desc.ID, desc.CacheTTL)

	if tracked {
		p.tracker.Complete(ctx, jobID)
	}
	p.logger.Info("ingested", "dataset", desc.ID, "features", len(coll.Features))
	return coll, nil
}

// downloadName derives a local filename from the download URL so
// extension-based archive dispatch keeps working. URLs without a usable
// extension (API endpoints) fall back to one implied by the format.
func downloadName(dlURL string, format catalog.Format) string {
	base := "payload"
	if u, err := url.Parse(dlURL); err == nil {
		if b := filepath.Base(u.Path); b != "." && b != "/" && b != "" {
			base = b
		}
	}
	if filepath.Ext(base) != "" {
		return base
	}
	switch format {
	case catalog.FormatShapefileZip:
		return base + ".zip"
	case catalog.FormatGeoJSON:
		return base + ".geojson"
	case catalog.FormatNDJSON:
		return base + ".ndjson"
	case catalog.FormatCSV, catalog.FormatGazetteerCSV:
		return base + ".csv"
	default:
		return base
	}
}
