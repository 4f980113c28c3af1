// Package parse turns extracted dataset files into feature collections.
// Each format gets a streaming parser that yields one feature at a time;
// Collect drives the stream into a geo.Collection with a row limit.
package parse

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"path/filepath"
	"strings"

	"geopipe/internal/catalog"
	"geopipe/internal/geo"
)

// ErrNoPayload is returned when none of the extracted files looks like a
// parseable payload. It is fatal to the ingestion run.
var ErrNoPayload = errors.New("no parseable payload in archive")

// payloadPriority orders candidate extensions, best first. Shapefiles win
// because their sidecar files (.dbf, .prj) would otherwise match nothing.
var payloadPriority = []string{".shp", ".geojson", ".json", ".ndjson", ".geojsonl", ".csv", ".txt"}

// FindPayload picks the primary data file among extracted paths.
func FindPayload(paths []string) (string, error) {
	for _, ext := range payloadPriority {
		for _, p := range paths {
			if strings.EqualFold(filepath.Ext(p), ext) {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("%w: saw %d files", ErrNoPayload, len(paths))
}

// Features returns a streaming parser for path according to the cataloged
// format. Errors opening the file surface on the first iteration.
func Features(path string, format catalog.Format, logger *slog.Logger) iter.Seq2[geo.Feature, error] {
	switch format {
	case catalog.FormatShapefileZip:
		return shapefileFeatures(path, logger)
	case catalog.FormatGeoJSON:
		return geojsonFeatures(path)
	case catalog.FormatNDJSON:
		return ndjsonFeatures(path, logger)
	case catalog.FormatCSV:
		return csvFeatures(path, logger)
	case catalog.FormatGazetteerCSV:
		return gazetteerFeatures(path, logger)
	default:
		return func(yield func(geo.Feature, error) bool) {
			yield(geo.Feature{}, fmt.Errorf("no parser for format %q", format))
		}
	}
}

// Collect drives a parser to completion. limit > 0 caps the number of
// features kept; the rest of the stream is not read.
func Collect(path string, format catalog.Format, limit int, logger *slog.Logger) (*geo.Collection, error) {
	c := geo.NewCollection()
	for f, err := range Features(path, format, logger) {
		if err != nil {
			return nil, err
		}
		c.Features = append(c.Features, f)
		if limit > 0 && len(c.Features) >= limit {
			logger.Warn("row limit reached, truncating", "limit", limit, "path", filepath.Base(path))
			break
		}
	}
	return c, nil
}
