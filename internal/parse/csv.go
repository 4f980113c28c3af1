package parse

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"

	"geopipe/internal/geo"
)

// ErrNoCoordinateColumns is returned when a CSV header has no recognizable
// latitude/longitude pair.
var ErrNoCoordinateColumns = errors.New("no coordinate columns in CSV header")

var (
	latNames = map[string]bool{"latitude": true, "lat": true, "y": true, "intptlat": true}
	lonNames = map[string]bool{"longitude": true, "lon": true, "lng": true, "long": true, "x": true, "intptlong": true, "intptlon": true}
)

// csvFeatures parses a generic point CSV: one row per feature, coordinates
// in columns named like lat/latitude and lon/longitude, everything else
// carried as string properties.
func csvFeatures(path string, logger *slog.Logger) iter.Seq2[geo.Feature, error] {
	return func(yield func(geo.Feature, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield(geo.Feature{}, fmt.Errorf("open csv: %w", err))
			return
		}
		defer func() { _ = f.Close() }()

		r := csv.NewReader(f)
		r.TrimLeadingSpace = true

		header, err := r.Read()
		if err != nil {
			yield(geo.Feature{}, fmt.Errorf("read csv header: %w", err))
			return
		}

		latIdx, lonIdx := -1, -1
		for i, col := range header {
			name := strings.ToLower(strings.TrimSpace(col))
			if latIdx < 0 && latNames[name] {
				latIdx = i
			}
			if lonIdx < 0 && lonNames[name] {
				lonIdx = i
			}
		}
		if latIdx < 0 || lonIdx < 0 {
			yield(geo.Feature{}, fmt.Errorf("%w: %v", ErrNoCoordinateColumns, header))
			return
		}

		line := 1
		for {
			record, err := r.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			line++
			if err != nil {
				logger.Warn("skipping malformed row", "line", line, "error", err)
				continue
			}

			lat, latErr := strconv.ParseFloat(strings.TrimSpace(record[latIdx]), 64)
			lon, lonErr := strconv.ParseFloat(strings.TrimSpace(record[lonIdx]), 64)
			if latErr != nil || lonErr != nil {
				logger.Warn("skipping row with bad coordinates", "line", line)
				continue
			}

			props := make(map[string]any, len(header)-2)
			for i, col := range header {
				if i == latIdx || i == lonIdx || i >= len(record) {
					continue
				}
				props[strings.TrimSpace(col)] = record[i]
			}

			if !yield(geo.NewFeature("Point", []any{lon, lat}, props), nil) {
				return
			}
		}
	}
}

// gazetteerRow matches the Census gazetteer file layout: tab-delimited,
// one row per geographic entity with an interior point.
type gazetteerRow struct {
	USPS       string  `csv:"USPS"`
	GeoID      string  `csv:"GEOID"`
	ANSICode   string  `csv:"ANSICODE"`
	Name       string  `csv:"NAME"`
	LandArea   int64   `csv:"ALAND"`
	WaterArea  int64   `csv:"AWATER"`
	LandSqMi   float64 `csv:"ALAND_SQMI"`
	WaterSqMi  float64 `csv:"AWATER_SQMI"`
	InteriorLa float64 `csv:"INTPTLAT"`
	InteriorLo float64 `csv:"INTPTLONG"`
}

func gazetteerFeatures(path string, logger *slog.Logger) iter.Seq2[geo.Feature, error] {
	return func(yield func(geo.Feature, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield(geo.Feature{}, fmt.Errorf("open gazetteer: %w", err))
			return
		}
		defer func() { _ = f.Close() }()

		r := csv.NewReader(f)
		r.Comma = '\t'
		r.TrimLeadingSpace = true
		r.FieldsPerRecord = -1

		// Published files pad header cells with trailing spaces, so the
		// header is read and trimmed before handing off to the decoder.
		rawHeader, err := r.Read()
		if err != nil {
			yield(geo.Feature{}, fmt.Errorf("read gazetteer header: %w", err))
			return
		}
		header := make([]string, len(rawHeader))
		for i, col := range rawHeader {
			header[i] = strings.TrimSpace(col)
		}

		dec, err := csvutil.NewDecoder(r, header...)
		if err != nil {
			yield(geo.Feature{}, fmt.Errorf("decode gazetteer header: %w", err))
			return
		}
		dec.Map = func(field, col string, v any) string {
			return strings.TrimSpace(field)
		}

		line := 1
		for {
			var row gazetteerRow
			err := dec.Decode(&row)
			if errors.Is(err, io.EOF) {
				return
			}
			line++
			if err != nil {
				logger.Warn("skipping malformed row", "line", line, "error", err)
				continue
			}

			props := map[string]any{
				"USPS":        row.USPS,
				"GEOID":       row.GeoID,
				"ANSICODE":    row.ANSICode,
				"NAME":        row.Name,
				"ALAND":       row.LandArea,
				"AWATER":      row.WaterArea,
				"ALAND_SQMI":  row.LandSqMi,
				"AWATER_SQMI": row.WaterSqMi,
			}
			if !yield(geo.NewFeature("Point", []any{row.InteriorLo, row.InteriorLa}, props), nil) {
				return
			}
		}
	}
}
