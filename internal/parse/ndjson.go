package parse

import (
	"bufio"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"strings"

	"geopipe/internal/geo"
)

// Individual NDJSON records can be large polygons; 64 MiB covers the
// biggest features the catalog providers ship.
const maxLineSize = 64 << 20

func ndjsonFeatures(path string, logger *slog.Logger) iter.Seq2[geo.Feature, error] {
	return func(yield func(geo.Feature, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield(geo.Feature{}, fmt.Errorf("open ndjson: %w", err))
			return
		}
		defer func() { _ = f.Close() }()

		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 64<<10), maxLineSize)

		line := 0
		for sc.Scan() {
			line++
			text := strings.TrimSpace(sc.Text())
			if text == "" {
				continue
			}

			var feat geo.Feature
			if err := json.Unmarshal([]byte(text), &feat); err != nil {
				logger.Warn("skipping malformed record", "line", line, "error", err)
				continue
			}
			if feat.Type != "Feature" || feat.Geometry == nil {
				logger.Warn("skipping non-feature record", "line", line, "type", feat.Type)
				continue
			}
			if !yield(feat, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(geo.Feature{}, fmt.Errorf("scan ndjson: %w", err))
		}
	}
}
