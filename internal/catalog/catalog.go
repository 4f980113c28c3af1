// Package catalog holds the static dataset descriptors: how to fetch
// and categorize each external dataset, which source it belongs to, and
// the per-source rate-limit policy. Descriptors are loaded and validated
// at startup; an optional JSON overlay file can add or replace entries
// and is hot-reloaded on change.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"geopipe/internal/logging"
)

// Format identifies the payload format a descriptor's download yields.
type Format string

const (
	FormatShapefileZip Format = "shapefile-zip"
	FormatGeoJSON      Format = "geojson"
	FormatNDJSON       Format = "ndjson"
	FormatCSV          Format = "csv"
	FormatGazetteerCSV Format = "gazetteer-csv"
)

var knownFormats = map[Format]bool{
	FormatShapefileZip: true,
	FormatGeoJSON:      true,
	FormatNDJSON:       true,
	FormatCSV:          true,
	FormatGazetteerCSV: true,
}

// Geography is the kind of geography a dataset covers.
type Geography string

const (
	GeographyCountry  Geography = "country"
	GeographyState    Geography = "state"
	GeographyCounty   Geography = "county"
	GeographyTract    Geography = "tract"
	GeographyBuilding Geography = "building"
	GeographyRegion   Geography = "region"
)

// SourcePolicy is the fixed-window rate-limit policy for one external
// source. Values are per-source provider quotas, not universal constants.
type SourcePolicy struct {
	MaxRequests int
	Window      time.Duration
}

// Descriptor is the static configuration for one external dataset.
// Immutable after load.
type Descriptor struct {
	ID             string
	Source         string
	Title          string
	URLTemplate    string
	RequiredParams []string
	Geography      Geography
	Format         Format
	SourceCRS      string
	CacheTTL       time.Duration
}

// ErrUnknownDataset is returned by Get for ids not in the catalog.
var ErrUnknownDataset = errors.New("unknown dataset")

var placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)

// Validate checks a descriptor's internal consistency: known format,
// non-empty source, and URL placeholders covered by required params.
func (d Descriptor) Validate() error {
	if d.ID == "" {
		return errors.New("descriptor missing id")
	}
	if d.Source == "" {
		return fmt.Errorf("descriptor %q: missing source", d.ID)
	}
	if d.URLTemplate == "" {
		return fmt.Errorf("descriptor %q: missing url template", d.ID)
	}
	if !knownFormats[d.Format] {
		return fmt.Errorf("descriptor %q: unknown format %q", d.ID, d.Format)
	}

	required := make(map[string]bool, len(d.RequiredParams))
	for _, p := range d.RequiredParams {
		required[p] = true
	}
	for _, m := range placeholderRe.FindAllStringSubmatch(d.URLTemplate, -1) {
		if !required[m[1]] {
			return fmt.Errorf("descriptor %q: url placeholder {%s} not in required params", d.ID, m[1])
		}
	}
	return nil
}

// ExpandURL substitutes required parameters into the URL template.
// Callers validate parameter presence first; a leftover placeholder
// here is still an error.
func (d Descriptor) ExpandURL(params map[string]string) (string, error) {
	url := d.URLTemplate
	for k, v := range params {
		url = strings.ReplaceAll(url, "{"+k+"}", v)
	}
	if m := placeholderRe.FindString(url); m != "" {
		return "", fmt.Errorf("descriptor %q: unresolved placeholder %s", d.ID, m)
	}
	return url, nil
}

// Catalog is the live set of descriptors and source policies. Reads take
// a shared lock so overlay reloads can swap the set atomically.
type Catalog struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
	sources     map[string]SourcePolicy
	logger      *slog.Logger
}

// New builds a catalog from the built-in descriptors and source
// policies. Built-ins are validated at startup; a bad built-in is a
// programmer error and panics.
func New(logger *slog.Logger) *Catalog {
	c := &Catalog{
		descriptors: make(map[string]Descriptor),
		sources:     make(map[string]SourcePolicy),
		logger:      logging.Default(logger).With("component", "catalog"),
	}
	for name, pol := range builtinSources {
		c.sources[name] = pol
	}
	for _, d := range builtinDescriptors {
		if err := d.Validate(); err != nil {
			panic("builtin descriptor: " + err.Error())
		}
		c.descriptors[d.ID] = d
	}
	return c
}

// Get resolves a dataset id.
func (c *Catalog) Get(id string) (Descriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.descriptors[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownDataset, id)
	}
	return d, nil
}

// All returns the descriptors in no particular order.
func (c *Catalog) All() []Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Descriptor, 0, len(c.descriptors))
	for _, d := range c.descriptors {
		out = append(out, d)
	}
	return out
}

// Sources returns a copy of the per-source rate-limit policies.
func (c *Catalog) Sources() map[string]SourcePolicy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]SourcePolicy, len(c.sources))
	for k, v := range c.sources {
		out[k] = v
	}
	return out
}
