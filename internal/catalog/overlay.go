package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// overlayFile is the JSON schema for a catalog overlay. Datasets add to
// or replace built-ins by id; sources add to or replace policies by name.
//
//	{
//	  "sources": {"census": {"max_requests": 200, "window": "1h"}},
//	  "datasets": [
//	    {"id": "zips", "source": "census", "url_template": "...",
//	     "format": "shapefile-zip", "geography": "region",
//	     "source_crs": "EPSG:4269", "ttl_hours": 720,
//	     "required_params": ["state"]}
//	  ]
//	}
type overlayFile struct {
	Sources  map[string]overlaySource `json:"sources"`
	Datasets []overlayDataset         `json:"datasets"`
}

type overlaySource struct {
	MaxRequests int    `json:"max_requests"`
	Window      string `json:"window"`
}

type overlayDataset struct {
	ID             string   `json:"id"`
	Source         string   `json:"source"`
	Title          string   `json:"title"`
	URLTemplate    string   `json:"url_template"`
	RequiredParams []string `json:"required_params"`
	Geography      string   `json:"geography"`
	Format         string   `json:"format"`
	SourceCRS      string   `json:"source_crs"`
	TTLHours       float64  `json:"ttl_hours"`
}

// LoadOverlay reads and applies an overlay file. The whole file is
// validated before anything is applied: a bad overlay leaves the
// catalog unchanged.
func (c *Catalog) LoadOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read overlay: %w", err)
	}

	var overlay overlayFile
	if err := json.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse overlay: %w", err)
	}

	policies := make(map[string]SourcePolicy, len(overlay.Sources))
	for name, src := range overlay.Sources {
		if src.MaxRequests <= 0 {
			return fmt.Errorf("overlay source %q: max_requests must be positive", name)
		}
		window, err := time.ParseDuration(src.Window)
		if err != nil {
			return fmt.Errorf("overlay source %q: window: %w", name, err)
		}
		policies[name] = SourcePolicy{MaxRequests: src.MaxRequests, Window: window}
	}

	descriptors := make([]Descriptor, 0, len(overlay.Datasets))
	for _, ds := range overlay.Datasets {
		d := Descriptor{
			ID:             ds.ID,
			Source:         ds.Source,
			Title:          ds.Title,
			URLTemplate:    ds.URLTemplate,
			RequiredParams: ds.RequiredParams,
			Geography:      Geography(ds.Geography),
			Format:         Format(ds.Format),
			SourceCRS:      ds.SourceCRS,
			CacheTTL:       time.Duration(ds.TTLHours * float64(time.Hour)),
		}
		if err := d.Validate(); err != nil {
			return fmt.Errorf("overlay: %w", err)
		}
		descriptors = append(descriptors, d)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for name, pol := range policies {
		c.sources[name] = pol
	}
	for _, d := range descriptors {
		c.descriptors[d.ID] = d
	}
	c.logger.Info("catalog overlay applied",
		"path", path, "datasets", len(descriptors), "sources", len(policies))
	return nil
}
