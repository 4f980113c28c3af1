package catalog

import "time"

// builtinSources are the rate-limit policies for the providers the
// built-in catalog fetches from. Quotas follow each provider's published
// or observed tolerance, not a shared constant.
var builtinSources = map[string]SourcePolicy{
	"census":       {MaxRequests: 500, Window: time.Hour},
	"naturalearth": {MaxRequests: 10, Window: time.Minute},
	"msbuildings":  {MaxRequests: 50, Window: time.Hour},
	"nyc-opendata": {MaxRequests: 100, Window: time.Hour},
}

// builtinDescriptors covers the datasets the original deployment served.
// TTLs are provider-specific: administrative boundaries change rarely
// and cache long; building footprints are large, expensive to recompute,
// and republished often, so they cache short.
var builtinDescriptors = []Descriptor{
	{
		ID:          "countries",
		Source:      "naturalearth",
		Title:       "Country boundaries (1:110m)",
		URLTemplate: "https://naciscdn.org/naturalearth/110m/cultural/ne_110m_admin_0_countries.zip",
		Geography:   GeographyCountry,
		Format:      FormatShapefileZip,
		SourceCRS:   "EPSG:4326",
		CacheTTL:    90 * 24 * time.Hour,
	},
	{
		ID:          "states",
		Source:      "census",
		Title:       "State boundaries (cartographic, 1:500k)",
		URLTemplate: "https://www2.census.gov/geo/tiger/GENZ2023/shp/cb_2023_us_state_500k.zip",
		Geography:   GeographyState,
		Format:      FormatShapefileZip,
		SourceCRS:   "EPSG:4269",
		CacheTTL:    30 * 24 * time.Hour,
	},
	{
		ID:          "counties",
		Source:      "census",
		Title:       "County boundaries (cartographic, 1:500k)",
		URLTemplate: "https://www2.census.gov/geo/tiger/GENZ2023/shp/cb_2023_us_county_500k.zip",
		Geography:   GeographyCounty,
		Format:      FormatShapefileZip,
		SourceCRS:   "EPSG:4269",
		CacheTTL:    30 * 24 * time.Hour,
	},
	{
		ID:             "tracts",
		Source:         "census",
		Title:          "Census tracts (TIGER/Line, per state)",
		URLTemplate:    "https://www2.census.gov/geo/tiger/TIGER2023/TRACT/tl_2023_{state}_tract.zip",
		RequiredParams: []string{"state"},
		Geography:      GeographyTract,
		Format:         FormatShapefileZip,
		SourceCRS:      "EPSG:4269",
		CacheTTL:       30 * 24 * time.Hour,
	},
	{
		ID:          "gazetteer-counties",
		Source:      "census",
		Title:       "County gazetteer (centroid points)",
		URLTemplate: "https://www2.census.gov/geo/docs/maps-data/data/gazetteer/2023_Gazetteer/2023_Gaz_counties_national.zip",
		Geography:   GeographyCounty,
		Format:      FormatGazetteerCSV,
		SourceCRS:   "EPSG:4326",
		CacheTTL:    30 * 24 * time.Hour,
	},
	{
		ID:             "buildings",
		Source:         "msbuildings",
		Title:          "Building footprints (per state)",
		URLTemplate:    "https://minedbuildings.z5.web.core.windows.net/legacy/usbuildings-v2/{state}.geojson.zip",
		RequiredParams: []string{"state"},
		Geography:      GeographyBuilding,
		Format:         FormatNDJSON,
		SourceCRS:      "EPSG:4326",
		CacheTTL:       7 * 24 * time.Hour,
	},
	{
		ID:          "neighborhoods",
		Source:      "nyc-opendata",
		Title:       "NYC neighborhood tabulation areas",
		URLTemplate: "https://data.cityofnewyork.us/resource/9nt8-h7nd.geojson",
		Geography:   GeographyRegion,
		Format:      FormatGeoJSON,
		SourceCRS:   "EPSG:4326",
		CacheTTL:    7 * 24 * time.Hour,
	},
}
