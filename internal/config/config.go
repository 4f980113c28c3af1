// Package config resolves runtime settings from the environment, with an
// optional .env file loaded first. Every knob has a default so the zero
// configuration case just works.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Settings holds everything the process needs to run.
type Settings struct {
	// DataDir is the root for per-job work directories.
	DataDir string
	// DBPath is the sqlite database file backing cache, progress, and
	// rate-limit state.
	DBPath string
	// OverlayPath optionally points at a JSON catalog overlay. Empty
	// means builtins only.
	OverlayPath string
	// HTTPTimeout bounds a whole download, body included.
	HTTPTimeout time.Duration
	// RowLimit caps features parsed per dataset. Zero means unlimited.
	RowLimit int
	// SweepInterval is how often expired durable cache rows are purged.
	SweepInterval time.Duration
	// LogLevel is slog's textual level (debug, info, warn, error).
	LogLevel string
}

// FromEnv builds Settings from GEOPIPE_* environment variables. envFile,
// when non-empty, is loaded first without overriding already-set
// variables; a missing default .env is not an error.
func FromEnv(envFile string) (Settings, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Settings{}, fmt.Errorf("load env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	s := Settings{
		DataDir:       envString("GEOPIPE_DATA_DIR", filepath.Join(os.TempDir(), "geopipe")),
		DBPath:        envString("GEOPIPE_DB_PATH", "geopipe.db"),
		OverlayPath:   envString("GEOPIPE_CATALOG_OVERLAY", ""),
		LogLevel:      envString("GEOPIPE_LOG_LEVEL", "info"),
		HTTPTimeout:   10 * time.Minute,
		RowLimit:      0,
		SweepInterval: time.Hour,
	}

	var err error
	if s.HTTPTimeout, err = envDuration("GEOPIPE_HTTP_TIMEOUT", s.HTTPTimeout); err != nil {
		return Settings{}, err
	}
	if s.SweepInterval, err = envDuration("GEOPIPE_SWEEP_INTERVAL", s.SweepInterval); err != nil {
		return Settings{}, err
	}
	if s.RowLimit, err = envInt("GEOPIPE_ROW_LIMIT", s.RowLimit); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
