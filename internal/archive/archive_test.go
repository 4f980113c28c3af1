package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

func buildZip(t *testing.T, entries map[string][]byte) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write(content); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	path := filepath.Join(t.TempDir(), "test.zip")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func buildTarGz(t *testing.T, entries map[string][]byte) string {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range entries {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header: %v", err)
		}
		if _, err := tw.Write(content); err != nil {
			t.Fatalf("tar write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "test.tar.gz")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func baseNames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	slices.Sort(out)
	return out
}

func TestExtractZip(t *testing.T) {
	archive := buildZip(t, map[string][]byte{
		"tl_2024_us_county/tl_2024_us_county.shp": []byte("shp-bytes"),
		"tl_2024_us_county/tl_2024_us_county.dbf": []byte("dbf-bytes"),
		"tl_2024_us_county/tl_2024_us_county.shx": []byte("shx-bytes"),
	})

	dest := t.TempDir()
	paths, err := Extract(archive, dest)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	want := []string{"tl_2024_us_county.dbf", "tl_2024_us_county.shp", "tl_2024_us_county.shx"}
	if got := baseNames(paths); !slices.Equal(got, want) {
		t.Fatalf("extracted %v, want %v", got, want)
	}

	got, err := os.ReadFile(filepath.Join(dest, "tl_2024_us_county.shp"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "shp-bytes" {
		t.Errorf("content = %q", got)
	}
}

func TestExtractTarGz(t *testing.T) {
	archive := buildTarGz(t, map[string][]byte{
		"export/features.ndjson": []byte(`{"type":"Feature"}`),
	})

	dest := t.TempDir()
	paths, err := Extract(archive, dest)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(paths) != 1 || filepath.Base(paths[0]) != "features.ndjson" {
		t.Fatalf("paths = %v", paths)
	}
}

func TestExtractBareGzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(`{"type":"Feature"}`)); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	archive := filepath.Join(t.TempDir(), "features.ndjson.gz")
	if err := os.WriteFile(archive, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	paths, err := Extract(archive, dest)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(paths) != 1 || filepath.Base(paths[0]) != "features.ndjson" {
		t.Fatalf("paths = %v", paths)
	}
	got, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"type":"Feature"}` {
		t.Errorf("content = %q", got)
	}
}

func TestExtractPassThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.geojson")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	paths, err := Extract(path, t.TempDir())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(paths) != 1 || paths[0] != path {
		t.Fatalf("paths = %v, want [%s]", paths, path)
	}
}

func TestExtractUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.rar")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Extract(path, t.TempDir())
	if !errors.Is(err, ErrUnsupportedArchive) {
		t.Fatalf("expected ErrUnsupportedArchive, got %v", err)
	}
}

func TestExtractCorruptZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zip")
	if err := os.WriteFile(path, []byte("this is not a zip archive"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Extract(path, t.TempDir()); err == nil {
		t.Fatal("expected error for corrupt archive")
	}
}

func TestExtractSlipEntry(t *testing.T) {
	// A tar entry whose name tries to climb out of destDir must be
	// flattened to its base name, never written outside.
	archive := buildTarGz(t, map[string][]byte{
		"../../evil.txt": []byte("nope"),
	})
	dest := t.TempDir()
	paths, err := Extract(archive, dest)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, p := range paths {
		rel, relErr := filepath.Rel(dest, p)
		if relErr != nil || rel != filepath.Base(rel) {
			t.Errorf("path %s escapes dest dir", p)
		}
	}
}

func TestExtractOversizedEntry(t *testing.T) {
	old := maxEntrySize
	maxEntrySize = 16
	t.Cleanup(func() { maxEntrySize = old })

	archive := buildZip(t, map[string][]byte{
		"big.geojson": bytes.Repeat([]byte("x"), 64),
	})
	dest := t.TempDir()
	_, err := Extract(archive, dest)
	if !errors.Is(err, ErrEntryTooLarge) {
		t.Fatalf("err = %v, want ErrEntryTooLarge", err)
	}
	// The truncated file must not be left behind for the parsers to find.
	if _, statErr := os.Stat(filepath.Join(dest, "big.geojson")); !os.IsNotExist(statErr) {
		t.Errorf("truncated entry left on disk: %v", statErr)
	}

	// At exactly the limit the entry extracts whole.
	archive = buildZip(t, map[string][]byte{
		"fits.geojson": bytes.Repeat([]byte("y"), 16),
	})
	paths, err := Extract(archive, t.TempDir())
	if err != nil {
		t.Fatalf("Extract at limit: %v", err)
	}
	data, err := os.ReadFile(paths[0])
	if err != nil || len(data) != 16 {
		t.Errorf("entry at limit: len=%d err=%v", len(data), err)
	}
}
