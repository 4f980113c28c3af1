// Package archive unpacks downloaded dataset archives. Zip and tar.gz are
// the formats the catalog providers actually ship; single-file gzip shows
// up for some NDJSON exports.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// ErrUnsupportedArchive is returned when the file extension matches no
// known archive format.
var ErrUnsupportedArchive = errors.New("unsupported archive format")

// ErrEntryTooLarge is returned when a decompressed entry exceeds
// maxEntrySize. Entries that big are treated as hostile.
var ErrEntryTooLarge = errors.New("archive entry exceeds size limit")

// Var so tests can lower it.
var maxEntrySize int64 = 2 << 30 // 2 GiB

// Extract unpacks archivePath into destDir, dispatching on extension, and
// returns the paths of the extracted files. Plain data files (.geojson,
// .json, .csv, ...) pass through unchanged: the returned slice is just the
// input path.
func Extract(archivePath, destDir string) ([]string, error) {
	name := strings.ToLower(archivePath)
	switch {
	case strings.HasSuffix(name, ".zip"):
		return ExtractZip(archivePath, destDir)
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return ExtractTarGz(archivePath, destDir)
	case strings.HasSuffix(name, ".gz"):
		return extractGzip(archivePath, destDir)
	case strings.HasSuffix(name, ".geojson"), strings.HasSuffix(name, ".json"),
		strings.HasSuffix(name, ".ndjson"), strings.HasSuffix(name, ".geojsonl"),
		strings.HasSuffix(name, ".csv"), strings.HasSuffix(name, ".txt"):
		return []string{archivePath}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedArchive, filepath.Base(archivePath))
	}
}

// ExtractZip unpacks all regular files from a zip archive into destDir.
// Directory structure inside the archive is flattened; shapefile sidecars
// only need to end up next to each other.
func ExtractZip(archivePath, destDir string) ([]string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer func() { _ = zr.Close() }()

	var paths []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		base := filepath.Base(f.Name)
		if base == "." || base == ".." || strings.HasPrefix(base, "._") {
			continue
		}
		outPath, err := safeJoin(destDir, base)
		if err != nil {
			return nil, err
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open zip entry %s: %w", f.Name, err)
		}
		err = writeFile(outPath, rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", f.Name, err)
		}
		paths = append(paths, outPath)
	}
	return paths, nil
}

// ExtractTarGz unpacks all regular files from a tar.gz archive into
// destDir, flattening directory structure.
func ExtractTarGz(archivePath, destDir string) ([]string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer func() { _ = gz.Close() }()

	var paths []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		base := filepath.Base(hdr.Name)
		if base == "." || base == ".." {
			continue
		}
		outPath, err := safeJoin(destDir, base)
		if err != nil {
			return nil, err
		}
		if err := writeFile(outPath, tr); err != nil {
			return nil, fmt.Errorf("extract %s: %w", hdr.Name, err)
		}
		paths = append(paths, outPath)
	}
	return paths, nil
}

// extractGzip decompresses a bare .gz file, dropping the suffix.
func extractGzip(archivePath, destDir string) ([]string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer func() { _ = gz.Close() }()

	base := strings.TrimSuffix(filepath.Base(archivePath), ".gz")
	outPath, err := safeJoin(destDir, base)
	if err != nil {
		return nil, err
	}
	if err := writeFile(outPath, gz); err != nil {
		return nil, fmt.Errorf("extract %s: %w", base, err)
	}
	return []string{outPath}, nil
}

// safeJoin joins name under destDir and rejects anything escaping it.
func safeJoin(destDir, name string) (string, error) {
	p := filepath.Join(destDir, name)
	if !strings.HasPrefix(p, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry escapes destination: %s", name)
	}
	return p, nil
}

func writeFile(path string, r io.Reader) error {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	// Copy one byte past the limit so an oversized entry fails instead of
	// silently writing a truncated file.
	n, err := io.Copy(out, io.LimitReader(r, maxEntrySize+1))
	if err == nil && n > maxEntrySize {
		err = fmt.Errorf("%w: %s", ErrEntryTooLarge, filepath.Base(path))
	}
	if err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return err
	}
	return out.Close()
}
