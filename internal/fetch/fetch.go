// Package fetch downloads dataset archives over HTTP, streaming the
// response body to disk and reporting byte-level progress as it goes.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// ErrBadStatus wraps non-2xx responses so callers can classify them as
// network failures rather than local ones.
var ErrBadStatus = errors.New("unexpected HTTP status")

// ProgressFunc receives running byte counts during a download. total is -1
// when the server did not send a Content-Length.
type ProgressFunc func(downloaded, total int64)

// Downloader fetches remote files to local paths. The zero value is not
// usable; construct with New.
type Downloader struct {
	client *http.Client
}

// New returns a Downloader with the given timeout applied to the whole
// request, including body streaming. A zero timeout means no limit beyond
// the caller's context.
func New(timeout time.Duration) *Downloader {
	return &Downloader{
		client: &http.Client{Timeout: timeout},
	}
}

// Download fetches url and writes the body to destPath, creating parent
// directories as needed. The body streams through a temp file in the same
// directory and is renamed into place only once fully written, so destPath
// never holds a partial download. onProgress may be nil.
func (d *Downloader) Download(ctx context.Context, url, destPath string, onProgress ProgressFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: %w: HTTP %d", url, ErrBadStatus, resp.StatusCode)
	}

	destDir := filepath.Dir(destPath)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	// Stream to a temp file so destPath only ever appears complete.
	tmp, err := os.CreateTemp(destDir, filepath.Base(destPath)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	total := resp.ContentLength
	w := &countingWriter{dst: tmp, total: total, onProgress: onProgress}
	if _, err := io.Copy(w, resp.Body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("rename to final path: %w", err)
	}
	return nil
}

// countingWriter invokes onProgress after each chunk hits disk.
type countingWriter struct {
	dst        io.Writer
	written    int64
	total      int64
	onProgress ProgressFunc
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	w.written += int64(n)
	if w.onProgress != nil && n > 0 {
		w.onProgress(w.written, w.total)
	}
	return n, err
}
