package ingest

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/yycdata/crashweather/internal/metrics"
)

// Fetcher downloads source CSV exports into a local data directory so the
// loaders can run against files on disk.
type Fetcher struct {
	client  *http.Client
	dataDir string
}

func NewFetcher(dataDir string) *Fetcher {
	return &Fetcher{
		client:  &http.Client{Timeout: 30 * time.Second},
		dataDir: dataDir,
	}
}

// Fetch downloads url into dataDir under filename, retrying transient
// failures. Server errors and rate limits retry; other HTTP failures abort.
func (f *Fetcher) Fetch(url, filename string) (string, error) {
	dest := filepath.Join(f.dataDir, filename)

	var body []byte
	operation := func() error {
		resp, err := f.client.Get(url)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", filename, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("fetch %s: status %d", filename, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("fetch %s: status %d: %s", filename, resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, bo); err != nil {
		metrics.SourceDownloads.WithLabelValues("error").Inc()
		return "", err
	}

	if err := os.MkdirAll(f.dataDir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(dest, body, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", dest, err)
	}

	metrics.SourceDownloads.WithLabelValues("ok").Inc()
	log.Printf("fetch: downloaded %s (%d bytes)", dest, len(body))
	return dest, nil
}
