package media

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"time"
)

// Fetcher downloads remote media files into temporary files.
type Fetcher struct {
	client  *http.Client
	maxSize int64
}

// NewFetcher creates a fetcher with a bounded per-download timeout and file
// size. skipTLSVerify is for staging sites with self-signed certificates.
func NewFetcher(timeout time.Duration, maxSize int64, skipTLSVerify bool) *Fetcher {
	transport := &http.Transport{
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if skipTLSVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &Fetcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		maxSize: maxSize,
	}
}

// FetchToTemp downloads fileURL into a temporary file and returns its path.
// The caller owns the file and must remove it when done.
func (f *Fetcher) FetchToTemp(ctx context.Context, fileURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request for %s: %w", fileURL, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", fileURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download %s: status %d", fileURL, resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "porter-media-*"+fileExt(fileURL))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	written, err := io.Copy(tmp, io.LimitReader(resp.Body, f.maxSize+1))
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && written > f.maxSize {
		err = fmt.Errorf("file exceeds %d byte limit", f.maxSize)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to store %s: %w", fileURL, err)
	}

	return tmp.Name(), nil
}

// fileExt extracts the extension from a URL path, ignoring query strings.
func fileExt(fileURL string) string {
	parsed, err := url.Parse(fileURL)
	if err != nil {
		return ""
	}
	return path.Ext(parsed.Path)
}
