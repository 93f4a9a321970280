// Package detector makes detector geometry descriptions available in a job
// work directory, downloading and unpacking them from mirrors when needed.
package detector

import (
	"archive/zip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/me/ilcdirac/pkg/model"
)

// Config contains mirror download settings.
type Config struct {
	// Mirrors are base URLs tried in order; "<mirror><model>.zip" is fetched.
	Mirrors []string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// MaxRetries is the number of attempts per mirror.
	MaxRetries int

	// RetryDelay is the initial delay between retries.
	RetryDelay time.Duration
}

// Fetcher downloads detector models.
type Fetcher struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// NewFetcher creates a Fetcher with the given configuration.
func NewFetcher(cfg Config, tlsCfg *tls.Config, logger *slog.Logger) *Fetcher {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig:     tlsCfg,
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Fetcher{
		config: cfg,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger,
	}
}

// ModelName strips the directory and a .zip suffix from a detector reference.
func ModelName(ref string) string {
	return strings.TrimSuffix(filepath.Base(ref), ".zip")
}

// Ensure makes the detector model available under dir and returns its
// directory. An existing directory or a local zip archive is used as is;
// otherwise the mirrors are tried in order and each failure is only logged
// until all of them are exhausted.
func (f *Fetcher) Ensure(ctx context.Context, ref, dir string) (string, error) {
	name := ModelName(ref)
	if name == "" || name == "." {
		return "", model.NewJobError(model.ErrMissingDetectorModel, "Ensure", "empty detector model", nil)
	}
	target := filepath.Join(dir, name)
	if fi, err := os.Stat(target); err == nil && fi.IsDir() {
		return target, nil
	}

	archive := filepath.Join(dir, name+".zip")
	if _, err := os.Stat(archive); err == nil {
		if err := Unzip(archive, dir); err != nil {
			return "", fmt.Errorf("unpack %s: %w", archive, err)
		}
		return target, nil
	}

	var failures []string
	for _, mirror := range f.config.Mirrors {
		url := mirror + name + ".zip"
		if err := f.fetch(ctx, url, archive); err != nil {
			f.logger.Warn("detector mirror failed", "url", url, "error", err)
			failures = append(failures, fmt.Sprintf("%s: %v", url, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		err := Unzip(archive, dir)
		os.Remove(archive)
		if err != nil {
			f.logger.Warn("detector archive unusable", "url", url, "error", err)
			failures = append(failures, fmt.Sprintf("%s: %v", url, err))
			continue
		}
		f.logger.Info("detector model downloaded", "model", name, "url", url)
		return target, nil
	}

	return "", model.NewJobError(model.ErrMissingDetectorModel, "Ensure",
		fmt.Sprintf("could not obtain detector model %s", name),
		map[string]any{"model": name, "mirrors": len(f.config.Mirrors), "failures": strings.Join(failures, "; ")})
}

// fetch downloads url to dest with retries.
func (f *Fetcher) fetch(ctx context.Context, url, dest string) error {
	var lastErr error
	maxRetries := f.config.MaxRetries
	if maxRetries == 0 {
		maxRetries = 1
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(f.retryDelay(attempt)):
			}
		}

		err := f.download(ctx, url, dest)
		if err == nil {
			return nil
		}
		lastErr = err

		// Don't retry on client errors (4xx).
		var he *httpError
		if errors.As(err, &he) && he.StatusCode >= 400 && he.StatusCode < 500 {
			return err
		}
	}
	return fmt.Errorf("download failed after %d attempts: %w", maxRetries, lastErr)
}

// download performs the actual HTTP GET.
func (f *Fetcher) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &httpError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmpPath := dest + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	_, err = io.Copy(out, resp.Body)
	if closeErr := out.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// retryDelay calculates the delay for a retry attempt using exponential backoff.
func (f *Fetcher) retryDelay(attempt int) time.Duration {
	delay := f.config.RetryDelay
	if delay == 0 {
		delay = time.Second
	}
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	return delay
}

// httpError represents an HTTP error response.
type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Unzip extracts archive into dir. Entries escaping dir are rejected.
func Unzip(archive, dir string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer r.Close()

	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	for _, zf := range r.File {
		dest := filepath.Join(root, zf.Name)
		if dest != root && !strings.HasPrefix(dest, root+string(os.PathSeparator)) {
			return fmt.Errorf("illegal path in archive: %s", zf.Name)
		}
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := extract(zf, dest); err != nil {
			return err
		}
	}
	return nil
}

func extract(zf *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, zf.Mode().Perm()|0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
