package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/richroberts-prog/air-demand/internal/config"
	"github.com/richroberts-prog/air-demand/internal/model"
	"github.com/richroberts-prog/air-demand/internal/ratelimit"
	"github.com/richroberts-prog/air-demand/internal/retry"
)

// maxPayload caps how much of an HTTP export is read.
const maxPayload = 256 << 20

// FileSource reads an export written to disk by the scraper.
type FileSource struct {
	path string
}

var _ model.BatchSource = (*FileSource)(nil)

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) FetchBatch(_ context.Context) (model.Batch, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return model.Batch{}, fmt.Errorf("reading export %s: %w", s.path, err)
	}
	batch, err := Decode(data)
	if err != nil {
		return model.Batch{}, fmt.Errorf("export %s: %w", s.path, err)
	}
	return batch, nil
}

// HTTPSource downloads the export from the scraper's HTTP endpoint.
type HTTPSource struct {
	url    string
	client *http.Client
}

var _ model.BatchSource = (*HTTPSource)(nil)

func NewHTTPSource(url string, client *http.Client) *HTTPSource {
	return &HTTPSource{url: url, client: client}
}

func (s *HTTPSource) FetchBatch(ctx context.Context) (model.Batch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return model.Batch{}, fmt.Errorf("export fetch %s: %w", s.url, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return model.Batch{}, fmt.Errorf("export fetch %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.Batch{}, &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("export fetch %s: unexpected status %d", s.url, resp.StatusCode),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPayload))
	if err != nil {
		return model.Batch{}, fmt.Errorf("export fetch %s: reading body: %w", s.url, err)
	}
	batch, err := Decode(data)
	if err != nil {
		return model.Batch{}, fmt.Errorf("export fetch %s: %w", s.url, err)
	}
	return batch, nil
}

// parseRetryAfter parses the Retry-After header value into a duration.
// Supports seconds format (e.g. "120"). Returns zero if absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// Open builds the configured source with retries, spaced out by limiter.
// One fetch and its retries take a single limiter slot.
func Open(cfg config.SourceConfig, limiter *ratelimit.Limiter, logger *slog.Logger) (model.BatchSource, error) {
	var src model.BatchSource
	switch cfg.Type {
	case "file":
		src = NewFileSource(cfg.Path)
	case "http":
		src = NewHTTPSource(cfg.URL, &http.Client{Timeout: cfg.Timeout})
	default:
		return nil, fmt.Errorf("unknown source type %q", cfg.Type)
	}

	src = retry.NewRetrySource(src, cfg.Retries, cfg.RetryDelay, logger)
	if limiter != nil {
		src = ratelimit.NewRateLimitedSource(src, limiter, cfg.Type)
	}
	return src, nil
}
