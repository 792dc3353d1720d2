package frames

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pffise-create/PinhighAI-sub003/internal/config"
	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
)

// Fetcher reads the bytes behind one frame URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (models.Image, error)
}

// HTTPFetcher downloads frames over HTTP(S). Frame URLs are content-addressed
// and read-only, so transient failures are retried with exponential backoff.
type HTTPFetcher struct {
	client   *http.Client
	retries  int
	maxBytes int64
	// initialInterval is the first backoff delay; overridden in tests.
	initialInterval time.Duration
}

// defaultMaxBytes applies when no frame size limit is configured.
const defaultMaxBytes = 10 << 20

func NewHTTPFetcher(cfg config.FramesConfig) *HTTPFetcher {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if cfg.FetchRetries < 0 {
		cfg.FetchRetries = 0
	}
	return &HTTPFetcher{
		client:          &http.Client{Timeout: cfg.FetchTimeout},
		retries:         cfg.FetchRetries,
		maxBytes:        cfg.MaxBytes,
		initialInterval: 250 * time.Millisecond,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (models.Image, error) {
	var img models.Image

	op := func() error {
		var err error
		img, err = f.fetchOnce(ctx, url)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.initialInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.retries)), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		return models.Image{}, fmt.Errorf("%w: %s: %v", ErrFetch, url, err)
	}
	return img, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) (models.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.Image{}, backoff.Permanent(fmt.Errorf("building request: %w", err))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return models.Image{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return models.Image{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return models.Image{}, backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
	}

	limit := f.maxBytes
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return models.Image{}, fmt.Errorf("reading body: %w", err)
	}
	if int64(len(data)) > limit {
		return models.Image{}, backoff.Permanent(fmt.Errorf("frame exceeds %d bytes", limit))
	}
	if len(data) == 0 {
		return models.Image{}, backoff.Permanent(fmt.Errorf("empty frame body"))
	}

	return models.Image{MimeType: imageType(resp.Header.Get("Content-Type"), data), Data: data}, nil
}

// imageType prefers the declared content type and falls back to sniffing.
func imageType(header string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(header); err == nil && strings.HasPrefix(mt, "image/") {
		return mt
	}
	if sniffed := http.DetectContentType(data); strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	return "image/jpeg"
}
