package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/corpix/uarand"
)

// maxPDFBytes caps a single download; registrar forms are a few hundred KB.
const maxPDFBytes = 32 << 20

const (
	defaultFetchRetries = 2
	defaultRetryDelay   = time.Second
)

// Fetcher downloads source PDFs. It sends a random browser user agent
// because the registrar site rejects the default Go client.
type Fetcher struct {
	httpClient *http.Client
	userAgent  func() string
	maxRetries int
	retryDelay time.Duration
}

// NewFetcher creates a fetcher whose requests time out after timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent:  uarand.GetRandom,
		maxRetries: defaultFetchRetries,
		retryDelay: defaultRetryDelay,
	}
}

// Fetch returns the body of url. Network errors, 429 and 5xx are retried
// with backoff; other non-2xx responses fail immediately.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	err := retryWithBackoff(ctx, f.maxRetries, f.retryDelay, func() error {
		var err error
		data, err = f.fetchOnce(ctx, url)
		return err
	})
	return data, err
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent())
	req.Header.Set("Accept", "application/pdf,*/*;q=0.8")
	req.Header.Set("Accept-Language", "th-TH,th;q=0.9,en-US;q=0.8,en;q=0.7")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("unexpected status for %s: %d", url, resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, err
		}
		return nil, permanent(err)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxPDFBytes {
		return nil, permanent(fmt.Errorf("%s exceeds %d bytes", url, maxPDFBytes))
	}
	return data, nil
}
