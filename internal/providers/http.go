package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aristath/nightshift/internal/domain"
)

const (
	httpTimeout = 30 * time.Second
	userAgent   = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// getJSON issues a GET and decodes the JSON body into out, classifying
// failures into the domain error kinds.
func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("request failed: %w: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w: %v", domain.ErrTransient, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w: %v", domain.ErrDataInvalid, err)
	}
	return nil
}

// classifyStatus maps an HTTP status to a domain error kind, or nil for 2xx.
func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return fmt.Errorf("status 404: %w", domain.ErrTickerUnknown)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("status 429: %w", domain.ErrRateExceeded)
	case code >= 500:
		return fmt.Errorf("status %d: %w", code, domain.ErrTransient)
	default:
		return fmt.Errorf("status %d: %w", code, domain.ErrProviderDown)
	}
}
