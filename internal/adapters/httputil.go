package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Rajchodisetti/marketgate/internal/observ"
)

// maxBodyBytes bounds how much of a provider response is read.
const maxBodyBytes = 4 << 20

// httpFetcher is the shared GET path of the HTTP providers: pacing through a
// token bucket, one request, status classification. The bucket holds a full
// minute of requests so a burst the gateway budget admits is never serialized.
type httpFetcher struct {
	provider    string
	baseURL     string
	client      *http.Client
	rateLimiter *rate.Limiter
}

func newHTTPFetcher(provider, baseURL string, timeout time.Duration, perMinute int) *httpFetcher {
	if perMinute <= 0 {
		perMinute = 8
	}
	return &httpFetcher{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60), perMinute),
	}
}

// get issues GET baseURL+path?params and returns the body of a 2xx response.
func (f *httpFetcher) get(ctx context.Context, symbol, path string, params url.Values) ([]byte, error) {
	if err := f.rateLimiter.Wait(ctx); err != nil {
		// the upstream was never contacted
		return nil, fmt.Errorf("%s %s: %w: %w", f.provider, symbol, ErrPacingWait, err)
	}

	requestURL := f.baseURL + path
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, NewBadRequestError(f.provider, symbol, 0, "failed to create request: "+err.Error())
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := f.client.Do(req)
	observ.RecordDuration("upstream_latency", time.Since(start), map[string]string{"provider": f.provider})
	if err != nil {
		return nil, classifyTransport(f.provider, symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classifyTransport(f.provider, symbol, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classifyStatus(f.provider, symbol, resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// marketLocation is the exchange timezone provider timestamps are expressed in.
func marketLocation() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}
