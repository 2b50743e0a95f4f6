// Package jisho provides a [dictionary.Lookuper] backed by the jisho.org word
// search API.
//
// The public API is unauthenticated and aggressively rate limited. The client
// applies a local token bucket (golang.org/x/time/rate) so that bursts of
// lookups are spread out, and maps HTTP 429 responses to
// [dictionary.ErrRateLimited] so retry decorators can back off.
//
// Usage:
//
//	d := jisho.New(jisho.WithMinInterval(200 * time.Millisecond))
//	cands, err := d.Lookup(ctx, "日本")
package jisho

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrWong99/kotoba/pkg/provider/dictionary"
)

const (
	defaultBaseURL     = "https://jisho.org"
	defaultMinInterval = 100 * time.Millisecond
	searchPath         = "/api/v1/search/words"
)

var _ dictionary.Lookuper = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMinInterval sets the minimum spacing between outgoing requests.
// Zero disables local rate limiting.
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) {
		if d <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// Client queries jisho.org.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New returns a Client with the given options applied.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(defaultMinInterval), 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type searchResponse struct {
	Meta struct {
		Status int `json:"status"`
	} `json:"meta"`
	Data []struct {
		Slug     string `json:"slug"`
		Japanese []struct {
			Word    string `json:"word"`
			Reading string `json:"reading"`
		} `json:"japanese"`
	} `json:"data"`
}

// Lookup implements [dictionary.Lookuper]. Every written form of every result
// becomes a candidate; kana-only forms use the reading as headword.
func (c *Client) Lookup(ctx context.Context, word string) ([]dictionary.Candidate, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("jisho: rate limiter: %w", err)
	}

	u := c.baseURL + searchPath + "?keyword=" + url.QueryEscape(word)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("jisho: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jisho: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("jisho: %q: %w", word, dictionary.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("jisho: unexpected status %d: %s", resp.StatusCode, body)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("jisho: decode response: %w", err)
	}

	var out []dictionary.Candidate
	for _, d := range sr.Data {
		for _, j := range d.Japanese {
			if j.Reading == "" {
				continue
			}
			head := j.Word
			if head == "" {
				head = j.Reading
			}
			out = append(out, dictionary.Candidate{Headword: head, Reading: j.Reading})
		}
	}
	return out, nil
}
