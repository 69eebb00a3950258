package rank

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/config"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/model"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/pkg/metrics"
)

// QueryOptions selects the search locale for one position lookup.
type QueryOptions struct {
	Country  string // gl parameter, default "us"
	Device   string // desktop / mobile / tablet, default "desktop"
	Language string // hl parameter, default "en"
}

func (o *QueryOptions) applyDefaults() {
	if o.Country == "" {
		o.Country = "us"
	}
	if o.Device == "" {
		o.Device = "desktop"
	}
	if o.Language == "" {
		o.Language = "en"
	}
}

// Provider resolves a keyword/listing pair to a search position.
type Provider interface {
	FetchPosition(ctx context.Context, keyword, targetURL string, opts QueryOptions) (*model.RankObservation, error)
}

// serpResponse is the subset of the search API response we consume.
// A non-empty top-level Error means the call failed even with HTTP 200.
type serpResponse struct {
	Error          string       `json:"error"`
	OrganicResults []serpResult `json:"organic_results"`
}

type serpResult struct {
	Position int    `json:"position"`
	Link     string `json:"link"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
}

// SerpClient fetches positions from a SerpAPI-compatible endpoint.
//
// Without an API key, or whenever a live call fails, it degrades to a
// deterministic demo observation instead of returning an error. Live
// calls are paced: a minimum interval is enforced between requests and
// concurrent callers are serialized against the external API.
type SerpClient struct {
	cfg        config.SearchConfig
	httpClient *http.Client
	logger     *slog.Logger

	mu       sync.Mutex
	lastCall time.Time
}

// NewSerpClient creates a search API client from config.
func NewSerpClient(cfg config.SearchConfig, logger *slog.Logger) *SerpClient {
	return &SerpClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// FetchPosition returns the 1-based position of targetURL in the
// organic results for keyword, or an observation with nil Position when
// the listing does not appear. It never fails on provider-side errors;
// those are logged and replaced by a demo observation.
func (c *SerpClient) FetchPosition(ctx context.Context, keyword, targetURL string, opts QueryOptions) (*model.RankObservation, error) {
	opts.applyDefaults()

	if c.cfg.APIKey == "" {
		metrics.ProviderFallbackTotal.WithLabelValues("no_api_key").Inc()
		return demoObservation(keyword, targetURL), nil
	}

	if err := c.pace(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	obs, err := c.fetchLive(ctx, keyword, targetURL, opts)
	metrics.RankCheckDuration.WithLabelValues("live").Observe(time.Since(start).Seconds())
	if err != nil {
		c.logger.Warn("live rank check failed, falling back to demo data",
			slog.String("keyword", keyword),
			slog.String("error", err.Error()))
		metrics.ProviderFallbackTotal.WithLabelValues("live_error").Inc()
		return demoObservation(keyword, targetURL), nil
	}
	return obs, nil
}

// pace blocks until the minimum spacing since the previous live call
// has elapsed. The lock is held across the wait so that concurrent
// callers reach the external API strictly serialized.
func (c *SerpClient) pace(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	wait := c.cfg.MinInterval - time.Since(c.lastCall)
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.lastCall = time.Now()
	return nil
}

func (c *SerpClient) fetchLive(ctx context.Context, keyword, targetURL string, opts QueryOptions) (*model.RankObservation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	params := url.Values{}
	params.Set("api_key", c.cfg.APIKey)
	params.Set("engine", c.cfg.Engine)
	params.Set("q", keyword)
	params.Set("gl", opts.Country)
	params.Set("hl", opts.Language)
	params.Set("device", opts.Device)
	params.Set("num", strconv.Itoa(c.cfg.ResultCount))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search api status %d: %s", resp.StatusCode, string(body))
	}

	var sr serpResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if sr.Error != "" {
		return nil, fmt.Errorf("search api error: %s", sr.Error)
	}

	return matchResults(sr.OrganicResults, targetURL), nil
}

// matchResults finds the first organic result whose URL matches the
// target and returns its observation. No match is a legitimate
// "not found" outcome, not an error.
func matchResults(results []serpResult, targetURL string) *model.RankObservation {
	target := normalizeURL(targetURL)
	now := time.Now()

	for i, r := range results {
		if !urlsMatch(normalizeURL(r.Link), target) {
			continue
		}
		pos := r.Position
		if pos <= 0 {
			pos = i + 1
		}
		return &model.RankObservation{
			Position:  &pos,
			URLFound:  r.Link,
			Title:     r.Title,
			Snippet:   r.Snippet,
			Mode:      "live",
			FetchedAt: now,
		}
	}

	return &model.RankObservation{
		Mode:      "live",
		FetchedAt: now,
	}
}

// normalizeURL strips protocol, www. prefix and trailing slash, and
// lowercases, so that query-string and scheme variants still compare.
func normalizeURL(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	s = strings.TrimSuffix(s, "/")
	return s
}

func urlsMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}
