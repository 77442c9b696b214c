// Package directory provides a client for the people-directory API used
// to discover and enrich candidate profiles.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/talentsignal/sourcing-cli/internal/model"
	"github.com/talentsignal/sourcing-cli/internal/resilience"
)

// Client defines the directory operations the pipeline depends on.
type Client interface {
	// Search returns up to max identities matching the structured filters,
	// in the directory's relevance order.
	Search(ctx context.Context, filters *model.JobFilters, max int) ([]model.Identity, error)
	// Fetch returns the raw profile payload for each identity. The result
	// preserves input order; identities the directory no longer knows are
	// omitted.
	Fetch(ctx context.Context, identities []model.Identity) ([]model.RawProfile, error)
}

// searchResponse is the parsed directory search response.
type searchResponse struct {
	Total   int            `json:"total"`
	Results []searchResult `json:"results"`
}

type searchResult struct {
	ProfileURL string `json:"profile_url"`
	FullName   string `json:"full_name"`
	Headline   string `json:"headline"`
	Location   string `json:"location"`
}

// profileResponse is the parsed profile detail response. Payload stays
// raw JSON; parsing happens in its own pipeline stage.
type profileResponse struct {
	ProfileURL string          `json:"profile_url"`
	Profile    json.RawMessage `json:"profile"`
}

// Option configures the directory client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a directory API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.talentdirectory.io/v1",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do executes a request and classifies failures. 429 becomes a typed
// RateLimitError carrying the server's reset hint so the pipeline can
// pause the whole job instead of burning retries; retryable 5xx becomes
// a TransientError for the caller's retry policy.
func (c *httpClient) do(ctx context.Context, req *http.Request, capability resilience.Capability) ([]byte, int, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, eris.Wrap(err, "directory: read response body")
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, resp.StatusCode, resilience.NewRateLimitError(capability, parseResetAt(resp.Header))
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resp.StatusCode, resilience.NewTransientError(
			eris.Errorf("directory: status %d: %s", resp.StatusCode, truncate(body)), resp.StatusCode)
	}
	return body, resp.StatusCode, nil
}

// parseResetAt reads the reset hint from Retry-After (seconds) or
// X-RateLimit-Reset (unix timestamp). Zero time means "no hint"; the
// error constructor applies its default.
func parseResetAt(h http.Header) time.Time {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Now().Add(time.Duration(secs) * time.Second)
		}
	}
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil && unix > 0 {
			return time.Unix(unix, 0)
		}
	}
	return time.Time{}
}

func truncate(body []byte) string {
	const max = 200
	s := string(body)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

const searchPageSize = 100

func (c *httpClient) Search(ctx context.Context, filters *model.JobFilters, max int) ([]model.Identity, error) {
	if filters.IsZero() {
		return nil, eris.New("directory: empty search filters")
	}
	if max <= 0 {
		max = searchPageSize
	}

	var out []model.Identity
	for offset := 0; len(out) < max; offset += searchPageSize {
		page, total, err := c.searchPage(ctx, filters, offset, min(searchPageSize, max-len(out)))
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) == 0 || offset+len(page) >= total {
			break
		}
	}
	if len(out) > max {
		out = out[:max]
	}
	return out, nil
}

func (c *httpClient) searchPage(ctx context.Context, filters *model.JobFilters, offset, limit int) ([]model.Identity, int, error) {
	q := url.Values{}
	q.Set("q", filters.Query())
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	if len(filters.Locations) > 0 {
		q.Set("locations", strings.Join(filters.Locations, ","))
	}
	if len(filters.Industries) > 0 {
		q.Set("industries", strings.Join(filters.Industries, ","))
	}
	if filters.MinYears > 0 {
		q.Set("min_years", strconv.Itoa(filters.MinYears))
	}
	if filters.RemoteOnly {
		q.Set("remote", "true")
	}

	reqURL := fmt.Sprintf("%s/people/search?%s", c.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, eris.Wrap(err, "directory: create search request")
	}

	body, status, err := c.do(ctx, req, resilience.CapabilityDirectorySearch)
	if err != nil {
		return nil, 0, err
	}
	if status != http.StatusOK {
		return nil, 0, eris.Errorf("directory: search status %d: %s", status, truncate(body))
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, 0, eris.Wrap(err, "directory: unmarshal search response")
	}

	identities := make([]model.Identity, 0, len(result.Results))
	for _, r := range result.Results {
		if r.ProfileURL == "" {
			continue
		}
		identities = append(identities, model.Identity{
			ProfileURL: r.ProfileURL,
			FullName:   r.FullName,
			Headline:   r.Headline,
			Location:   r.Location,
		})
	}
	return identities, result.Total, nil
}

func (c *httpClient) Fetch(ctx context.Context, identities []model.Identity) ([]model.RawProfile, error) {
	out := make([]model.RawProfile, 0, len(identities))
	for _, ident := range identities {
		profile, err := c.fetchOne(ctx, ident.ProfileURL)
		if err != nil {
			return nil, err
		}
		if profile == nil {
			continue // gone from the directory
		}
		out = append(out, *profile)
	}
	return out, nil
}

func (c *httpClient) fetchOne(ctx context.Context, profileURL string) (*model.RawProfile, error) {
	reqURL := fmt.Sprintf("%s/people/profile?url=%s", c.baseURL, url.QueryEscape(profileURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "directory: create profile request")
	}

	body, status, err := c.do(ctx, req, resilience.CapabilityDirectoryEnrich)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, eris.Errorf("directory: profile status %d: %s", status, truncate(body))
	}

	var result profileResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "directory: unmarshal profile response")
	}
	if result.ProfileURL == "" {
		result.ProfileURL = profileURL
	}
	return &model.RawProfile{
		ProfileURL: result.ProfileURL,
		Payload:    result.Profile,
		FetchedAt:  time.Now().UTC(),
	}, nil
}
