package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentsignal/sourcing-cli/internal/model"
	"github.com/talentsignal/sourcing-cli/internal/resilience"
)

func testFilters() *model.JobFilters {
	return &model.JobFilters{
		Skills: []string{"go", "kubernetes"},
		Titles: []string{"platform engineer"},
	}
}

func TestSearchPaginates(t *testing.T) {
	total := 150
	var requests []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.RawQuery)
		offset := 0
		fmt.Sscanf(r.URL.Query().Get("offset"), "%d", &offset)
		limit := 0
		fmt.Sscanf(r.URL.Query().Get("limit"), "%d", &limit)

		resp := searchResponse{Total: total}
		for i := offset; i < offset+limit && i < total; i++ {
			resp.Results = append(resp.Results, searchResult{
				ProfileURL: fmt.Sprintf("https://directory.example/p%d", i),
				FullName:   fmt.Sprintf("Person %d", i),
			})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c := NewClient("key", WithBaseURL(server.URL))
	identities, err := c.Search(context.Background(), testFilters(), 150)
	require.NoError(t, err)
	assert.Len(t, identities, 150)
	assert.Equal(t, "https://directory.example/p0", identities[0].ProfileURL)
	assert.Equal(t, "https://directory.example/p149", identities[149].ProfileURL)
	assert.Len(t, requests, 2)
}

func TestSearchStopsAtTotal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := searchResponse{
			Total: 3,
			Results: []searchResult{
				{ProfileURL: "https://directory.example/p0"},
				{ProfileURL: "https://directory.example/p1"},
				{ProfileURL: "https://directory.example/p2"},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c := NewClient("key", WithBaseURL(server.URL))
	identities, err := c.Search(context.Background(), testFilters(), 50)
	require.NoError(t, err)
	assert.Len(t, identities, 3)
}

func TestSearchEmptyFilters(t *testing.T) {
	c := NewClient("key")
	_, err := c.Search(context.Background(), &model.JobFilters{}, 50)
	assert.Error(t, err)
}

func TestSearchRateLimitedWithRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewClient("key", WithBaseURL(server.URL))
	_, err := c.Search(context.Background(), testFilters(), 10)

	rle := resilience.AsRateLimit(err)
	require.NotNil(t, rle)
	assert.Equal(t, resilience.CapabilityDirectorySearch, rle.Capability)
	assert.WithinDuration(t, time.Now().Add(120*time.Second), rle.ResetAt, 5*time.Second)
}

func TestFetchRateLimitedIsEnrichCapability(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Reset", fmt.Sprint(time.Now().Add(time.Minute).Unix()))
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewClient("key", WithBaseURL(server.URL))
	_, err := c.Fetch(context.Background(), []model.Identity{{ProfileURL: "https://directory.example/p0"}})

	rle := resilience.AsRateLimit(err)
	require.NotNil(t, rle)
	assert.Equal(t, resilience.CapabilityDirectoryEnrich, rle.Capability)
}

func TestSearchServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient("key", WithBaseURL(server.URL))
	_, err := c.Search(context.Background(), testFilters(), 10)

	assert.True(t, resilience.IsTransient(err))
	assert.False(t, resilience.IsRateLimit(err))
}

func TestFetchSkipsGoneProfiles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("url") == "https://directory.example/gone" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(profileResponse{
			ProfileURL: r.URL.Query().Get("url"),
			Profile:    json.RawMessage(`{"name":"someone"}`),
		})
	}))
	defer server.Close()

	c := NewClient("key", WithBaseURL(server.URL))
	profiles, err := c.Fetch(context.Background(), []model.Identity{
		{ProfileURL: "https://directory.example/p0"},
		{ProfileURL: "https://directory.example/gone"},
		{ProfileURL: "https://directory.example/p1"},
	})
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "https://directory.example/p0", profiles[0].ProfileURL)
	assert.Equal(t, "https://directory.example/p1", profiles[1].ProfileURL)
	assert.JSONEq(t, `{"name":"someone"}`, string(profiles[0].Payload))
	assert.False(t, profiles[0].FetchedAt.IsZero())
}

func TestSearchSendsAuthAndFilters(t *testing.T) {
	var gotAuth, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("q")
		json.NewEncoder(w).Encode(searchResponse{})
	}))
	defer server.Close()

	c := NewClient("secret-key", WithBaseURL(server.URL))
	_, err := c.Search(context.Background(), &model.JobFilters{
		Skills:    []string{"go"},
		Titles:    []string{"backend engineer"},
		Seniority: "senior",
	}, 10)
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, "senior backend engineer go", gotQuery)
}
