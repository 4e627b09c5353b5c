package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/underplayed/api/internal/config"
	"github.com/underplayed/api/internal/model"
)

// ListenCountFetcher returns a user's per-track play counts. Completeness is
// best-effort: a page failure ends pagination and the pages fetched so far are
// returned alongside the error.
type ListenCountFetcher interface {
	AllTopTracks(ctx context.Context, user string) ([]model.PlayCountRecord, error)
}

// LastfmClient implements ListenCountFetcher against the Last.fm API.
type LastfmClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	pageLimit  int
	limiter    *rate.Limiter
}

type lastfmArtist struct {
	Name string `json:"name"`
}

type lastfmTrack struct {
	Name      string       `json:"name"`
	PlayCount string       `json:"playcount"`
	Artist    lastfmArtist `json:"artist"`
}

type topTracksAttr struct {
	Page       string `json:"page"`
	TotalPages string `json:"totalPages"`
}

type topTracksPage struct {
	TopTracks struct {
		Track []lastfmTrack `json:"track"`
		Attr  topTracksAttr `json:"@attr"`
	} `json:"toptracks"`
}

// NewLastfmClient creates a new Last.fm API client. Page requests are spaced
// by the configured delay to stay inside the service's rate limits.
func NewLastfmClient(cfg *config.LastfmConfig) *LastfmClient {
	delay := time.Duration(cfg.PageDelayMS) * time.Millisecond
	if delay <= 0 {
		delay = 250 * time.Millisecond
	}
	return &LastfmClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		pageLimit: cfg.PageLimit,
		limiter:   rate.NewLimiter(rate.Every(delay), 1),
	}
}

// IsConfigured reports whether an API key is present.
func (c *LastfmClient) IsConfigured() bool {
	return c.apiKey != ""
}

// AllTopTracks pages through user.getTopTracks until the last page. On a page
// failure it stops paginating and returns what it has together with the
// error; the caller decides whether partial data is acceptable.
func (c *LastfmClient) AllTopTracks(ctx context.Context, user string) ([]model.PlayCountRecord, error) {
	var records []model.PlayCountRecord
	page := 1
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return records, err
		}

		result, err := c.topTracksPage(ctx, user, page)
		if err != nil {
			return records, fmt.Errorf("failed to fetch top tracks page %d: %w", page, err)
		}

		for _, t := range result.TopTracks.Track {
			count, err := strconv.Atoi(t.PlayCount)
			if err != nil {
				log.Printf("Skipping track with unparseable playcount %q: %s", t.PlayCount, t.Name)
				continue
			}
			records = append(records, model.PlayCountRecord{
				Artist: t.Artist.Name,
				Title:  t.Name,
				Count:  count,
			})
		}

		totalPages, err := strconv.Atoi(result.TopTracks.Attr.TotalPages)
		if err != nil || page >= totalPages || len(result.TopTracks.Track) == 0 {
			return records, nil
		}
		page++
	}
}

func (c *LastfmClient) topTracksPage(ctx context.Context, user string, page int) (*topTracksPage, error) {
	params := url.Values{}
	params.Set("method", "user.gettoptracks")
	params.Set("user", user)
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")
	params.Set("limit", strconv.Itoa(c.pageLimit))
	params.Set("page", strconv.Itoa(page))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("last.fm API error: status %d: %s", resp.StatusCode, snippet)
	}

	var result topTracksPage
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}
