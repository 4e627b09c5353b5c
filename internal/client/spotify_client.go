package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/underplayed/api/internal/config"
	"github.com/underplayed/api/internal/model"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
)

// LikedSongsFetcher returns a user's full liked-songs catalog, accumulated
// across all pages.
type LikedSongsFetcher interface {
	AllLikedTracks(ctx context.Context, tok *oauth2.Token) ([]model.Track, error)
}

// PlaylistPublisher creates a playlist and appends URIs in bounded batches
// under a hard request budget. Running out of budget is truncation, not an
// error.
type PlaylistPublisher interface {
	CreatePlaylist(ctx context.Context, tok *oauth2.Token, userID, name, description string) (*Playlist, error)
	PublishTracks(ctx context.Context, tok *oauth2.Token, playlistID string, uris []string) (added int, truncated bool, err error)
}

// Authenticator covers the OAuth pieces of the Spotify client used by the
// login flow.
type Authenticator interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	CurrentUser(ctx context.Context, tok *oauth2.Token) (*SpotifyUser, error)
}

// SpotifyClient implements LikedSongsFetcher, PlaylistPublisher and
// Authenticator against the Spotify Web API.
type SpotifyClient struct {
	oauth       *oauth2.Config
	baseURL     string
	pageLimit   int
	batchSize   int
	maxRequests int
}

// SpotifyUser is the authenticated user's profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Playlist is a created playlist reference.
type Playlist struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

type spotifyArtist struct {
	Name string `json:"name"`
}

type spotifyTrack struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Artists []spotifyArtist `json:"artists"`
	URI     string          `json:"uri"`
}

type savedTrack struct {
	Track spotifyTrack `json:"track"`
}

type savedTracksPage struct {
	Items []savedTrack `json:"items"`
	Next  *string      `json:"next"`
}

// NewSpotifyClient creates a new Spotify API client.
func NewSpotifyClient(cfg *config.SpotifyConfig, playlistCfg *config.PlaylistConfig) *SpotifyClient {
	return &SpotifyClient{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				"user-library-read",
				"playlist-modify-public",
				"playlist-modify-private",
			},
			Endpoint: oauth2.Endpoint{
				AuthURL:  spotifyAuthURL,
				TokenURL: spotifyTokenURL,
			},
		},
		baseURL:     cfg.BaseURL,
		pageLimit:   cfg.PageLimit,
		batchSize:   playlistCfg.BatchSize,
		maxRequests: playlistCfg.MaxRequests,
	}
}

// IsConfigured reports whether OAuth credentials are present.
func (c *SpotifyClient) IsConfigured() bool {
	return c.oauth.ClientID != "" && c.oauth.ClientSecret != ""
}

// AuthCodeURL returns the authorization URL for user login.
func (c *SpotifyClient) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token.
func (c *SpotifyClient) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	return tok, nil
}

// CurrentUser retrieves the authenticated user's profile.
func (c *SpotifyClient) CurrentUser(ctx context.Context, tok *oauth2.Token) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := c.do(ctx, tok, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// AllLikedTracks pages through the user's saved tracks until the API signals
// no next page, accumulating the whole catalog.
func (c *SpotifyClient) AllLikedTracks(ctx context.Context, tok *oauth2.Token) ([]model.Track, error) {
	var tracks []model.Track
	offset := 0
	for {
		endpoint := fmt.Sprintf("/me/tracks?limit=%d&offset=%d", c.pageLimit, offset)
		var page savedTracksPage
		if err := c.do(ctx, tok, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, fmt.Errorf("failed to fetch liked tracks at offset %d: %w", offset, err)
		}

		for _, item := range page.Items {
			names := make([]string, 0, len(item.Track.Artists))
			for _, a := range item.Track.Artists {
				names = append(names, a.Name)
			}
			tracks = append(tracks, model.Track{
				ID:          item.Track.ID,
				Title:       item.Track.Name,
				ArtistNames: names,
				URI:         item.Track.URI,
			})
		}

		if page.Next == nil || len(page.Items) == 0 {
			return tracks, nil
		}
		offset += len(page.Items)
	}
}

// CreatePlaylist creates a private playlist for the user.
func (c *SpotifyClient) CreatePlaylist(ctx context.Context, tok *oauth2.Token, userID, name, description string) (*Playlist, error) {
	body := map[string]interface{}{
		"name":        name,
		"description": description,
		"public":      false,
	}
	endpoint := fmt.Sprintf("/users/%s/playlists", userID)
	var playlist Playlist
	if err := c.do(ctx, tok, http.MethodPost, endpoint, body, &playlist); err != nil {
		return nil, fmt.Errorf("failed to create playlist: %w", err)
	}
	return &playlist, nil
}

// PublishTracks appends uris in consecutive batches of at most batchSize,
// stopping once maxRequests add calls have been made even if URIs remain.
func (c *SpotifyClient) PublishTracks(ctx context.Context, tok *oauth2.Token, playlistID string, uris []string) (int, bool, error) {
	endpoint := fmt.Sprintf("/playlists/%s/tracks", playlistID)
	added := 0
	requests := 0
	for added < len(uris) {
		if requests >= c.maxRequests {
			return added, true, nil
		}
		end := added + c.batchSize
		if end > len(uris) {
			end = len(uris)
		}
		body := map[string]interface{}{"uris": uris[added:end]}
		if err := c.do(ctx, tok, http.MethodPost, endpoint, body, nil); err != nil {
			return added, false, fmt.Errorf("failed to add tracks batch: %w", err)
		}
		added = end
		requests++
	}
	return added, false, nil
}

// do performs an authenticated request against the Web API. The oauth2 client
// refreshes the token transparently when a refresh token is present.
func (c *SpotifyClient) do(ctx context.Context, tok *oauth2.Token, method, endpoint string, body, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := c.oauth.Client(ctx, tok)
	httpClient.Timeout = 30 * time.Second

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("spotify API error: status %d: %s", resp.StatusCode, snippet)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
