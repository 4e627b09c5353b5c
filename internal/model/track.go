package model

// Track is one liked song as returned by the catalog fetcher. Immutable once
// fetched; owned by a single blend run.
type Track struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	ArtistNames []string `json:"artistNames"`
	URI         string   `json:"uri"`
}

// PlayCountRecord is one (artist, title, count) row from the listen-count
// fetcher.
type PlayCountRecord struct {
	Artist string `json:"artist"`
	Title  string `json:"title"`
	Count  int    `json:"count"`
}

// MatchedTrack is a Track whose (artist, title) key had a recorded play count.
// Tracks without a match are dropped, never defaulted to zero.
type MatchedTrack struct {
	Track
	PlayCount int `json:"playCount"`
}

// Session holds the credentials one user established through the auth flow.
// Stored as an opaque JSON record in the status store.
type Session struct {
	ID           string `json:"id"`
	SpotifyUser  string `json:"spotifyUser"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresAt    int64  `json:"expiresAt,omitempty"` // unix seconds
	LastfmUser   string `json:"lastfmUser"`
}
