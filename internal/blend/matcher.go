// Package blend holds the two pure pieces of the pipeline: joining the liked
// catalog against the play-count data, and the cumulative shuffle that turns
// the matched set into the submitted track order.
package blend

import (
	"strings"

	"github.com/underplayed/api/internal/model"
)

// artistSeparator joins multi-artist names before key normalization. Both
// sides of the join must build keys the same way, so Key is the only place
// normalization happens.
const artistSeparator = ", "

// Key builds the normalized join key for an (artist, title) pair.
func Key(artist, title string) string {
	return strings.ToLower(strings.TrimSpace(artist + " " + title))
}

// TrackKey builds the join key for a catalog track, joining all artist names
// in their given order.
func TrackKey(t model.Track) string {
	return Key(strings.Join(t.ArtistNames, artistSeparator), t.Title)
}

// Match joins tracks against records by normalized key. A track with no
// matching record is dropped; the emitted subset keeps the input track order.
// Duplicate record keys resolve last-write-wins.
func Match(tracks []model.Track, records []model.PlayCountRecord) []model.MatchedTrack {
	counts := make(map[string]int, len(records))
	for _, r := range records {
		counts[Key(r.Artist, r.Title)] = r.Count
	}

	var matched []model.MatchedTrack
	for _, t := range tracks {
		count, ok := counts[TrackKey(t)]
		if !ok {
			continue
		}
		matched = append(matched, model.MatchedTrack{Track: t, PlayCount: count})
	}
	return matched
}
