package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/oauth2"

	"github.com/underplayed/api/internal/blend"
	"github.com/underplayed/api/internal/client"
	"github.com/underplayed/api/internal/model"
	"github.com/underplayed/api/internal/service"
)

// SessionStore is the slice of the status store the worker needs to resolve a
// job's credentials.
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
}

// BlendWorker runs one blend job end to end: fetch both datasets, match,
// shuffle, publish. Stages are strictly sequential; a snapshot is written on
// entry to every stage, a failure anywhere short-circuits straight to a
// single failed snapshot, and nothing is rolled back (a playlist created
// before a later failure stays on Spotify).
type BlendWorker struct {
	blendService *service.BlendService
	sessions     SessionStore
	catalog      client.LikedSongsFetcher
	listenCounts client.ListenCountFetcher
	publisher    client.PlaylistPublisher
	engine       *blend.Engine
	namePrefix   string
}

// NewBlendWorker creates a new blend worker.
func NewBlendWorker(
	blendService *service.BlendService,
	sessions SessionStore,
	catalog client.LikedSongsFetcher,
	listenCounts client.ListenCountFetcher,
	publisher client.PlaylistPublisher,
	engine *blend.Engine,
	namePrefix string,
) *BlendWorker {
	return &BlendWorker{
		blendService: blendService,
		sessions:     sessions,
		catalog:      catalog,
		listenCounts: listenCounts,
		publisher:    publisher,
		engine:       engine,
		namePrefix:   namePrefix,
	}
}

// ProcessTask handles one blend run. Errors are recorded in the job snapshot
// and wrapped with asynq.SkipRetry: the pipeline never retries on its own.
func (w *BlendWorker) ProcessTask(ctx context.Context, t *asynq.Task) (err error) {
	var payload model.BlendJobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	processID := payload.ProcessID
	log.Printf("Starting blend job: %s", processID)

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Blend job %s panicked: %v", processID, r)
			w.failJob(ctx, processID, fmt.Sprintf("Unexpected error: %v", r))
			err = fmt.Errorf("blend job panicked: %v: %w", r, asynq.SkipRetry)
		}
	}()

	sess, sessErr := w.sessions.GetSession(ctx, payload.SessionID)
	if sessErr != nil {
		w.failJob(ctx, processID, "Session not found or expired")
		return fmt.Errorf("failed to load session: %v: %w", sessErr, asynq.SkipRetry)
	}

	tok := &oauth2.Token{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
	}
	if sess.ExpiresAt > 0 {
		tok.Expiry = time.Unix(sess.ExpiresAt, 0)
	}

	// Stage 1: liked-songs catalog. Completeness is required here; any fetch
	// error fails the job.
	w.enterStage(ctx, processID, model.StateFetchingLikedSongs, "Fetching liked songs from Spotify", 5)
	tracks, fetchErr := w.catalog.AllLikedTracks(ctx, tok)
	if fetchErr != nil {
		w.failJob(ctx, processID, fmt.Sprintf("Could not fetch liked songs: %v", fetchErr))
		return fmt.Errorf("liked songs fetch failed: %v: %w", fetchErr, asynq.SkipRetry)
	}
	if len(tracks) == 0 {
		log.Printf("Blend job %s: empty liked catalog", processID)
		w.completeJob(ctx, processID, "No liked songs found, nothing to blend", "")
		return nil
	}

	// Stage 2: listen counts. Best-effort: a page failure keeps the pages
	// fetched so far and the pipeline continues with partial data.
	w.enterStage(ctx, processID, model.StateFetchingListenCount, "Fetching play counts from Last.fm", 15)
	records, countErr := w.listenCounts.AllTopTracks(ctx, sess.LastfmUser)
	partialCounts := countErr != nil
	if partialCounts {
		log.Printf("Blend job %s: listen counts incomplete: %v", processID, countErr)
	}

	// Stage 3: match.
	w.enterStage(ctx, processID, model.StateMatchingTracks, "Matching tracks against play counts", 35)
	matched := blend.Match(tracks, records)
	if len(matched) == 0 {
		log.Printf("Blend job %s: no tracks with recorded play counts", processID)
		msg := "No liked songs have recorded play counts, no playlist created"
		if partialCounts {
			msg += "; play count data was incomplete"
		}
		w.completeJob(ctx, processID, msg, "")
		return nil
	}

	// Stage 4: cumulative shuffle.
	w.enterStage(ctx, processID, model.StateApplyingShuffle, "Building the weighted track order", 55)
	uris := w.engine.Sequence(matched)

	// Stage 5: create the playlist.
	w.enterStage(ctx, processID, model.StateCreatingPlaylist, "Creating playlist on Spotify", 70)
	name := payload.PlaylistName
	if name == "" {
		name = fmt.Sprintf("%s %s", w.namePrefix, time.Now().Format("2006-01-02"))
	}
	description := fmt.Sprintf("Blend of %d liked songs with play counts, least played first and most often", len(matched))
	playlist, createErr := w.publisher.CreatePlaylist(ctx, tok, sess.SpotifyUser, name, description)
	if createErr != nil {
		w.failJob(ctx, processID, fmt.Sprintf("Could not create playlist: %v", createErr))
		return fmt.Errorf("playlist creation failed: %v: %w", createErr, asynq.SkipRetry)
	}

	// Stage 6: append tracks in batches under the request budget.
	w.enterStage(ctx, processID, model.StateAddingTracks, "Adding tracks to the playlist", 85)
	added, truncated, pubErr := w.publisher.PublishTracks(ctx, tok, playlist.ID, uris)
	if pubErr != nil {
		w.failJob(ctx, processID, fmt.Sprintf("Could not add tracks: %v", pubErr))
		return fmt.Errorf("adding tracks failed: %v: %w", pubErr, asynq.SkipRetry)
	}

	message := fmt.Sprintf("Playlist created with %d tracks", added)
	if truncated {
		log.Printf("Blend job %s: truncated at %d of %d tracks", processID, added, len(uris))
		message = fmt.Sprintf("Playlist created with %d of %d tracks (request budget reached)", added, len(uris))
	}
	if partialCounts {
		message += "; play count data was incomplete"
	}

	w.completeJob(ctx, processID, message, playlist.ExternalURLs.Spotify)
	log.Printf("Blend job %s completed: %d tracks", processID, added)
	return nil
}

func (w *BlendWorker) enterStage(ctx context.Context, processID string, state model.JobState, message string, progress int) {
	if err := w.blendService.EnterStage(ctx, processID, state, message, progress); err != nil {
		log.Printf("Failed to write %s snapshot for job %s: %v", state, processID, err)
	}
}

func (w *BlendWorker) completeJob(ctx context.Context, processID, message, playlistURL string) {
	if err := w.blendService.CompleteJob(ctx, processID, message, playlistURL); err != nil {
		log.Printf("Failed to mark job %s as completed: %v", processID, err)
	}
}

func (w *BlendWorker) failJob(ctx context.Context, processID, errMsg string) {
	if err := w.blendService.FailJob(ctx, processID, errMsg); err != nil {
		log.Printf("Failed to mark job %s as failed: %v", processID, err)
	}
}
