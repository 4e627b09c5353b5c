package model

// JobState identifies the pipeline stage a blend job is in.
type JobState string

const (
	StatePending             JobState = "pending"
	StateFetchingLikedSongs  JobState = "fetching_liked_songs"
	StateFetchingListenCount JobState = "fetching_listen_counts"
	StateMatchingTracks      JobState = "matching_tracks"
	StateApplyingShuffle     JobState = "applying_shuffle"
	StateCreatingPlaylist    JobState = "creating_playlist"
	StateAddingTracks        JobState = "adding_tracks"
	StateCompleted           JobState = "completed"
	StateFailed              JobState = "failed"
)

// Terminal reports whether no further transitions can occur.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Job is the status snapshot of one blend run. The orchestrator overwrites the
// whole snapshot on every stage transition; it is never partially mutated.
type Job struct {
	ProcessID   string   `json:"processId"`
	State       JobState `json:"state"`
	Message     string   `json:"message"`
	Progress    int      `json:"progress"`
	PlaylistURL string   `json:"playlistUrl,omitempty"`
	Error       string   `json:"error,omitempty"`
	UpdatedAt   int64    `json:"updatedAt"` // unix millis
}

// BlendJobPayload is the asynq task payload for a blend run.
type BlendJobPayload struct {
	ProcessID    string `json:"processId"`
	SessionID    string `json:"sessionId"`
	PlaylistName string `json:"playlistName,omitempty"`
}

// BlendStartRequest is the body of POST /api/blend/start.
type BlendStartRequest struct {
	PlaylistName string `json:"playlistName" validate:"omitempty,max=100"`
}

// BlendStartResponse acknowledges an accepted blend run.
type BlendStartResponse struct {
	ProcessID string   `json:"processId"`
	State     JobState `json:"state"`
}

// BlendStatusResponse is the pollable view of a job snapshot.
type BlendStatusResponse struct {
	ProcessID   string   `json:"processId"`
	State       JobState `json:"state"`
	Message     string   `json:"message"`
	Progress    int      `json:"progress"`
	PlaylistURL string   `json:"playlistUrl,omitempty"`
	Error       string   `json:"error,omitempty"`
	UpdatedAt   int64    `json:"updatedAt"`
}
