package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/underplayed/api/internal/model"
)

// TaskTypeBlend is the asynq task type for blend runs.
const TaskTypeBlend = "blend:process"

// ErrJobRunning is returned when a non-terminal job is dismissed.
var ErrJobRunning = errors.New("job still running")

// JobStore is the slice of the status store the blend service needs.
type JobStore interface {
	PutJob(ctx context.Context, job *model.Job, ttl time.Duration) error
	GetJob(ctx context.Context, processID string) (*model.Job, error)
	DeleteJob(ctx context.Context, processID string) error
}

// TaskEnqueuer abstracts asynq.Client for testing.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// BlendService owns the job snapshot protocol: it creates jobs, writes every
// stage transition as a full snapshot overwrite, and answers status queries.
// The worker drives EnterStage/CompleteJob/FailJob; nothing else mutates a
// job.
type BlendService struct {
	store     JobStore
	enqueuer  TaskEnqueuer
	retention time.Duration
}

func NewBlendService(store JobStore, enqueuer TaskEnqueuer, retention time.Duration) *BlendService {
	return &BlendService{
		store:     store,
		enqueuer:  enqueuer,
		retention: retention,
	}
}

// StartBlend creates the job in state pending and enqueues the pipeline task.
// The pipeline never retries on its own, so the task is enqueued with zero
// retries.
func (s *BlendService) StartBlend(ctx context.Context, sessionID, playlistName string) (*model.BlendStartResponse, error) {
	processID := uuid.New().String()

	job := &model.Job{
		ProcessID: processID,
		State:     model.StatePending,
		Message:   "Blend queued",
		UpdatedAt: time.Now().UnixMilli(),
	}
	if err := s.store.PutJob(ctx, job, 0); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	payload, err := json.Marshal(model.BlendJobPayload{
		ProcessID:    processID,
		SessionID:    sessionID,
		PlaylistName: playlistName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = s.enqueuer.Enqueue(asynq.NewTask(TaskTypeBlend, payload),
		asynq.Queue("blend"),
		asynq.MaxRetry(0),
		asynq.Retention(s.retention),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.BlendStartResponse{
		ProcessID: processID,
		State:     model.StatePending,
	}, nil
}

// GetStatus returns the latest snapshot for processID.
func (s *BlendService) GetStatus(ctx context.Context, processID string) (*model.BlendStatusResponse, error) {
	job, err := s.store.GetJob(ctx, processID)
	if err != nil {
		return nil, err
	}

	return &model.BlendStatusResponse{
		ProcessID:   job.ProcessID,
		State:       job.State,
		Message:     job.Message,
		Progress:    job.Progress,
		PlaylistURL: job.PlaylistURL,
		Error:       job.Error,
		UpdatedAt:   job.UpdatedAt,
	}, nil
}

// DismissJob removes a terminal job snapshot before its retention window
// expires. Dismissing a running job is refused; its snapshot is the only way
// to observe the detached pipeline.
func (s *BlendService) DismissJob(ctx context.Context, processID string) error {
	job, err := s.store.GetJob(ctx, processID)
	if err != nil {
		return err
	}
	if !job.State.Terminal() {
		return fmt.Errorf("job %s is still running: %w", processID, ErrJobRunning)
	}
	return s.store.DeleteJob(ctx, processID)
}

// EnterStage records that the job is now in the given stage, before the
// stage's work starts, so a poller observes in-progress rather than only
// done. Non-terminal snapshots carry no expiry; the next transition
// supersedes them.
func (s *BlendService) EnterStage(ctx context.Context, processID string, state model.JobState, message string, progress int) error {
	return s.store.PutJob(ctx, &model.Job{
		ProcessID: processID,
		State:     state,
		Message:   message,
		Progress:  progress,
		UpdatedAt: time.Now().UnixMilli(),
	}, 0)
}

// CompleteJob writes the terminal completed snapshot with the retention TTL.
func (s *BlendService) CompleteJob(ctx context.Context, processID, message, playlistURL string) error {
	return s.store.PutJob(ctx, &model.Job{
		ProcessID:   processID,
		State:       model.StateCompleted,
		Message:     message,
		Progress:    100,
		PlaylistURL: playlistURL,
		UpdatedAt:   time.Now().UnixMilli(),
	}, s.retention)
}

// FailJob writes the terminal failed snapshot with the retention TTL.
func (s *BlendService) FailJob(ctx context.Context, processID, errMsg string) error {
	return s.store.PutJob(ctx, &model.Job{
		ProcessID: processID,
		State:     model.StateFailed,
		Message:   "Blend failed",
		Error:     errMsg,
		UpdatedAt: time.Now().UnixMilli(),
	}, s.retention)
}
