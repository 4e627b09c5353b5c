// Package store wraps Redis as the durable key-value store for job status
// snapshots and session records.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/underplayed/api/internal/model"
)

// ErrNotFound is returned when a key is absent or its value has expired.
var ErrNotFound = errors.New("not found")

// StatusStore persists JSON records keyed by process or session ID. Each blend
// run owns its own job key exclusively, so no cross-key coordination is
// needed.
type StatusStore struct {
	redis *redis.Client
}

func NewStatusStore(redisClient *redis.Client) *StatusStore {
	return &StatusStore{redis: redisClient}
}

func jobKey(processID string) string     { return fmt.Sprintf("blend:job:%s", processID) }
func sessionKey(sessionID string) string { return fmt.Sprintf("session:%s", sessionID) }
func stateKey(nonce string) string       { return fmt.Sprintf("oauth:state:%s", nonce) }

// PutJob writes the full snapshot for job.ProcessID. A zero ttl leaves the key
// unexpired; terminal snapshots are written with the retention window.
func (s *StatusStore) PutJob(ctx context.Context, job *model.Job, ttl time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, jobKey(job.ProcessID), data, ttl).Err()
}

// GetJob returns the latest snapshot for processID, or ErrNotFound.
func (s *StatusStore) GetJob(ctx context.Context, processID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKey(processID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *StatusStore) DeleteJob(ctx context.Context, processID string) error {
	return s.redis.Del(ctx, jobKey(processID)).Err()
}

// PutSession stores the credentials record established by the auth flow.
func (s *StatusStore) PutSession(ctx context.Context, sess *model.Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, sessionKey(sess.ID), data, ttl).Err()
}

func (s *StatusStore) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	data, err := s.redis.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *StatusStore) DeleteSession(ctx context.Context, sessionID string) error {
	return s.redis.Del(ctx, sessionKey(sessionID)).Err()
}

// PutAuthState records an OAuth state nonce with its pending Last.fm username.
func (s *StatusStore) PutAuthState(ctx context.Context, nonce, lastfmUser string, ttl time.Duration) error {
	return s.redis.Set(ctx, stateKey(nonce), lastfmUser, ttl).Err()
}

// TakeAuthState consumes a state nonce, returning the Last.fm username it was
// stored with. GETDEL makes the take atomic: a nonce can only be taken once
// even under concurrent callbacks.
func (s *StatusStore) TakeAuthState(ctx context.Context, nonce string) (string, error) {
	val, err := s.redis.GetDel(ctx, stateKey(nonce)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", err
	}
	return val, nil
}
