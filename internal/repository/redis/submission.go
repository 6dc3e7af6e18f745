// Package redis persists short-lived operational records.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"hermes/internal/domain/trade"
	"hermes/internal/metrics"
	"hermes/pkg/errors"
)

const (
	submissionKeyPrefix = "submission:"
	submissionIndexKey  = "submissions:recent"

	// submissionTTL keeps records around long enough for support
	// questions without growing unbounded
	submissionTTL = 30 * 24 * time.Hour

	// maxIndexed bounds the recent-submissions index
	maxIndexed = 1000
)

// SubmissionRepository stores submission records in Redis
type SubmissionRepository struct {
	client *redis.Client
}

// NewSubmissionRepository creates a new submission repository
func NewSubmissionRepository(client *redis.Client) *SubmissionRepository {
	return &SubmissionRepository{
		client: client,
	}
}

// Save stores a submission record and indexes it as most recent
func (r *SubmissionRepository) Save(ctx context.Context, sub *trade.Submission) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal submission %s", sub.ID)
	}

	key := r.getKey(sub.ID)
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key, data, submissionTTL)
	pipe.LPush(ctx, submissionIndexKey, sub.ID.String())
	pipe.LTrim(ctx, submissionIndexKey, 0, maxIndexed-1)
	_, err = pipe.Exec(ctx)

	metrics.RecordDBQuery("redis", "save_submission", err)
	if err != nil {
		return errors.Wrapf(err, "failed to save submission %s", sub.ID)
	}
	return nil
}

// Get retrieves a submission by ID
func (r *SubmissionRepository) Get(ctx context.Context, id uuid.UUID) (*trade.Submission, error) {
	data, err := r.client.Get(ctx, r.getKey(id)).Result()
	if err == redis.Nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "submission %s", id)
	}
	if err != nil {
		metrics.RecordDBQuery("redis", "get_submission", err)
		return nil, errors.Wrapf(err, "failed to get submission %s", id)
	}
	metrics.RecordDBQuery("redis", "get_submission", nil)

	var sub trade.Submission
	if err := json.Unmarshal([]byte(data), &sub); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal submission %s", id)
	}
	return &sub, nil
}

// ListRecent returns up to limit submissions, newest first. Records
// whose detail key expired are skipped.
func (r *SubmissionRepository) ListRecent(ctx context.Context, limit int64) ([]*trade.Submission, error) {
	if limit <= 0 {
		limit = 50
	}

	ids, err := r.client.LRange(ctx, submissionIndexKey, 0, limit-1).Result()
	metrics.RecordDBQuery("redis", "list_submissions", err)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read submission index")
	}

	subs := make([]*trade.Submission, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		sub, err := r.Get(ctx, id)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				continue
			}
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (r *SubmissionRepository) getKey(id uuid.UUID) string {
	return fmt.Sprintf("%s%s", submissionKeyPrefix, id)
}
