package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jobline/jobline"
	"github.com/jobline/jobline/id"
	"github.com/jobline/jobline/job"
)

// CreateJob stores the job document and adds it to the ID index.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	j.Revision = uuid.NewString()
	jID := j.ID.String()

	payload, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("jobline/redis: marshal job: %w", err)
	}

	// Document and index land in one MULTI/EXEC so a failure cannot
	// leave a job invisible to ListJobs. SAdd is idempotent, so losing
	// SetNX just re-adds an ID already in the index.
	var created *goredis.BoolCmd
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		created = pipe.SetNX(ctx, jobKey(jID), payload, 0)
		pipe.SAdd(ctx, jobIDsKey, jID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("jobline/redis: create job: %w", err)
	}
	if !created.Val() {
		return fmt.Errorf("jobline/redis: create %s: %w", jID, jobline.ErrJobAlreadyExists)
	}

	s.publish(ctx, job.Change{ID: j.ID, Type: job.ChangeAdded, Job: j})
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.getJobByKey(ctx, jobKey(jobID.String()))
}

func (s *Store) getJobByKey(ctx context.Context, key string) (*job.Job, error) {
	payload, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, fmt.Errorf("jobline/redis: get %s: %w", key, jobline.ErrJobNotFound)
		}
		return nil, fmt.Errorf("jobline/redis: get job: %w", err)
	}

	var j job.Job
	if err := json.Unmarshal(payload, &j); err != nil {
		return nil, fmt.Errorf("jobline/redis: unmarshal job: %w", err)
	}
	return &j, nil
}

// ListJobs loads all documents via the ID index and filters, sorts, and
// pages in memory. Job counts here are per-user import queues, not a
// firehose, so the round trip of one SMEMBERS plus one MGET is fine.
func (s *Store) ListJobs(ctx context.Context, f job.Filter, p job.PageOpts) (*job.Page, error) {
	matched, err := s.loadMatching(ctx, f)
	if err != nil {
		return nil, err
	}

	sort.Slice(matched, func(i, k int) bool {
		if matched[i].Priority != matched[k].Priority {
			return matched[i].Priority > matched[k].Priority
		}
		return matched[i].CreatedAt.After(matched[k].CreatedAt)
	})

	p = p.Normalize()
	total := int64(len(matched))

	start := p.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + p.Size
	if end > len(matched) {
		end = len(matched)
	}

	return &job.Page{
		Jobs:     matched[start:end],
		Total:    total,
		Page:     p.Page,
		PageSize: p.Size,
		Pages:    job.Pages(total, p.Size),
	}, nil
}

// CountJobs returns the number of jobs matching the filter.
func (s *Store) CountJobs(ctx context.Context, f job.Filter) (int64, error) {
	matched, err := s.loadMatching(ctx, f)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (s *Store) loadMatching(ctx context.Context, f job.Filter) ([]*job.Job, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("jobline/redis: list ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, jID := range ids {
		keys[i] = jobKey(jID)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("jobline/redis: mget jobs: %w", err)
	}

	var matched []*job.Job
	for _, val := range values {
		payload, ok := val.(string)
		if !ok {
			// Index entry without a document; a concurrent delete.
			continue
		}
		var j job.Job
		if err := json.Unmarshal([]byte(payload), &j); err != nil {
			return nil, fmt.Errorf("jobline/redis: unmarshal job: %w", err)
		}
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if f.Type != "" && j.Type != f.Type {
			continue
		}
		matched = append(matched, &j)
	}
	return matched, nil
}

// ApplyTransition performs the conditional write inside a WATCH
// transaction: if the document changes between our read and the EXEC,
// the transaction aborts and the caller gets jobline.ErrConflict.
func (s *Store) ApplyTransition(ctx context.Context, jobID id.JobID, tr job.Transition) (*job.Job, error) {
	key := jobKey(jobID.String())
	var updated *job.Job

	txn := func(tx *goredis.Tx) error {
		payload, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return fmt.Errorf("jobline/redis: transition %s: %w", jobID, jobline.ErrJobNotFound)
			}
			return fmt.Errorf("jobline/redis: transition read: %w", err)
		}

		var current job.Job
		if err := json.Unmarshal(payload, &current); err != nil {
			return fmt.Errorf("jobline/redis: unmarshal job: %w", err)
		}
		if current.Status != tr.From {
			return fmt.Errorf("jobline/redis: transition %s: expected %s, is %s: %w",
				jobID, tr.From, current.Status, jobline.ErrConflict)
		}

		now := time.Now().UTC()
		// UpdatedAt must be strictly monotonic per job; the reconciler's
		// freshness rule depends on it.
		if !now.After(current.UpdatedAt) {
			now = current.UpdatedAt.Add(time.Microsecond)
		}

		next := current.Clone()
		job.Apply(next, tr, now)
		next.Revision = uuid.NewString()

		out, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("jobline/redis: marshal job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		if err != nil {
			return err
		}
		updated = next
		return nil
	}

	if err := s.client.Watch(ctx, txn, key); err != nil {
		if errors.Is(err, goredis.TxFailedErr) {
			return nil, fmt.Errorf("jobline/redis: transition %s: %w", jobID, jobline.ErrConflict)
		}
		return nil, err
	}

	s.publish(ctx, job.Change{ID: jobID, Type: job.ChangeModified, Job: updated})
	return updated, nil
}
