package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/jobline/jobline"
	"github.com/jobline/jobline/id"
	"github.com/jobline/jobline/job"
)

// CreateJob persists a new job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	j.Revision = uuid.NewString()
	m := toJobModel(j)
	if _, err := s.jobs().InsertOne(ctx, m); err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("jobline/mongo: create %s: %w", m.ID, jobline.ErrJobAlreadyExists)
		}
		return fmt.Errorf("jobline/mongo: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var m jobModel
	err := s.jobs().FindOne(ctx, bson.M{"_id": jobID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("jobline/mongo: get %s: %w", jobID, jobline.ErrJobNotFound)
		}
		return nil, fmt.Errorf("jobline/mongo: get job: %w", err)
	}
	return fromJobModel(&m)
}

// ListJobs returns a page of jobs matching the filter, ordered by
// priority (highest first) and then recency.
func (s *Store) ListJobs(ctx context.Context, f job.Filter, p job.PageOpts) (*job.Page, error) {
	p = p.Normalize()
	filter := filterQuery(f)

	total, err := s.jobs().CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("jobline/mongo: list jobs count: %w", err)
	}

	findOpts := options.Find().
		SetSort(bson.D{
			{Key: "priority", Value: -1},
			{Key: "created_at", Value: -1},
		}).
		SetSkip(int64(p.Offset())).
		SetLimit(int64(p.Size))

	cur, err := s.jobs().Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("jobline/mongo: list jobs: %w", err)
	}
	defer cur.Close(ctx)

	var jobs []*job.Job
	for cur.Next(ctx) {
		var m jobModel
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("jobline/mongo: list decode: %w", err)
		}
		j, convErr := fromJobModel(&m)
		if convErr != nil {
			return nil, convErr
		}
		jobs = append(jobs, j)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("jobline/mongo: list cursor: %w", err)
	}

	return &job.Page{
		Jobs:     jobs,
		Total:    total,
		Page:     p.Page,
		PageSize: p.Size,
		Pages:    job.Pages(total, p.Size),
	}, nil
}

// CountJobs returns the number of jobs matching the filter.
func (s *Store) CountJobs(ctx context.Context, f job.Filter) (int64, error) {
	n, err := s.jobs().CountDocuments(ctx, filterQuery(f))
	if err != nil {
		return 0, fmt.Errorf("jobline/mongo: count jobs: %w", err)
	}
	return n, nil
}

// ApplyTransition performs the conditional write as a revision-guarded
// replace: the document must still carry the status and revision we read.
// A miss is disambiguated with a follow-up existence check.
func (s *Store) ApplyTransition(ctx context.Context, jobID id.JobID, tr job.Transition) (*job.Job, error) {
	current, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if current.Status != tr.From {
		return nil, fmt.Errorf("jobline/mongo: transition %s: expected %s, is %s: %w",
			jobID, tr.From, current.Status, jobline.ErrConflict)
	}

	// UpdatedAt must be strictly monotonic per job; the reconciler's
	// freshness rule depends on it.
	t := nextUpdateTime(now(), current.UpdatedAt)

	updated := current.Clone()
	job.Apply(updated, tr, t)
	updated.Revision = uuid.NewString()

	res, err := s.jobs().ReplaceOne(ctx,
		bson.M{
			"_id":      jobID.String(),
			"status":   string(tr.From),
			"revision": current.Revision,
		},
		toJobModel(updated),
	)
	if err != nil {
		return nil, fmt.Errorf("jobline/mongo: transition %s: %w", jobID, err)
	}
	if res.MatchedCount == 0 {
		// Someone else won the race between our read and write; find out
		// whether the job is gone or just moved on.
		n, cntErr := s.jobs().CountDocuments(ctx, bson.M{"_id": jobID.String()})
		if cntErr != nil {
			return nil, fmt.Errorf("jobline/mongo: transition %s: %w", jobID, cntErr)
		}
		if n == 0 {
			return nil, fmt.Errorf("jobline/mongo: transition %s: %w", jobID, jobline.ErrJobNotFound)
		}
		return nil, fmt.Errorf("jobline/mongo: transition %s: %w", jobID, jobline.ErrConflict)
	}

	return updated, nil
}

// nextUpdateTime picks the UpdatedAt for a transition. BSON DateTime
// round-trips at millisecond precision, so the value is truncated to
// milliseconds first; two writes inside the same wall millisecond would
// otherwise persist equal timestamps, and the second one is bumped a
// full millisecond past the previous value instead.
func nextUpdateTime(t, prev time.Time) time.Time {
	t = t.Truncate(time.Millisecond)
	if !t.After(prev) {
		t = prev.Truncate(time.Millisecond).Add(time.Millisecond)
	}
	return t
}

func filterQuery(f job.Filter) bson.M {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = string(f.Status)
	}
	if f.Type != "" {
		filter["type"] = string(f.Type)
	}
	return filter
}
