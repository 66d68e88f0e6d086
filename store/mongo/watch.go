package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/jobline/jobline"
	"github.com/jobline/jobline/id"
	"github.com/jobline/jobline/job"
)

// changeEvent is the slice of the change stream document we decode.
type changeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument *jobModel `bson:"fullDocument"`
}

// WatchJobs opens a change stream on the jobs collection. Update events
// are delivered with the full post-image via updateLookup, so consumers
// always get a complete snapshot. The channel closes when ctx is
// cancelled or the stream errors; callers resubscribe with backoff.
func (s *Store) WatchJobs(ctx context.Context) (<-chan job.Change, error) {
	pipeline := watchPipeline()
	csOpts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	cs, err := s.jobs().Watch(ctx, pipeline, csOpts)
	if err != nil {
		return nil, fmt.Errorf("jobline/mongo: watch: %w: %w", jobline.ErrUpstreamUnavailable, err)
	}

	out := make(chan job.Change, 64)
	go func() {
		defer close(out)
		defer cs.Close(context.WithoutCancel(ctx))

		for cs.Next(ctx) {
			var ev changeEvent
			if err := cs.Decode(&ev); err != nil {
				s.logger.Warn("change stream decode failed", "error", err)
				continue
			}

			c, ok := s.toChange(ev)
			if !ok {
				continue
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
		if err := cs.Err(); err != nil && ctx.Err() == nil {
			s.logger.Warn("change stream closed", "error", err)
		}
	}()

	return out, nil
}

func (s *Store) toChange(ev changeEvent) (job.Change, bool) {
	jobID, err := id.ParseJobID(ev.DocumentKey.ID)
	if err != nil {
		s.logger.Warn("change stream: foreign document key", "id", ev.DocumentKey.ID)
		return job.Change{}, false
	}

	switch ev.OperationType {
	case "delete":
		return job.Change{ID: jobID, Type: job.ChangeRemoved}, true
	case "insert":
		j, err := fromJobModel(ev.FullDocument)
		if err != nil {
			return job.Change{}, false
		}
		return job.Change{ID: jobID, Type: job.ChangeAdded, Job: j}, true
	case "update", "replace":
		if ev.FullDocument == nil {
			// The document was deleted between the update and the lookup;
			// the delete event follows.
			return job.Change{}, false
		}
		j, err := fromJobModel(ev.FullDocument)
		if err != nil {
			return job.Change{}, false
		}
		return job.Change{ID: jobID, Type: job.ChangeModified, Job: j}, true
	default:
		return job.Change{}, false
	}
}

func watchPipeline() any {
	return []bson.M{
		{"$match": bson.M{
			"operationType": bson.M{"$in": []string{"insert", "update", "replace", "delete"}},
		}},
	}
}
