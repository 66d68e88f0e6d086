package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jobline/jobline"
	"github.com/jobline/jobline/id"
	"github.com/jobline/jobline/job"
)

// changePayload is the wire form of a change event on the pub/sub
// channel. Pub/sub delivery is best-effort: a subscriber that connects
// late or drops misses events, which is exactly the gap the poll path
// repairs.
type changePayload struct {
	ID   string   `json:"id"`
	Type string   `json:"type"`
	Job  *job.Job `json:"job,omitempty"`
}

// publish announces a change on the channel. Failures are logged, not
// returned: the write itself already succeeded.
func (s *Store) publish(ctx context.Context, c job.Change) {
	payload, err := json.Marshal(changePayload{
		ID:   c.ID.String(),
		Type: string(c.Type),
		Job:  c.Job,
	})
	if err != nil {
		s.logger.Warn("marshal change event failed", "error", err)
		return
	}
	if err := s.client.Publish(ctx, changeChannel, payload).Err(); err != nil {
		s.logger.Warn("publish change event failed", "error", err)
	}
}

// WatchJobs subscribes to the change channel. The returned channel
// closes when ctx is cancelled or the subscription drops; callers
// resubscribe with backoff.
func (s *Store) WatchJobs(ctx context.Context) (<-chan job.Change, error) {
	pubsub := s.client.Subscribe(ctx, changeChannel)

	// Force the subscription handshake so a dead server surfaces here
	// instead of as an immediately closed channel.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("jobline/redis: watch: %w: %w", jobline.ErrUpstreamUnavailable, err)
	}

	out := make(chan job.Change, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}

				var p changePayload
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					s.logger.Warn("change event decode failed", "error", err)
					continue
				}
				jobID, err := id.ParseJobID(p.ID)
				if err != nil {
					s.logger.Warn("change event: foreign job id", "id", p.ID)
					continue
				}

				select {
				case out <- job.Change{ID: jobID, Type: job.ChangeType(p.Type), Job: p.Job}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
