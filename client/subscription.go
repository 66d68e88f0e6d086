package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jobline/jobline/id"
	"github.com/jobline/jobline/stream"
)

// Watch opens the event stream and returns a channel of events: every
// job change and notification the server reconciles. The channel is
// closed when ctx is cancelled or the connection drops.
func (c *Client) Watch(ctx context.Context) (<-chan *stream.Event, error) {
	return c.watch(ctx, "/events")
}

// WatchJob narrows the stream to events for one job.
func (c *Client) WatchJob(ctx context.Context, jobID id.JobID) (<-chan *stream.Event, error) {
	return c.watch(ctx, "/events?job_id="+jobID.String())
}

func (c *Client) watch(ctx context.Context, path string) (<-chan *stream.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("client: new request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.decodeError(resp)
	}

	ch := make(chan *stream.Event, 64)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			data, ok := strings.CutPrefix(line, "data: ")
			if !ok {
				continue
			}

			var evt stream.Event
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				c.logger.Warn("client: dropping malformed stream event", "error", err)
				continue
			}

			select {
			case ch <- &evt:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			c.logger.Warn("client: event stream closed", "error", err)
		}
	}()

	return ch, nil
}
