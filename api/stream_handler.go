package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jobline/jobline"
	"github.com/jobline/jobline/id"
	"github.com/jobline/jobline/stream"
)

// streamEvents bridges a broker subscription onto server-sent events.
// By default the subscriber sees all job changes and notifications; a
// ?job_id= query narrows it to one job's topic. The subscription is
// removed when the client disconnects, whatever way the handler exits.
func (a *API) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	topics := []string{stream.TopicJobs, stream.TopicNotifications}
	if raw := r.URL.Query().Get("job_id"); raw != "" {
		jobID, err := id.ParseJobID(raw)
		if err != nil {
			a.writeError(w, fmt.Errorf("%w: invalid job ID %q", jobline.ErrValidation, raw))
			return
		}
		topics = []string{stream.JobTopic(jobID.String())}
	}

	subID := id.NewSubscriberID()
	sub := a.broker.Subscribe(subID, topics...)
	defer a.broker.RemoveSubscriber(subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	a.logger.Info("event stream opened",
		slog.String("subscriber_id", subID.String()),
		slog.Any("topics", topics),
	)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, open := <-sub.C():
			if !open {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, payload)
			flusher.Flush()
			// One event consumed, one credit back: SSE clients cannot
			// grant credits themselves.
			sub.AddCredits(1)
		}
	}
}
