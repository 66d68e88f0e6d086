// Package stream provides a real-time event broker for job lifecycle
// events. It bridges the hook extension system to connected observers
// via topic-based pub/sub with credit-based flow control.
package stream

import (
	"encoding/json"
	"time"

	"github.com/jobline/jobline/job"
	"github.com/jobline/jobline/reconcile"
)

// EventType identifies the kind of stream event.
type EventType string

const (
	// EventJobChanged carries a full job snapshot after an accepted
	// change. Delivery is ordered within a job and at-least-once.
	EventJobChanged EventType = "job.changed"

	// EventNotification carries a derived user-facing notification.
	EventNotification EventType = "notification"

	// EventFeedState announces a live/degraded flip of the change feed.
	EventFeedState EventType = "feed.state"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the channel this event was published on.
	Topic string `json:"topic"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// JobChangedData is the payload for job.changed events.
type JobChangedData struct {
	Job        *job.Job       `json:"job"`
	ChangeType job.ChangeType `json:"change_type"`
}

// NotificationData is the payload for notification events.
type NotificationData struct {
	Notification reconcile.Notification `json:"notification"`
}

// FeedStateData is the payload for feed.state events.
type FeedStateData struct {
	Live bool `json:"live"`
}
