package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jobline/jobline/hook"
	"github.com/jobline/jobline/id"
	"github.com/jobline/jobline/job"
	"github.com/jobline/jobline/reconcile"
)

// Compile-time interface checks.
var (
	_ hook.Extension           = (*Broker)(nil)
	_ hook.JobChanged          = (*Broker)(nil)
	_ hook.NotificationEmitted = (*Broker)(nil)
	_ hook.FeedStateChanged    = (*Broker)(nil)
	_ hook.Shutdown            = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// Broker is the real-time stream broker. It implements the hook
// interfaces to receive reconciled lifecycle events and fans them out to
// subscribers via topic-based pub/sub.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	// Subscriber management.
	subscribers sync.Map // subscriber ID string → *Subscriber

	// Metrics.
	totalPublished atomic.Int64

	// Config.
	bufferSize     int
	defaultCredits int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// NewBroker creates a new stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         logger,
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements hook.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Topics returns the topic registry for external use (e.g., SSE bridge).
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subID id.SubscriberID, topics ...string) *Subscriber {
	sub := NewSubscriber(subID, b.bufferSize, b.defaultCredits)
	b.subscribers.Store(subID.String(), sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subID id.SubscriberID, topics ...string) {
	val, ok := b.subscribers.Load(subID.String())
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subID id.SubscriberID, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subID id.SubscriberID) {
	b.topics.UnsubscribeAll(subID)
	if val, ok := b.subscribers.LoadAndDelete(subID.String()); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subID id.SubscriberID) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subID.String())
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
}

// publish creates an event and broadcasts it to all matching topics.
func (b *Broker) publish(evt *Event) {
	topics := resolveTopics(evt)
	delivered := b.topics.Broadcast(topics, evt)
	b.totalPublished.Add(int64(delivered))
}

// mustMarshal marshals data to JSON, panicking on error (programming error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

// ── Hook implementations ────────────────────────────

// OnJobChanged publishes the accepted change on the job's own topic and
// the global jobs topic. The envelope carries the full snapshot so
// observers never need a follow-up read.
func (b *Broker) OnJobChanged(_ context.Context, j *job.Job, change job.ChangeType) error {
	b.publish(&Event{
		Type:      EventJobChanged,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(j.ID.String()),
		Data: mustMarshal(JobChangedData{
			Job:        j,
			ChangeType: change,
		}),
	})
	return nil
}

// OnNotificationEmitted publishes a derived notification.
func (b *Broker) OnNotificationEmitted(_ context.Context, n reconcile.Notification) error {
	b.publish(&Event{
		Type:      EventNotification,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(n.JobID.String()),
		Data:      mustMarshal(NotificationData{Notification: n}),
	})
	return nil
}

// OnFeedStateChanged publishes a live/degraded flip to the firehose.
func (b *Broker) OnFeedStateChanged(_ context.Context, live bool) error {
	b.publish(&Event{
		Type:      EventFeedState,
		Timestamp: time.Now().UTC(),
		Data:      mustMarshal(FeedStateData{Live: live}),
	})
	return nil
}

// OnShutdown closes every subscriber.
func (b *Broker) OnShutdown(_ context.Context) error {
	b.subscribers.Range(func(key, value any) bool {
		sub := value.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
		sub.Close()
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("stream broker shut down")
	return nil
}
