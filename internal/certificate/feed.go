package certificate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// DefaultTopic carries certification events for the scoring service.
const DefaultTopic = "certproof.certifications"

// Producer is the subset of *kgo.Client used by Feed.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Feed publishes Events keyed by session id, so events of one session stay
// ordered on one partition.
type Feed struct {
	producer Producer
	topic    string
	logger   *slog.Logger
}

type FeedOption func(*Feed)

func WithTopic(topic string) FeedOption {
	return func(f *Feed) {
		if topic != "" {
			f.topic = topic
		}
	}
}

func WithFeedLogger(logger *slog.Logger) FeedOption {
	return func(f *Feed) { f.logger = logger }
}

func NewFeed(producer Producer, opts ...FeedOption) *Feed {
	f := &Feed{producer: producer, topic: DefaultTopic}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Publish blocks until the broker acknowledges the event. A nil Feed drops it.
func (f *Feed) Publish(ctx context.Context, e Event) error {
	if f == nil || f.producer == nil {
		return nil
	}
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal certification event: %w", err)
	}
	rec := &kgo.Record{
		Topic: f.topic,
		Key:   []byte(e.SessionID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}
	if err := f.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		if f.logger != nil {
			f.logger.WarnContext(ctx, "certification event not published",
				"event_type", e.Type,
				"topic", f.topic,
				"error", err,
			)
		}
		return fmt.Errorf("publish certification event: %w", err)
	}
	return nil
}
