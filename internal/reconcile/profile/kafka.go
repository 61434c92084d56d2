package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// DefaultTopic receives profile refresh messages unless configured otherwise.
const DefaultTopic = "credential.profile-refresh"

// Producer is the subset of *kgo.Client the Kafka notifier needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type refreshMessage struct {
	OwnerID    string    `json:"owner_id"`
	RecordID   string    `json:"record_id"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

// KafkaNotifier publishes refreshes keyed by owner, so one owner's updates
// land on one partition in order.
type KafkaNotifier struct {
	producer Producer
	topic    string
}

func NewKafkaNotifier(producer Producer, topic string) *KafkaNotifier {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaNotifier{producer: producer, topic: topic}
}

func (n *KafkaNotifier) Notify(ctx context.Context, refresh Refresh) error {
	value, err := json.Marshal(refreshMessage{
		OwnerID:    refresh.OwnerID.String(),
		RecordID:   refresh.RecordID.String(),
		Status:     string(refresh.Status),
		OccurredAt: refresh.OccurredAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode profile refresh: %w", err)
	}
	record := &kgo.Record{
		Topic: n.topic,
		Key:   []byte(refresh.OwnerID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
	if err := n.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("publish profile refresh: %w", err)
	}
	return nil
}
