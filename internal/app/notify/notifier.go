package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Message is one outbound email. Attempts counts delivery tries so the worker
// can stop requeueing a poisoned message.
type Message struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Attempts int    `json:"attempts"`
}

// Notifier dispatches an email for later delivery. Enqueueing is the only
// synchronous part; actual SMTP delivery happens in the mail worker.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

type QueueNotifier struct {
	rdb   *redis.Client
	queue string
}

func NewQueueNotifier(rdb *redis.Client, queue string) *QueueNotifier {
	return &QueueNotifier{rdb: rdb, queue: queue}
}

func (n *QueueNotifier) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal mail message: %w", err)
	}
	if err := n.rdb.LPush(ctx, n.queue, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue mail message: %w", err)
	}
	return nil
}
