package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"authgate/internal/app/notify"
	"authgate/internal/platform/config"

	"github.com/redis/go-redis/v9"
	"github.com/wneessen/go-mail"
)

const maxDeliveryAttempts = 3

// Sender delivers one rendered mail message.
type Sender interface {
	Deliver(ctx context.Context, msg notify.Message) error
}

// MailWorker drains the outbound mail queue and hands each message to the
// Sender. It runs as a single goroutine started from main.
type MailWorker struct {
	rdb    *redis.Client
	queue  string
	sender Sender
}

func NewMailWorker(rdb *redis.Client, queue string, sender Sender) *MailWorker {
	return &MailWorker{rdb: rdb, queue: queue, sender: sender}
}

func (w *MailWorker) Start(ctx context.Context) {
	log.Println("Mail worker started, listening to queue:", w.queue)
	for {
		select {
		case <-ctx.Done():
			log.Println("Mail worker stopping...")
			return
		default:
			// Blocking pop from Redis queue
			popped, err := w.rdb.BRPop(ctx, 0*time.Second, w.queue).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					continue
				}
				log.Printf("ERROR: Failed to BRPop from mail queue '%s': %v", w.queue, err)
				time.Sleep(5 * time.Second) // Wait before retrying on other errors
				continue
			}

			// popped is an array: [queueName, value]
			if len(popped) < 2 || popped[1] == "" {
				log.Println("WARN: BRPop returned empty mail payload.")
				continue
			}
			w.process(ctx, popped[1])
		}
	}
}

func (w *MailWorker) process(ctx context.Context, payload string) {
	var msg notify.Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		log.Printf("ERROR: Dropping undecodable mail payload: %v", err)
		return
	}

	if err := w.sender.Deliver(ctx, msg); err != nil {
		msg.Attempts++
		if msg.Attempts >= maxDeliveryAttempts {
			log.Printf("ERROR: Dropping mail to %s after %d attempts: %v", msg.To, msg.Attempts, err)
			return
		}
		log.Printf("WARN: Delivery to %s failed (attempt %d), requeueing: %v", msg.To, msg.Attempts, err)
		w.requeue(ctx, msg)
		return
	}
	log.Printf("Mail delivered to %s: %s", msg.To, msg.Subject)
}

func (w *MailWorker) requeue(ctx context.Context, msg notify.Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("ERROR: Failed to marshal mail for requeue: %v", err)
		return
	}
	if err := w.rdb.LPush(ctx, w.queue, payload).Err(); err != nil {
		log.Printf("ERROR: Failed to requeue mail to %s: %v", msg.To, err)
	}
}

// SMTPSender delivers messages over SMTP.
type SMTPSender struct {
	client *mail.Client
	from   string
}

func NewSMTPSender() (*SMTPSender, error) {
	cfg := config.AppConfig
	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.SMTPUser != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUser),
			mail.WithPassword(cfg.SMTPPassword),
		)
	}
	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, err
	}
	return &SMTPSender{client: client, from: cfg.MailFrom}, nil
}

func (s *SMTPSender) Deliver(ctx context.Context, msg notify.Message) error {
	m := mail.NewMsg()
	if err := m.From(s.from); err != nil {
		return err
	}
	if err := m.To(msg.To); err != nil {
		return err
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return s.client.DialAndSendWithContext(ctx, m)
}
