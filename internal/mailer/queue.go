package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/growhive/apiserver/internal/mq"
	"go.uber.org/zap"
)

// Job is the queued form of one verification email.
type Job struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// Publisher is the publishing half of an mq.Backend.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// Subscriber is the consuming half of an mq.Backend.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// QueueMailer hands codes to a broker; a Consumer performs the delivery.
type QueueMailer struct {
	publisher Publisher
	queue     string
}

func NewQueueMailer(publisher Publisher, queue string) *QueueMailer {
	return &QueueMailer{publisher: publisher, queue: queue}
}

func (m *QueueMailer) SendOTP(ctx context.Context, email, code string) error {
	data, err := json.Marshal(Job{Email: email, Code: code})
	if err != nil {
		return err
	}
	if _, err := m.publisher.Publish(ctx, m.queue, data, map[string]string{"type": "otp"}); err != nil {
		return fmt.Errorf("enqueue otp email: %w", err)
	}
	return nil
}

// Consumer drains the OTP queue into a delivering Mailer.
type Consumer struct {
	subscriber Subscriber
	queue      string
	delivery   Mailer
	logger     *zap.Logger
}

func NewConsumer(subscriber Subscriber, queue string, delivery Mailer, logger *zap.Logger) *Consumer {
	return &Consumer{subscriber: subscriber, queue: queue, delivery: delivery, logger: logger}
}

// Run blocks until ctx is cancelled or the subscription fails.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consuming otp emails", zap.String("queue", c.queue))
	err := c.subscriber.Subscribe(ctx, c.queue, c.Handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handle delivers a single queued job.
func (c *Consumer) Handle(ctx context.Context, msg mq.Message) error {
	var job Job
	if err := json.Unmarshal(msg.Data, &job); err != nil || job.Email == "" || job.Code == "" {
		c.logger.Error("dropping malformed otp job", zap.String("id", msg.ID))
		if err == nil {
			err = errors.New("missing email or code")
		}
		return mq.Permanent(err)
	}

	if err := c.delivery.SendOTP(ctx, job.Email, job.Code); err != nil {
		c.logger.Warn("otp delivery failed, requeueing", zap.String("id", msg.ID), zap.Error(err))
		return err
	}
	c.logger.Debug("otp email delivered", zap.String("id", msg.ID))
	return nil
}
